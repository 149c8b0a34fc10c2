package sqlqueue

import (
	"time"

	"github.com/dogmatiq/sqlqueue/message"
)

// Event is a notification about a change in the state of a queue.
type Event interface {
	// QueueName returns the name of the queue that produced the event.
	QueueName() string
}

// Observer is notified of queue events.
//
// Notify is called synchronously from within queue operations; it must not
// block.
type Observer interface {
	Notify(e Event)
}

// ObserverFunc is an adaptor that allows a function to be used as an
// Observer.
type ObserverFunc func(e Event)

// Notify calls fn(e).
func (fn ObserverFunc) Notify(e Event) {
	fn(e)
}

// MessagePushed is produced when a message is placed on the queue.
type MessagePushed struct {
	Queue       string
	Fingerprint string
	Message     message.Message
	DeliverAt   time.Time
}

// QueuePolled is produced every time the queue is polled, whether or not any
// messages were delivered.
type QueuePolled struct {
	Queue     string
	Claimed   int
	Delivered int
}

// MessageProcessing is produced when a message is delivered to a worker.
type MessageProcessing struct {
	Queue       string
	Fingerprint string
	Message     message.Message
	ScheduledAt time.Time
	ProcessedAt time.Time
}

// MessageRescheduled is produced when the delivery time of a queued message is
// changed.
type MessageRescheduled struct {
	Queue       string
	Fingerprint string
	DeliverAt   time.Time
}

// MessageNotFound is produced when an attempt is made to reschedule a message
// that is not on the queue.
type MessageNotFound struct {
	Queue       string
	Fingerprint string
}

// MessageAcknowledged is produced when a worker acknowledges a message.
type MessageAcknowledged struct {
	Queue       string
	Fingerprint string
}

// MessageRetried is produced when a message's lease expires and it is
// returned to the queue.
type MessageRetried struct {
	Queue       string
	Fingerprint string
	Message     message.Message
}

// MessageDead is produced when a message is dead-lettered.
type MessageDead struct {
	Queue       string
	Fingerprint string
	Message     message.Message
}

// MessagePurged is produced when a message is removed from the queue because
// its body is missing or can not be decoded.
type MessagePurged struct {
	Queue       string
	Fingerprint string
	Cause       error
}

// RetryPolled is produced at the end of every lease sweep.
type RetryPolled struct {
	Queue   string
	Expired int
}

// LockReleased is produced when a stale claim on a queue entry is released.
type LockReleased struct {
	Queue       string
	Fingerprint string
}

// MessagesCleaned is produced when orphaned message bodies are removed.
type MessagesCleaned struct {
	Queue string
	Count int
}

// QueueName returns the name of the queue that produced the event.
func (e MessagePushed) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e QueuePolled) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageProcessing) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageRescheduled) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageNotFound) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageAcknowledged) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageRetried) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessageDead) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessagePurged) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e RetryPolled) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e LockReleased) QueueName() string { return e.Queue }

// QueueName returns the name of the queue that produced the event.
func (e MessagesCleaned) QueueName() string { return e.Queue }
