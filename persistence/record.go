package persistence

import "database/sql"

// MessageRecord is a row in the messages table. It is the single source of
// truth for a message's body.
type MessageRecord struct {
	ID          string
	Fingerprint string
	Body        string
	UpdatedAt   int64
}

// QueueEntry is a row in the queue table, representing a message that is
// eligible for delivery once Delivery has passed.
type QueueEntry struct {
	ID          string
	Fingerprint string
	Delivery    int64
	Locked      LockMarker
}

// ClaimedEntry is a queue entry that has been locked by a poller, joined with
// the message body.
//
// Body is invalid if the message row is missing.
type ClaimedEntry struct {
	QueueEntry
	Body sql.NullString
}

// UnackedEntry is a row in the unacked table, representing a message that has
// been delivered to a worker and is awaiting acknowledgement.
type UnackedEntry struct {
	ID          string
	Fingerprint string
	Expiry      int64
}

// ExpiredEntry is an unacked entry whose lease has expired, joined with the
// message body.
//
// Body is invalid if the message row is missing.
type ExpiredEntry struct {
	UnackedEntry
	Body sql.NullString
}

// OrphanCandidate is a message row that is old enough to be compacted, along
// with whether it is still referenced by the queue or unacked tables.
type OrphanCandidate struct {
	MessageID string
	Queued    bool
	Unacked   bool
}

// IsOrphaned returns true if the message is not referenced by either table.
func (c OrphanCandidate) IsOrphaned() bool {
	return !c.Queued && !c.Unacked
}

// DeadLetterRecord is a row in the dead-letter table.
type DeadLetterRecord struct {
	ID          string
	Fingerprint string
	Body        string
	UpdatedAt   int64
}

// State is a snapshot of the size of a queue.
type State struct {
	// Depth is the number of messages in the queue table, regardless of
	// delivery time.
	Depth int

	// Ready is the number of messages whose delivery time has passed.
	Ready int

	// Unacked is the number of messages awaiting acknowledgement.
	Unacked int

	// Orphaned is the number of message bodies that are referenced by
	// neither the queue nor the unacked table.
	Orphaned int
}

// NewState returns the state of a queue given the number of rows in each of
// its tables.
//
// Message bodies that are referenced by neither the queue nor the unacked
// table are counted as orphaned.
func NewState(depth, ready, unacked, messages int) State {
	orphaned := messages - depth - unacked
	if orphaned < 0 {
		orphaned = 0
	}

	return State{
		Depth:    depth,
		Ready:    ready,
		Unacked:  unacked,
		Orphaned: orphaned,
	}
}
