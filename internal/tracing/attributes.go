package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name of the tracer used by queues.
const InstrumentationName = "github.com/dogmatiq/sqlqueue"

var (
	// QueueNameKey is a span attribute key for the name of a queue.
	QueueNameKey = attribute.Key("sqlqueue.queue.name")

	// QueueOwnerKey is a span attribute key for the identity of the queue
	// instance that claims messages.
	QueueOwnerKey = attribute.Key("sqlqueue.queue.owner")

	// MessageKindKey is a span attribute key for the kind of a message.
	MessageKindKey = attribute.Key("sqlqueue.message.kind")

	// MessageFingerprintKey is a span attribute key for the fingerprint of a
	// message.
	MessageFingerprintKey = attribute.Key("sqlqueue.message.fingerprint")

	// MessageCountKey is a span attribute key for the number of messages
	// affected by an operation.
	MessageCountKey = attribute.Key("sqlqueue.message.count")
)

// End records err (if non-nil) against the span, then ends it.
func End(s trace.Span, err error) {
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	}

	s.End()
}
