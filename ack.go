package sqlqueue

import (
	"context"

	"github.com/dogmatiq/sqlqueue/internal/mlog"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
)

// Ack acknowledges the message with the given fingerprint, removing it from
// the set of messages awaiting acknowledgement.
//
// The message body is retained until it is compacted. Acknowledging a message
// that is not awaiting acknowledgement has no effect.
func (q *Queue) Ack(ctx context.Context, fp string) (err error) {
	ctx, span := q.startSpan(ctx, "ack", tracing.MessageFingerprintKey.String(fp))
	defer func() { tracing.End(span, err) }()

	now := millis(q.now())

	if err := q.write(ctx, func(ctx context.Context) error {
		if err := q.driver.DeleteUnacked(ctx, q.db, q.tables, fp); err != nil {
			return err
		}

		// Restart the compaction clock so the body remains available for a
		// while after the message is complete.
		return q.driver.TouchMessage(ctx, q.db, q.tables, fp, now)
	}); err != nil {
		return err
	}

	mlog.LogAck(q.logger, fp)

	q.notify(MessageAcknowledged{
		Queue:       q.name,
		Fingerprint: fp,
	})

	return nil
}
