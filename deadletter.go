package sqlqueue

import (
	"context"
	"database/sql"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/internal/mlog"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// kill removes a message that has exceeded its retry limits from the queue and
// passes it to the dead-letter sink.
func (q *Queue) kill(
	ctx context.Context,
	e persistence.ExpiredEntry,
	m message.Message,
	now time.Time,
) error {
	mlog.LogDead(q.logger, e.Fingerprint, m)

	if err := q.write(ctx, func(ctx context.Context) error {
		return q.withTx(ctx, func(tx *sql.Tx) error {
			return q.driver.PurgeFingerprint(ctx, tx, q.tables, e.Fingerprint)
		})
	}); err != nil {
		return err
	}

	q.deadLetter(ctx, e.Fingerprint, m, now)

	q.notify(MessageDead{
		Queue:       q.name,
		Fingerprint: e.Fingerprint,
		Message:     m,
	})

	return nil
}

// deadLetter records a snapshot of m in the dead-letter table, then invokes
// the dead message callbacks.
//
// The message has already been removed from the queue, so a failure to write
// the snapshot is logged rather than returned.
func (q *Queue) deadLetter(
	ctx context.Context,
	fp string,
	m message.Message,
	now time.Time,
) {
	body, err := message.Marshal(m)
	if err == nil {
		err = q.write(ctx, func(ctx context.Context) error {
			return q.driver.UpsertDeadLetter(
				ctx,
				q.db,
				q.tables,
				persistence.DeadLetterRecord{
					ID:          newID(),
					Fingerprint: fp,
					Body:        body,
					UpdatedAt:   millis(now),
				},
			)
		})
	}

	if err != nil {
		logging.Log(
			q.logger,
			"unable to record dead message %s: %s",
			mlog.FormatFingerprint(fp),
			err,
		)
	}

	for _, fn := range q.opts.DeadMessageCallbacks {
		fn(ctx, q.name, m)
	}
}

// DeadLetter returns the most recent dead-lettered message with the given
// fingerprint.
//
// ok is false if no such message has been dead-lettered.
func (q *Queue) DeadLetter(ctx context.Context, fp string) (_ message.Message, ok bool, err error) {
	ctx, span := q.startSpan(ctx, "dead_letter", tracing.MessageFingerprintKey.String(fp))
	defer func() { tracing.End(span, err) }()

	var r persistence.DeadLetterRecord
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		r, ok, err = q.driver.SelectDeadLetter(ctx, q.db, q.tables, fp)
		return err
	}); err != nil || !ok {
		return message.Message{}, false, err
	}

	m, err := message.Unmarshal(r.Body, q.opts.Migrator)
	if err != nil {
		return message.Message{}, false, err
	}

	return m, true, nil
}
