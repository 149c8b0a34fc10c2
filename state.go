package sqlqueue

import (
	"context"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/internal/mlog"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// ReadState returns a snapshot of the size of the queue.
func (q *Queue) ReadState(ctx context.Context) (_ persistence.State, err error) {
	ctx, span := q.startSpan(ctx, "read_state")
	defer func() { tracing.End(span, err) }()

	now := millis(q.now())

	var s persistence.State
	err = q.read(ctx, func(ctx context.Context) error {
		var err error
		s, err = q.driver.SelectState(ctx, q.db, q.tables, now)
		return err
	})

	return s, err
}

// ContainsMessage returns true if any message body stored by the queue
// satisfies pred.
//
// Bodies are scanned in batches, in the order they were first stored. Bodies
// that can not be decoded are skipped.
func (q *Queue) ContainsMessage(
	ctx context.Context,
	pred func(message.Message) bool,
) (_ bool, err error) {
	ctx, span := q.startSpan(ctx, "contains_message")
	defer func() { tracing.End(span, err) }()

	afterID := ""

	for {
		var records []persistence.MessageRecord
		if err := q.read(ctx, func(ctx context.Context) error {
			var err error
			records, err = q.driver.SelectMessages(ctx, q.db, q.tables, afterID, scanBatchSize)
			return err
		}); err != nil {
			return false, err
		}

		for _, r := range records {
			m, err := message.Unmarshal(r.Body, q.opts.Migrator)
			if err != nil {
				logging.Log(
					q.logger,
					"unable to decode %s while scanning messages: %s",
					mlog.FormatFingerprint(r.Fingerprint),
					err,
				)
				continue
			}

			if pred(m) {
				return true, nil
			}
		}

		if len(records) < scanBatchSize {
			return false, nil
		}

		afterID = records[len(records)-1].ID
	}
}
