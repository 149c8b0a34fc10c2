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

// Push places m on the queue, to be delivered after the given delay.
//
// Pushing a message with the same fingerprint as one that is already queued
// replaces its body and delivery time; it never produces a second queue entry.
//
// It panics if delay is negative.
func (q *Queue) Push(ctx context.Context, m message.Message, delay time.Duration) (err error) {
	if delay < 0 {
		panic("delay must not be negative")
	}

	ctx, span := q.startSpan(ctx, "push", tracing.MessageKindKey.String(m.Kind))
	defer func() { tracing.End(span, err) }()

	fp, body, err := encode(m)
	if err != nil {
		return err
	}
	span.SetAttributes(tracing.MessageFingerprintKey.String(fp))

	now := q.now()
	deliverAt := now.Add(delay)

	if err := q.write(ctx, func(ctx context.Context) error {
		return q.push(ctx, fp, body, now, deliverAt)
	}); err != nil {
		return err
	}

	mlog.LogPush(q.logger, fp, m, delay)

	q.notify(MessagePushed{
		Queue:       q.name,
		Fingerprint: fp,
		Message:     m,
		DeliverAt:   deliverAt,
	})

	return nil
}

// Reschedule changes the delivery time of m to now plus the given delay.
//
// If m is not currently queued a MessageNotFound event is produced and nil is
// returned.
//
// It panics if delay is negative.
func (q *Queue) Reschedule(ctx context.Context, m message.Message, delay time.Duration) (err error) {
	if delay < 0 {
		panic("delay must not be negative")
	}

	ctx, span := q.startSpan(ctx, "reschedule", tracing.MessageKindKey.String(m.Kind))
	defer func() { tracing.End(span, err) }()

	fp, err := message.Fingerprint(m)
	if err != nil {
		return err
	}
	span.SetAttributes(tracing.MessageFingerprintKey.String(fp))

	deliverAt := q.now().Add(delay)

	var found bool
	if err := q.write(ctx, func(ctx context.Context) error {
		var err error
		found, err = q.driver.UpdateDelivery(ctx, q.db, q.tables, fp, millis(deliverAt))
		return err
	}); err != nil {
		return err
	}

	if !found {
		logging.Log(
			q.logger,
			"unable to reschedule %s: %s message is not queued",
			mlog.FormatFingerprint(fp),
			m.Kind,
		)

		q.notify(MessageNotFound{
			Queue:       q.name,
			Fingerprint: fp,
		})

		return nil
	}

	q.notify(MessageRescheduled{
		Queue:       q.name,
		Fingerprint: fp,
		DeliverAt:   deliverAt,
	})

	return nil
}

// Ensure pushes m onto the queue unless a message with the same fingerprint is
// already queued or awaiting acknowledgement.
//
// It returns true if the message was pushed.
//
// It panics if delay is negative.
func (q *Queue) Ensure(ctx context.Context, m message.Message, delay time.Duration) (_ bool, err error) {
	if delay < 0 {
		panic("delay must not be negative")
	}

	ctx, span := q.startSpan(ctx, "ensure", tracing.MessageKindKey.String(m.Kind))
	defer func() { tracing.End(span, err) }()

	fp, err := message.Fingerprint(m)
	if err != nil {
		return false, err
	}
	span.SetAttributes(tracing.MessageFingerprintKey.String(fp))

	var exists bool
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		exists, err = q.driver.IsQueuedOrUnacked(ctx, q.db, q.tables, fp)
		return err
	}); err != nil {
		return false, err
	}

	if exists {
		return false, nil
	}

	// Push starts its own span.
	return true, q.Push(ctx, m, delay)
}

// push writes the message body and its queue entry in a single transaction.
func (q *Queue) push(
	ctx context.Context,
	fp, body string,
	now, deliverAt time.Time,
) error {
	return q.withTx(ctx, func(tx *sql.Tx) error {
		if err := q.driver.UpsertMessage(
			ctx,
			tx,
			q.tables,
			persistence.MessageRecord{
				ID:          newID(),
				Fingerprint: fp,
				Body:        body,
				UpdatedAt:   millis(now),
			},
		); err != nil {
			return err
		}

		return q.driver.UpsertQueueEntry(
			ctx,
			tx,
			q.tables,
			persistence.QueueEntry{
				ID:          newID(),
				Fingerprint: fp,
				Delivery:    millis(deliverAt),
				Locked:      persistence.Unlocked,
			},
		)
	})
}

// encode returns the fingerprint and serialized body of m.
func encode(m message.Message) (fp, body string, err error) {
	fp, err = message.Fingerprint(m)
	if err != nil {
		return "", "", err
	}

	body, err = message.Marshal(m)
	if err != nil {
		return "", "", err
	}

	return fp, body, nil
}
