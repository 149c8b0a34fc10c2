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
	"go.uber.org/multierr"
)

// Retry returns messages whose acknowledgement timeout has elapsed to the
// queue, or dead-letters them if they have exceeded their retry limits.
//
// Before doing so it releases any claims on queue entries that are older than
// the lock TTL, as the poller that made them has presumably failed.
//
// It is called periodically by Run(), but may be called on demand.
func (q *Queue) Retry(ctx context.Context) (err error) {
	ctx, span := q.startSpan(ctx, "retry")
	defer func() { tracing.End(span, err) }()

	now := q.now()

	return multierr.Append(
		q.recoverLocks(ctx, now),
		q.sweep(ctx, now),
	)
}

// recoverLocks releases stale claims on queue entries.
//
// Each entry is released in its own transaction without retrying; any failure
// is repeated by the next sweep.
func (q *Queue) recoverLocks(ctx context.Context, now time.Time) error {
	var entries []persistence.QueueEntry
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		entries, err = q.driver.SelectLockedEntries(ctx, q.db, q.tables)
		return err
	}); err != nil {
		return err
	}

	threshold := now.Add(-q.opts.LockTTL)

	var err error
	for _, e := range entries {
		if _, claimedAt, perr := e.Locked.Parse(); perr == nil && claimedAt.After(threshold) {
			continue
		}

		released, rerr := q.releaseLock(ctx, e, now)
		if rerr != nil {
			err = multierr.Append(err, rerr)
			continue
		}

		if released {
			logging.Log(
				q.logger,
				"released stale lock on %s held by %s",
				mlog.FormatFingerprint(e.Fingerprint),
				e.Locked,
			)

			q.notify(LockReleased{
				Queue:       q.name,
				Fingerprint: e.Fingerprint,
			})
		}
	}

	return err
}

// releaseLock replaces a locked queue entry with an unlocked one that is
// immediately ready for delivery.
//
// It returns false if the entry is no longer locked with the same marker.
func (q *Queue) releaseLock(
	ctx context.Context,
	e persistence.QueueEntry,
	now time.Time,
) (bool, error) {
	var released bool

	err := q.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		released, err = q.driver.DeleteLockedEntry(ctx, tx, q.tables, e.ID, e.Locked)
		if err != nil || !released {
			return err
		}

		return q.driver.UpsertQueueEntry(
			ctx,
			tx,
			q.tables,
			persistence.QueueEntry{
				ID:          newID(),
				Fingerprint: e.Fingerprint,
				Delivery:    millis(now),
				Locked:      persistence.Unlocked,
			},
		)
	})

	return released, err
}

// sweep requeues or dead-letters each message whose lease has expired.
func (q *Queue) sweep(ctx context.Context, now time.Time) error {
	var entries []persistence.ExpiredEntry
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		entries, err = q.driver.SelectExpiredEntries(ctx, q.db, q.tables, millis(now))
		return err
	}); err != nil {
		return err
	}

	var err error
	for _, e := range entries {
		m, derr := q.decode(e.Body)
		if derr != nil {
			err = multierr.Append(err, q.purge(ctx, e.Fingerprint, derr))
			continue
		}

		m.Attributes.AckAttempts++

		if q.isDead(m) {
			err = multierr.Append(err, q.kill(ctx, e, m, now))
		} else {
			err = multierr.Append(err, q.requeue(ctx, e, m, now))
		}
	}

	q.notify(RetryPolled{
		Queue:   q.name,
		Expired: len(entries),
	})

	return err
}

// isDead returns true if m has exceeded either its own attempt limit or the
// queue's limit on lease expiries.
func (q *Queue) isDead(m message.Message) bool {
	a := m.Attributes

	if a.AckAttempts >= q.opts.MaxAckRetries {
		return true
	}

	return a.MaxAttempts > 0 && a.Attempts > a.MaxAttempts
}

// requeue returns a message with an expired lease to the queue, to be
// delivered again after the lock TTL.
func (q *Queue) requeue(
	ctx context.Context,
	e persistence.ExpiredEntry,
	m message.Message,
	now time.Time,
) error {
	var requeued bool

	if err := q.write(ctx, func(ctx context.Context) error {
		return q.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			requeued, err = q.driver.DeleteUnackedByID(ctx, tx, q.tables, e.ID)
			if err != nil || !requeued {
				return err
			}

			return q.driver.UpsertQueueEntry(
				ctx,
				tx,
				q.tables,
				persistence.QueueEntry{
					ID:          newID(),
					Fingerprint: e.Fingerprint,
					Delivery:    millis(now.Add(q.opts.LockTTL)),
					Locked:      persistence.Unlocked,
				},
			)
		})
	}); err != nil {
		return err
	}

	// The entry was acknowledged or requeued by another sweeper.
	if !requeued {
		return nil
	}

	mlog.LogRetry(q.logger, e.Fingerprint, m)

	// The body is written outside of the transaction above so that the lock on
	// the queue table is held as briefly as possible. If it fails the ack
	// attempt count is lost, which only delays dead-lettering.
	if body, err := message.Marshal(m); err == nil {
		if _, err := q.driver.UpdateMessageBody(ctx, q.db, q.tables, e.Fingerprint, body, millis(now)); err != nil {
			logging.Log(
				q.logger,
				"unable to record lease expiry of %s: %s",
				mlog.FormatFingerprint(e.Fingerprint),
				err,
			)
		}
	}

	q.notify(MessageRetried{
		Queue:       q.name,
		Fingerprint: e.Fingerprint,
		Message:     m,
	})

	return nil
}
