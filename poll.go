package sqlqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/internal/mlog"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"go.uber.org/multierr"
)

// errMissingBody indicates that a queue entry refers to a message body that
// does not exist.
var errMissingBody = errors.New("message body is missing")

// AckFunc acknowledges a message that was delivered by Poll().
//
// It is safe to call more than once.
type AckFunc func(ctx context.Context) error

// Callback is a function that is invoked by Poll() for each message that is
// delivered.
//
// The message is redelivered after its acknowledgement timeout unless ack is
// called.
type Callback func(ctx context.Context, m message.Message, ack AckFunc)

// delivery is a message that has been moved to the unacked table and is ready
// to be passed to a callback.
type delivery struct {
	Entry   persistence.ClaimedEntry
	Message message.Message
}

// Poll claims up to limit ready messages and invokes cb for each one.
//
// Messages are not delivered in any particular order. Concurrent calls to
// Poll(), within this process or any other, never deliver the same message
// twice while it awaits acknowledgement.
//
// It panics if limit is not positive.
func (q *Queue) Poll(ctx context.Context, limit int, cb Callback) (err error) {
	if limit <= 0 {
		panic("limit must be positive")
	}

	ctx, span := q.startSpan(ctx, "poll")
	defer func() { tracing.End(span, err) }()

	now := q.now()
	marker := persistence.NewLockMarker(
		fmt.Sprintf("%s.%d", q.opts.Owner, q.polls.Add(1)),
		now,
	)

	claimed, err := q.claim(ctx, now, limit, marker)
	if err != nil {
		return err
	}

	if claimed == 0 {
		q.notify(QueuePolled{Queue: q.name})
		return nil
	}

	var entries []persistence.ClaimedEntry
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		entries, err = q.driver.SelectClaimedEntries(ctx, q.db, q.tables, marker)
		return err
	}); err != nil {
		return err
	}

	var (
		moved      []string
		lost       []string
		deliveries []delivery
	)

	for _, e := range entries {
		m, derr := q.decode(e.Body)
		if derr != nil {
			err = multierr.Append(err, q.purge(ctx, e.Fingerprint, derr))
			continue
		}

		m.Attributes.Attempts++

		ok, merr := q.markUnacked(ctx, e, m, now)
		if merr != nil {
			logging.Log(
				q.logger,
				"unable to deliver %s: %s",
				mlog.FormatFingerprint(e.Fingerprint),
				merr,
			)
			err = multierr.Append(err, merr)
		}

		if ok {
			moved = append(moved, e.ID)
			deliveries = append(deliveries, delivery{e, m})
		} else {
			lost = append(lost, e.ID)
		}
	}

	err = multierr.Append(err, q.inChunks(ctx, moved, func(ctx context.Context, ids []string) error {
		return q.driver.DeleteQueueEntries(ctx, q.db, q.tables, ids)
	}))

	err = multierr.Append(err, q.inChunks(ctx, lost, func(ctx context.Context, ids []string) error {
		return q.driver.UnlockQueueEntries(ctx, q.db, q.tables, ids)
	}))

	span.SetAttributes(tracing.MessageCountKey.Int(len(deliveries)))

	for _, d := range deliveries {
		fp := d.Entry.Fingerprint

		mlog.LogConsume(q.logger, fp, d.Message)

		q.notify(MessageProcessing{
			Queue:       q.name,
			Fingerprint: fp,
			Message:     d.Message,
			ScheduledAt: time.UnixMilli(d.Entry.Delivery),
			ProcessedAt: now,
		})

		cb(ctx, d.Message, func(ctx context.Context) error {
			return q.Ack(ctx, fp)
		})
	}

	q.notify(QueuePolled{
		Queue:     q.name,
		Claimed:   claimed,
		Delivered: len(deliveries),
	})

	return err
}

// claim locks up to limit ready queue entries with the given marker.
//
// It returns the number of entries locked. The candidates are read without
// locking and shuffled, so that concurrent pollers tend to contend for
// different rows. Each pass attempts the next unseen slice of candidates, so
// rows lost to another poller in one pass do not end the claim.
func (q *Queue) claim(
	ctx context.Context,
	now time.Time,
	limit int,
	marker persistence.LockMarker,
) (int, error) {
	var candidates []string
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = q.driver.SelectReadyIDs(
			ctx,
			q.db,
			q.tables,
			millis(now),
			candidateCount(limit),
		)
		return err
	}); err != nil {
		return 0, err
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	claimed := 0

	for pass := 0; pass < q.opts.MaxClaimPasses; pass++ {
		n := min(limit-claimed, len(candidates))
		if n == 0 {
			break
		}

		ids := candidates[:n]
		candidates = candidates[n:]

		var locked int64
		if err := q.write(ctx, func(ctx context.Context) error {
			var err error
			locked, err = q.driver.LockQueueEntries(ctx, q.db, q.tables, ids, marker)
			return err
		}); err != nil {
			return claimed, err
		}

		claimed += int(locked)
	}

	return claimed, nil
}

// markUnacked moves a claimed message into the unacked table.
//
// It returns false if the message is already awaiting acknowledgement or the
// move fails, in which case the claim must be released.
func (q *Queue) markUnacked(
	ctx context.Context,
	e persistence.ClaimedEntry,
	m message.Message,
	now time.Time,
) (bool, error) {
	expiry := now.Add(q.ackTimeout(m.AckTimeout))

	var body string
	if m.Attributes.MaxAttempts > 0 {
		var err error
		body, err = message.Marshal(m)
		if err != nil {
			return false, err
		}
	}

	var inserted bool
	err := q.write(ctx, func(ctx context.Context) error {
		return q.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			inserted, err = q.driver.InsertUnacked(
				ctx,
				tx,
				q.tables,
				persistence.UnackedEntry{
					ID:          newID(),
					Fingerprint: e.Fingerprint,
					Expiry:      millis(expiry),
				},
			)
			if err != nil || !inserted || body == "" {
				return err
			}

			// The attempt count only matters when it is bounded.
			_, err = q.driver.UpdateMessageBody(ctx, tx, q.tables, e.Fingerprint, body, millis(now))
			return err
		})
	})

	if err != nil {
		// The transaction was rolled back, so the entry is not in flight.
		return false, err
	}

	return inserted, nil
}

// decode parses a message body read from the database.
func (q *Queue) decode(body sql.NullString) (message.Message, error) {
	if !body.Valid {
		return message.Message{}, errMissingBody
	}

	return message.Unmarshal(body.String, q.opts.Migrator)
}

// purge removes all trace of a fingerprint from the queue's tables.
func (q *Queue) purge(ctx context.Context, fp string, cause error) error {
	mlog.LogPurge(q.logger, fp, cause)

	err := q.write(ctx, func(ctx context.Context) error {
		return q.withTx(ctx, func(tx *sql.Tx) error {
			return q.driver.PurgeFingerprint(ctx, tx, q.tables, fp)
		})
	})
	if err != nil {
		return err
	}

	q.notify(MessagePurged{
		Queue:       q.name,
		Fingerprint: fp,
		Cause:       cause,
	})

	return nil
}

// inChunks sorts ids and calls fn with successive chunks of pollChunkSize
// IDs, under the write retry budget.
//
// Sorting keeps the order in which rows are locked consistent across pollers.
func (q *Queue) inChunks(
	ctx context.Context,
	ids []string,
	fn func(context.Context, []string) error,
) error {
	slices.Sort(ids)

	var err error
	for chunk := range slices.Chunk(ids, pollChunkSize) {
		err = multierr.Append(err, q.write(ctx, func(ctx context.Context) error {
			return fn(ctx, chunk)
		}))
	}

	return err
}

// candidateCount returns the number of ready entries to read when attempting
// to claim limit entries.
func candidateCount(limit int) int {
	return max(10, 3*limit)
}
