package sqlqueue

import (
	"context"
	"math/rand"
	"slices"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// CleanupMessages removes message bodies that are referenced by neither the
// queue nor the unacked table and have not been updated within the cleanup
// age.
//
// It returns the number of bodies removed. Each call inspects at most
// CleanupBatchSize bodies; it is called periodically by Run().
func (q *Queue) CleanupMessages(ctx context.Context) (_ int, err error) {
	ctx, span := q.startSpan(ctx, "cleanup")
	defer func() { tracing.End(span, err) }()

	start := q.now()
	before := millis(start.Add(-q.opts.CleanupAge))

	// Alternate between the oldest and the newest stale bodies so that
	// concurrent compactors don't all work on the same rows.
	desc := rand.Intn(2) == 0

	var candidates []persistence.OrphanCandidate
	if err := q.read(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = q.driver.SelectOrphanCandidates(
			ctx,
			q.db,
			q.tables,
			before,
			desc,
			CleanupBatchSize,
		)
		return err
	}); err != nil {
		return 0, err
	}

	var orphans []string
	for _, c := range candidates {
		if len(orphans) == cleanupCandidateLimit {
			break
		}

		if c.IsOrphaned() {
			orphans = append(orphans, c.MessageID)
		}
	}

	var deleted int64
	for chunk := range slices.Chunk(orphans, cleanupChunkSize) {
		if err := q.write(ctx, func(ctx context.Context) error {
			// The staleness predicate is repeated so that a body refreshed by
			// a concurrent push survives.
			n, err := q.driver.DeleteMessages(ctx, q.db, q.tables, chunk, before)
			if err != nil {
				return err
			}

			deleted += n
			return nil
		}); err != nil {
			return int(deleted), err
		}
	}

	span.SetAttributes(tracing.MessageCountKey.Int64(deleted))

	if deleted > 0 {
		logging.Debug(
			q.logger,
			"deleted %d completed message(s), %d attempted in %s",
			deleted,
			len(orphans),
			q.now().Sub(start),
		)

		q.notify(MessagesCleaned{
			Queue: q.name,
			Count: int(deleted),
		})
	}

	return int(deleted), nil
}
