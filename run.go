package sqlqueue

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"golang.org/x/sync/errgroup"
)

// Run periodically sweeps for expired leases and compacts orphaned message
// bodies until ctx is canceled.
//
// Failures are logged and retried at the next interval. It always returns a
// non-nil error.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return q.every(ctx, q.opts.RetryInterval, "retry sweep", q.Retry)
	})

	g.Go(func() error {
		return q.every(ctx, q.opts.CleanupInterval, "message cleanup", func(ctx context.Context) error {
			_, err := q.CleanupMessages(ctx)
			return err
		})
	})

	return g.Wait()
}

// every calls fn repeatedly, sleeping for the given interval between calls,
// until ctx is canceled.
func (q *Queue) every(
	ctx context.Context,
	interval time.Duration,
	desc string,
	fn func(context.Context) error,
) error {
	for {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logging.Log(q.logger, "%s failed: %s", desc, err)
		}

		if err := linger.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
