package retry

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/sqlqueue/persistence"
)

// Budget bounds the number of times Do attempts an operation.
type Budget struct {
	// Attempts is the maximum number of times the operation is attempted,
	// including the first. Values less than 1 are treated as 1.
	Attempts int

	// Strategy computes the delay between attempts. If it is nil, attempts
	// are made without delay.
	Strategy backoff.Strategy
}

var (
	// DefaultWriteBudget is the budget used for operations that modify the
	// database.
	DefaultWriteBudget = Budget{
		Attempts: 5,
		Strategy: backoff.WithTransforms(
			backoff.Exponential(25*time.Millisecond),
			linger.Limiter(25*time.Millisecond, 100*time.Millisecond),
			linger.ProportionalJitter(0.5),
		),
	}

	// DefaultReadBudget is the budget used for operations that only read from
	// the database.
	DefaultReadBudget = Budget{
		Attempts: 3,
		Strategy: backoff.Constant(50 * time.Millisecond),
	}
)

// Do calls fn until it succeeds, returns a permanent error, or the budget is
// exhausted.
//
// permanent classifies driver-specific errors that must not be retried. It may
// be nil. Errors for which IsPermanent() returns true are never retried.
func Do(
	ctx context.Context,
	b Budget,
	permanent func(error) bool,
	fn func(context.Context) error,
) error {
	counter := backoff.Counter{
		Strategy: b.Strategy,
	}

	if counter.Strategy == nil {
		counter.Strategy = backoff.Constant(0)
	}

	for n := 1; ; n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if IsPermanent(err) || (permanent != nil && permanent(err)) {
			return err
		}

		if n >= b.Attempts {
			return err
		}

		if err := counter.Sleep(ctx, err); err != nil {
			return err
		}
	}
}

// IsPermanent returns true if err can never succeed on retry, regardless of
// the database in use.
func IsPermanent(err error) bool {
	return errors.Is(err, persistence.ErrUnsupported) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
