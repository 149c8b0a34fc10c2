package sqlqueue

import (
	"context"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/sqlqueue/message"
	"golang.org/x/sync/semaphore"
)

var (
	// DefaultWorkerConcurrency is the default number of messages a worker
	// handles at the same time.
	DefaultWorkerConcurrency = 10

	// DefaultPollInterval is the default duration a worker waits before polling
	// again when no messages are ready.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultWorkerBackoff is the default backoff strategy used by a worker
	// when polling fails.
	DefaultWorkerBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(100*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 30*time.Second),
	)
)

// Handler handles messages delivered by a worker.
type Handler interface {
	// HandleMessage handles a single message.
	//
	// If it returns nil the message is acknowledged. Otherwise, the message
	// is redelivered once its acknowledgement timeout elapses.
	HandleMessage(ctx context.Context, m message.Message) error
}

// HandlerFunc is an adaptor that allows a function to be used as a Handler.
type HandlerFunc func(ctx context.Context, m message.Message) error

// HandleMessage returns fn(ctx, m).
func (fn HandlerFunc) HandleMessage(ctx context.Context, m message.Message) error {
	return fn(ctx, m)
}

// Worker polls a queue and passes each message to a handler.
type Worker struct {
	// Queue is the queue to consume.
	Queue *Queue

	// Handler handles each message.
	Handler Handler

	// Concurrency is the maximum number of messages handled at once. If it is
	// non-positive, DefaultWorkerConcurrency is used.
	Concurrency int

	// PollInterval is the duration to wait before polling again when no
	// messages are ready. If it is zero, DefaultPollInterval is used.
	PollInterval time.Duration

	// BackoffStrategy is used to delay polling after a failure. If it is nil,
	// DefaultWorkerBackoff is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for log messages about handler failures. If it is
	// nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Run polls for messages until ctx is canceled.
//
// It waits for any messages that are being handled before returning. It always
// returns a non-nil error.
func (w *Worker) Run(ctx context.Context) error {
	n := int64(w.Concurrency)
	if n <= 0 {
		n = int64(DefaultWorkerConcurrency)
	}

	interval := w.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	strategy := w.BackoffStrategy
	if strategy == nil {
		strategy = DefaultWorkerBackoff
	}

	sem := semaphore.NewWeighted(n)
	counter := backoff.Counter{Strategy: strategy}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		free, err := acquireFree(ctx, sem, n)
		if err != nil {
			return err
		}

		var delivered int64

		err = w.Queue.Poll(
			ctx,
			int(free),
			func(ctx context.Context, m message.Message, ack AckFunc) {
				delivered++
				wg.Add(1)

				go func() {
					defer wg.Done()
					defer sem.Release(1)
					w.handle(ctx, m, ack)
				}()
			},
		)

		sem.Release(free - delivered)

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logging.Log(w.Logger, "unable to poll the '%s' queue: %s", w.Queue.Name(), err)

			if err := counter.Sleep(ctx, err); err != nil {
				return err
			}

			continue
		}

		counter.Reset()

		if delivered == 0 {
			if err := linger.Sleep(ctx, interval); err != nil {
				return err
			}
		}
	}
}

// handle passes m to the handler and acknowledges it if handling succeeds.
func (w *Worker) handle(ctx context.Context, m message.Message, ack AckFunc) {
	if err := w.Handler.HandleMessage(ctx, m); err != nil {
		logging.Log(w.Logger, "unable to handle %s message: %s", m.Kind, err)
		return
	}

	if err := ack(ctx); err != nil {
		logging.Log(w.Logger, "unable to acknowledge %s message: %s", m.Kind, err)
	}
}

// acquireFree blocks until at least one slot is available in sem, then
// acquires as many of the n slots as are free without blocking.
func acquireFree(ctx context.Context, sem *semaphore.Weighted, n int64) (int64, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}

	free := int64(1)
	for free < n && sem.TryAcquire(1) {
		free++
	}

	return free, nil
}
