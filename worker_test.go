//go:build cgo
// +build cgo

package sqlqueue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	. "github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/fixtures"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/sqlite"
	"github.com/dogmatiq/sqlqueue/retry"
	"github.com/dogmatiq/sqltest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Worker", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		database *sqltest.Database
		db       *sql.DB
		driver   *fixtures.DriverStub
		logger   *logging.BufferedLogger
		queue    *Queue
		handler  *fixtures.HandlerStub
		worker   *Worker
		result   chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		var err error
		database, err = sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
		Expect(err).ShouldNot(HaveOccurred())

		db, err = database.Open()
		Expect(err).ShouldNot(HaveOccurred())
		db.SetMaxOpenConns(1)

		driver = &fixtures.DriverStub{Driver: sqlite.Driver}
		logger = &logging.BufferedLogger{}

		queue, err = New(
			ctx,
			db,
			"<queue>",
			WithDriver(driver),
			WithLogger(logger),
			WithReadRetryBudget(retry.Budget{Attempts: 1}),
		)
		Expect(err).ShouldNot(HaveOccurred())

		handler = &fixtures.HandlerStub{}

		worker = &Worker{
			Queue:           queue,
			Handler:         handler,
			Concurrency:     2,
			PollInterval:    5 * time.Millisecond,
			BackoffStrategy: backoff.Constant(5 * time.Millisecond),
			Logger:          logger,
		}

		result = make(chan error, 1)
	})

	AfterEach(func() {
		cancel()
		Eventually(result).Should(Receive())

		err := database.Close()
		Expect(err).ShouldNot(HaveOccurred())
	})

	run := func() {
		go func() {
			result <- worker.Run(ctx)
		}()
	}

	state := func() persistence.State {
		s, err := queue.ReadState(ctx)
		Expect(err).ShouldNot(HaveOccurred())
		return s
	}

	Describe("func Run()", func() {
		It("handles and acknowledges each message", func() {
			for i := 0; i < 5; i++ {
				err := queue.Push(ctx, fixtures.NewMessage(fmt.Sprintf("M%d", i)), 0)
				Expect(err).ShouldNot(HaveOccurred())
			}

			run()

			Eventually(handler.Handled).Should(HaveLen(5))
			Eventually(state).Should(Equal(persistence.State{Orphaned: 5}))
		})

		It("does not handle more messages at once than its concurrency limit", func() {
			var (
				active  = make(chan struct{}, 10)
				release = make(chan struct{})
			)

			handler.HandleMessageFunc = func(ctx context.Context, _ message.Message) error {
				active <- struct{}{}
				select {
				case <-release:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			for i := 0; i < 5; i++ {
				err := queue.Push(ctx, fixtures.NewMessage(fmt.Sprintf("M%d", i)), 0)
				Expect(err).ShouldNot(HaveOccurred())
			}

			run()

			Eventually(active).Should(HaveLen(2))
			Consistently(active, 50*time.Millisecond).Should(HaveLen(2))

			close(release)
			Eventually(handler.Handled).Should(HaveLen(5))
		})

		It("leaves messages unacknowledged if the handler fails", func() {
			handler.HandleMessageFunc = func(context.Context, message.Message) error {
				return errors.New("<error>")
			}

			err := queue.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			run()

			Eventually(handler.Handled).Should(HaveLen(1))
			Consistently(handler.Handled, 50*time.Millisecond).Should(HaveLen(1))
			Expect(state()).To(Equal(persistence.State{Unacked: 1}))
		})

		It("keeps polling after a failure", func() {
			var failed bool
			driver.SelectReadyIDsFunc = func(
				ctx context.Context,
				db *sql.DB,
				t persistence.Tables,
				now int64,
				n int,
			) ([]string, error) {
				if !failed {
					failed = true
					return nil, errors.New("<error>")
				}
				return sqlite.Driver.SelectReadyIDs(ctx, db, t, now, n)
			}

			err := queue.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			run()

			Eventually(handler.Handled).Should(HaveLen(1))
			Expect(containsSubstring(loggedMessages(logger), "unable to poll the '<queue>' queue")).To(BeTrue())
		})

		It("returns an error when the context is canceled", func() {
			run()
			cancel()

			Eventually(result).Should(Receive(MatchError(context.Canceled)))
			result <- nil // satisfy AfterEach
		})
	})
})
