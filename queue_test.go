//go:build cgo
// +build cgo

package sqlqueue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/fixtures"
	"github.com/dogmatiq/sqlqueue/internal/tracing"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/sqlite"
	"github.com/dogmatiq/sqlqueue/retry"
	"github.com/dogmatiq/sqltest"
	"github.com/dogmatiq/sqltest/sqlstub"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// loggedMessages returns the text of each message written to l.
func loggedMessages(l *logging.BufferedLogger) []string {
	var messages []string
	for _, m := range l.Messages() {
		messages = append(messages, m.Message)
	}
	return messages
}

// containsSubstring returns true if any of messages contains s.
func containsSubstring(messages []string, s string) bool {
	for _, m := range messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

var _ = Describe("type Queue", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		database *sqltest.Database
		db       *sql.DB
		driver   *fixtures.DriverStub
		clock    *fixtures.Clock
		observer *fixtures.ObserverStub
		logger   *logging.BufferedLogger
	)

	newQueue := func(options ...Option) *Queue {
		q, err := New(
			ctx,
			db,
			"<queue>",
			append(
				[]Option{
					WithDriver(driver),
					WithClock(clock.Now),
					WithObserver(observer),
					WithLogger(logger),
					WithReadRetryBudget(retry.Budget{Attempts: 1}),
					WithWriteRetryBudget(retry.Budget{Attempts: 3}),
				},
				options...,
			)...,
		)
		Expect(err).ShouldNot(HaveOccurred())
		return q
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		var err error
		database, err = sqltest.NewDatabase(ctx, sqltest.SQLite3Driver, sqltest.SQLite)
		Expect(err).ShouldNot(HaveOccurred())

		db, err = database.Open()
		Expect(err).ShouldNot(HaveOccurred())
		db.SetMaxOpenConns(1)

		driver = &fixtures.DriverStub{Driver: sqlite.Driver}
		clock = fixtures.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		observer = &fixtures.ObserverStub{}
		logger = &logging.BufferedLogger{}
	})

	AfterEach(func() {
		err := database.Close()
		Expect(err).ShouldNot(HaveOccurred())

		cancel()
	})

	Describe("func New()", func() {
		It("selects a compatible driver if none is given", func() {
			q, err := New(ctx, db, "<queue>", WithClock(clock.Now))
			Expect(err).ShouldNot(HaveOccurred())

			err = q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("returns an error if the name is empty", func() {
			_, err := New(ctx, db, "")
			Expect(err).To(MatchError("queue name must not be empty"))
		})

		It("returns an error if no compatible driver is found", func() {
			stub := sql.OpenDB(&sqlstub.Connector{})
			defer stub.Close()

			_, err := New(ctx, stub, "<queue>")
			Expect(err).To(HaveOccurred())
		})

		It("logs the queue configuration", func() {
			newQueue(WithOwner("<owner>"))

			Expect(containsSubstring(loggedMessages(logger), "owner <owner>")).To(BeTrue())
		})

		It("prefixes log messages with the queue name", func() {
			newQueue()

			for _, m := range loggedMessages(logger) {
				Expect(m).To(HavePrefix("[sqlqueue <queue>] "))
			}
		})
	})

	Describe("func Push()", func() {
		It("retries transient failures", func() {
			var calls atomic.Int32
			driver.UpsertMessageFunc = func(
				ctx context.Context,
				db persistence.DB,
				t persistence.Tables,
				r persistence.MessageRecord,
			) error {
				if calls.Add(1) < 3 {
					return errors.New("<transient>")
				}
				return sqlite.Driver.UpsertMessage(ctx, db, t, r)
			}

			q := newQueue()

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(calls.Load()).To(BeEquivalentTo(3))

			s, err := q.ReadState(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(s.Depth).To(Equal(1))
		})

		It("returns the last error once the retry budget is exhausted", func() {
			driver.UpsertMessageFunc = func(
				context.Context,
				persistence.DB,
				persistence.Tables,
				persistence.MessageRecord,
			) error {
				return errors.New("<error>")
			}

			q := newQueue()

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).To(MatchError("<error>"))
		})

		It("does not retry unsupported operations", func() {
			var calls atomic.Int32
			driver.UpsertMessageFunc = func(
				context.Context,
				persistence.DB,
				persistence.Tables,
				persistence.MessageRecord,
			) error {
				calls.Add(1)
				return persistence.UnsupportedError{Cause: errors.New("<error>")}
			}

			q := newQueue()

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).To(MatchError(persistence.ErrUnsupported))
			Expect(calls.Load()).To(BeEquivalentTo(1))
		})

		It("records a span", func() {
			recorder := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			q := newQueue(WithTracerProvider(tp))

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			spans := recorder.Ended()
			Expect(spans).To(HaveLen(1))
			Expect(spans[0].Name()).To(Equal("sqlqueue.push"))
			Expect(spans[0].Attributes()).To(ContainElement(
				tracing.MessageFingerprintKey.String(message.MustFingerprint(fixtures.MessageA1)),
			))
		})
	})

	Describe("func Poll()", func() {
		It("returns an error if the ready messages can not be read", func() {
			driver.SelectReadyIDsFunc = func(context.Context, *sql.DB, persistence.Tables, int64, int) ([]string, error) {
				return nil, errors.New("<error>")
			}

			q := newQueue()

			err := q.Poll(ctx, 1, func(context.Context, message.Message, AckFunc) {
				Fail("unexpected call")
			})
			Expect(err).To(MatchError("<error>"))
		})

		It("claims messages in a later pass when another poller wins the earlier one", func() {
			q := newQueue()

			for i := 0; i < 5; i++ {
				err := q.Push(ctx, fixtures.NewMessage(fmt.Sprintf("<value %d>", i)), 0)
				Expect(err).ShouldNot(HaveOccurred())
			}

			var passes int
			driver.LockQueueEntriesFunc = func(
				ctx context.Context,
				db *sql.DB,
				t persistence.Tables,
				ids []string,
				m persistence.LockMarker,
			) (int64, error) {
				passes++

				if passes == 1 {
					// Another poller locks the same rows first.
					other := persistence.NewLockMarker("<other>", clock.Now())
					_, err := sqlite.Driver.LockQueueEntries(ctx, db, t, ids, other)
					Expect(err).ShouldNot(HaveOccurred())
				}

				return sqlite.Driver.LockQueueEntries(ctx, db, t, ids, m)
			}

			var delivered int
			err := q.Poll(ctx, 1, func(context.Context, message.Message, AckFunc) {
				delivered++
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(passes).To(Equal(2))
			Expect(delivered).To(Equal(1))

			s, err := q.ReadState(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(s.Depth).To(Equal(4))
			Expect(s.Unacked).To(Equal(1))
		})

		It("releases a message that can not be moved to the unacked table", func() {
			q := newQueue()

			err := q.Push(ctx, fixtures.MessageA1.WithMaxAttempts(3), 0)
			Expect(err).ShouldNot(HaveOccurred())

			driver.UpdateMessageBodyFunc = func(
				context.Context,
				persistence.DB,
				persistence.Tables,
				string,
				string,
				int64,
			) (bool, error) {
				return false, errors.New("<error>")
			}

			err = q.Poll(ctx, 1, func(context.Context, message.Message, AckFunc) {
				Fail("unexpected call")
			})
			Expect(err).To(MatchError(ContainSubstring("<error>")))

			s, err := q.ReadState(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(s).To(Equal(persistence.State{Depth: 1, Ready: 1}))

			driver.UpdateMessageBodyFunc = nil

			var delivered []message.Message
			err = q.Poll(ctx, 1, func(_ context.Context, m message.Message, _ AckFunc) {
				delivered = append(delivered, m)
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(delivered).To(HaveLen(1))
			Expect(delivered[0].Attributes.Attempts).To(Equal(1))
		})
	})

	Describe("func Retry()", func() {
		It("invokes the dead message callbacks even if the dead-letter write fails", func() {
			driver.UpsertDeadLetterFunc = func(context.Context, *sql.DB, persistence.Tables, persistence.DeadLetterRecord) error {
				return errors.New("<error>")
			}

			var dead []message.Message
			q := newQueue(
				WithMaxAckRetries(1),
				WithDeadMessageCallback(func(_ context.Context, name string, m message.Message) {
					Expect(name).To(Equal("<queue>"))
					dead = append(dead, m)
				}),
			)

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			err = q.Poll(ctx, 1, func(context.Context, message.Message, AckFunc) {})
			Expect(err).ShouldNot(HaveOccurred())

			clock.Advance(DefaultAckTimeout)

			err = q.Retry(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(dead).To(HaveLen(1))
			Expect(containsSubstring(loggedMessages(logger), "unable to record dead message")).To(BeTrue())

			_, ok, err := q.DeadLetter(ctx, message.MustFingerprint(fixtures.MessageA1))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func ReadState()", func() {
		It("returns an error if the state can not be read", func() {
			driver.SelectStateFunc = func(context.Context, *sql.DB, persistence.Tables, int64) (persistence.State, error) {
				return persistence.State{}, errors.New("<error>")
			}

			q := newQueue()

			_, err := q.ReadState(ctx)
			Expect(err).To(MatchError("<error>"))
		})
	})

	Describe("func Run()", func() {
		It("periodically returns expired messages to the queue", func() {
			q := newQueue(
				WithRetryInterval(5*time.Millisecond),
				WithCleanupInterval(5*time.Millisecond),
			)

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			err = q.Poll(ctx, 1, func(context.Context, message.Message, AckFunc) {})
			Expect(err).ShouldNot(HaveOccurred())

			clock.Advance(DefaultAckTimeout)

			runCtx, stop := context.WithCancel(ctx)
			result := make(chan error, 1)
			go func() {
				result <- q.Run(runCtx)
			}()

			Eventually(func() int {
				return observer.Count(MessageRetried{})
			}).Should(Equal(1))

			stop()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))
		})

		It("periodically removes orphaned message bodies", func() {
			q := newQueue(
				WithRetryInterval(5*time.Millisecond),
				WithCleanupInterval(5*time.Millisecond),
			)

			err := q.Push(ctx, fixtures.MessageA1, 0)
			Expect(err).ShouldNot(HaveOccurred())

			err = q.Poll(ctx, 1, func(ctx context.Context, _ message.Message, ack AckFunc) {
				Expect(ack(ctx)).To(Succeed())
			})
			Expect(err).ShouldNot(HaveOccurred())

			clock.Advance(3 * DefaultAckTimeout)

			runCtx, stop := context.WithCancel(ctx)
			result := make(chan error, 1)
			go func() {
				result <- q.Run(runCtx)
			}()

			Eventually(func() int {
				return observer.Count(MessagesCleaned{})
			}).Should(Equal(1))

			stop()
			Eventually(result).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
