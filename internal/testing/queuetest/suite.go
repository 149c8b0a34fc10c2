package queuetest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/fixtures"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// In is a container for values that are provided to the driver-specific
// "before" function from the test-suite.
type In struct {
	// QueueName is the name of the queue used by the tests.
	QueueName string
}

// Out is a container for values that are provided by the driver-specific
// "before" function to the test-suite.
type Out struct {
	// DB is the database in which the queue is stored.
	DB *sql.DB

	// Driver is the driver to be tested.
	Driver sqlpersistence.Driver

	// TestTimeout is the maximum duration allowed for each test.
	TestTimeout time.Duration
}

const (
	// DefaultTestTimeout is the default test timeout.
	DefaultTestTimeout = 10 * time.Second

	// ackTimeout is the acknowledgement timeout used by the queues under test.
	ackTimeout = 1 * time.Minute

	// lockTTL is the lock TTL used by the queues under test.
	lockTTL = 30 * time.Second
)

// delivery is a message delivered to a poll callback.
type delivery struct {
	Message message.Message
	Ack     sqlqueue.AckFunc
}

// Declare declares generic behavioral tests for a specific driver
// implementation.
func Declare(
	before func(context.Context, In) Out,
	after func(),
) {
	var (
		ctx      context.Context
		cancel   func()
		in       In
		out      Out
		clock    *fixtures.Clock
		observer *fixtures.ObserverStub
		logger   *logging.BufferedLogger
		queue    *sqlqueue.Queue
		dead     []message.Message
	)

	newQueue := func(options ...sqlqueue.Option) *sqlqueue.Queue {
		q, err := sqlqueue.New(
			ctx,
			out.DB,
			in.QueueName,
			append(
				[]sqlqueue.Option{
					sqlqueue.WithDriver(out.Driver),
					sqlqueue.WithClock(clock.Now),
					sqlqueue.WithObserver(observer),
					sqlqueue.WithLogger(logger),
					sqlqueue.WithAckTimeout(ackTimeout),
					sqlqueue.WithLockTTL(lockTTL),
					sqlqueue.WithDeadMessageCallback(
						func(_ context.Context, _ string, m message.Message) {
							dead = append(dead, m)
						},
					),
				},
				options...,
			)...,
		)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		return q
	}

	poll := func(q *sqlqueue.Queue, n int) []delivery {
		var deliveries []delivery

		err := q.Poll(
			ctx,
			n,
			func(_ context.Context, m message.Message, ack sqlqueue.AckFunc) {
				deliveries = append(deliveries, delivery{m, ack})
			},
		)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		return deliveries
	}

	push := func(m message.Message, delay time.Duration) {
		err := queue.Push(ctx, m, delay)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	state := func() persistence.State {
		s, err := queue.ReadState(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		return s
	}

	retry := func() {
		err := queue.Retry(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	// expire abandons the message currently in-flight by letting its lease
	// expire, sweeping, then waiting for it to become ready again.
	expire := func() {
		clock.Advance(ackTimeout)
		retry()
		clock.Advance(lockTTL)
	}

	// insertRaw places a body and queue entry directly in the database,
	// bypassing the encoding performed by Push().
	insertRaw := func(fp, body string) {
		now := clock.Now().UnixMilli()

		if body != "" {
			err := out.Driver.UpsertMessage(
				ctx,
				out.DB,
				queue.Tables(),
				persistence.MessageRecord{
					ID:          "raw-" + fp,
					Fingerprint: fp,
					Body:        body,
					UpdatedAt:   now,
				},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		}

		err := out.Driver.UpsertQueueEntry(
			ctx,
			out.DB,
			queue.Tables(),
			persistence.QueueEntry{
				ID:          "raw-" + fp,
				Fingerprint: fp,
				Delivery:    now,
				Locked:      persistence.Unlocked,
			},
		)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	ginkgo.BeforeEach(func() {
		setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelSetup()

		in = In{
			QueueName: "test-queue",
		}

		out = before(setupCtx, in)

		if out.TestTimeout <= 0 {
			out.TestTimeout = DefaultTestTimeout
		}

		ctx, cancel = context.WithTimeout(context.Background(), out.TestTimeout)

		clock = fixtures.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		observer = &fixtures.ObserverStub{}
		logger = &logging.BufferedLogger{}
		dead = nil

		queue = newQueue(sqlqueue.WithOwner("<owner>"))
	})

	ginkgo.AfterEach(func() {
		if queue != nil {
			err := out.Driver.DropSchema(ctx, out.DB, queue.Tables())
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		}

		if after != nil {
			after()
		}

		cancel()
	})

	ginkgo.Describe("func Push()", func() {
		ginkgo.It("makes the message available for polling", func() {
			push(fixtures.MessageA1, 0)

			deliveries := poll(queue, 10)
			gomega.Expect(deliveries).To(gomega.HaveLen(1))

			m := deliveries[0].Message
			gomega.Expect(m.Kind).To(gomega.Equal("a"))

			var p fixtures.Payload
			err := m.Decode(&p)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(p.Value).To(gomega.Equal("A1"))
		})

		ginkgo.It("does not deliver the message before its delay has elapsed", func() {
			push(fixtures.MessageA1, 10*time.Second)

			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())

			clock.Advance(10 * time.Second)
			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("keeps a single queue entry with the delivery time of the last push", func() {
			push(fixtures.MessageA1, 1*time.Minute)
			push(fixtures.MessageA1, 2*time.Minute)
			push(fixtures.MessageA1, 3*time.Minute)

			gomega.Expect(state().Depth).To(gomega.Equal(1))

			clock.Advance(2 * time.Minute)
			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())

			clock.Advance(1 * time.Minute)
			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("allows an earlier delivery time to replace a later one", func() {
			push(fixtures.MessageA1, 1*time.Hour)
			push(fixtures.MessageA1, 0)

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("notifies observers", func() {
			push(fixtures.MessageA1, 5*time.Second)

			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.MessagePushed{
					Queue:       in.QueueName,
					Fingerprint: message.MustFingerprint(fixtures.MessageA1),
					Message:     fixtures.MessageA1,
					DeliverAt:   clock.Now().Add(5 * time.Second),
				},
			))
		})

		ginkgo.It("panics if the delay is negative", func() {
			gomega.Expect(func() {
				queue.Push(ctx, fixtures.MessageA1, -1) // nolint:errcheck
			}).To(gomega.Panic())
		})
	})

	ginkgo.Describe("func Poll()", func() {
		ginkgo.It("delivers no more than the given number of messages", func() {
			push(fixtures.MessageA1, 0)
			push(fixtures.MessageA2, 0)
			push(fixtures.MessageA3, 0)

			gomega.Expect(poll(queue, 2)).To(gomega.HaveLen(2))
			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 1, Ready: 1, Unacked: 2},
			))
		})

		ginkgo.It("does not redeliver a message that is awaiting acknowledgement", func() {
			push(fixtures.MessageA1, 0)

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())
		})

		ginkgo.It("increments the attempt count of each delivery", func() {
			push(fixtures.MessageA1.WithMaxAttempts(5), 0)

			deliveries := poll(queue, 1)
			gomega.Expect(deliveries[0].Message.Attributes.Attempts).To(gomega.Equal(1))

			expire()

			deliveries = poll(queue, 1)
			gomega.Expect(deliveries).To(gomega.HaveLen(1))
			gomega.Expect(deliveries[0].Message.Attributes.Attempts).To(gomega.Equal(2))
			gomega.Expect(deliveries[0].Message.Attributes.AckAttempts).To(gomega.Equal(1))
		})

		ginkgo.It("does not deliver the same message to concurrent pollers", func() {
			const count = 12

			for i := 0; i < count; i++ {
				push(fixtures.NewMessage(fmt.Sprintf("M%d", i)), 0)
			}

			var (
				m    sync.Mutex
				seen = map[string]int{}
				wg   sync.WaitGroup
			)

			record := func(_ context.Context, x message.Message, _ sqlqueue.AckFunc) {
				m.Lock()
				defer m.Unlock()
				seen[message.MustFingerprint(x)]++
			}

			for i := 0; i < 4; i++ {
				q := newQueue(sqlqueue.WithOwner(fmt.Sprintf("<worker-%d>", i)))

				wg.Add(1)
				go func() {
					defer ginkgo.GinkgoRecover()
					defer wg.Done()

					for j := 0; j < 3; j++ {
						err := q.Poll(ctx, 2, record)
						gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
					}
				}()
			}

			wg.Wait()

			for {
				n := len(seen)
				err := queue.Poll(ctx, 10, record)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				if len(seen) == n {
					break
				}
			}

			gomega.Expect(seen).To(gomega.HaveLen(count))
			for fp, n := range seen {
				gomega.Expect(n).To(gomega.Equal(1), fp)
			}
		})

		ginkgo.It("notifies observers of each delivery", func() {
			push(fixtures.MessageA1, 0)
			poll(queue, 10)

			gomega.Expect(observer.Count(sqlqueue.MessageProcessing{})).To(gomega.Equal(1))
			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.QueuePolled{
					Queue:     in.QueueName,
					Claimed:   1,
					Delivered: 1,
				},
			))
		})

		ginkgo.It("notifies observers when no messages are ready", func() {
			poll(queue, 10)

			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.QueuePolled{Queue: in.QueueName},
			))
		})

		ginkgo.It("applies the migrator to each message body", func() {
			q := newQueue(
				sqlqueue.WithMigrator(
					message.MigratorFunc(func(data []byte) ([]byte, error) {
						return bytes.ReplaceAll(data, []byte(`"kind":"a"`), []byte(`"kind":"a.v2"`)), nil
					}),
				),
			)

			push(fixtures.MessageA1, 0)

			deliveries := poll(q, 10)
			gomega.Expect(deliveries).To(gomega.HaveLen(1))
			gomega.Expect(deliveries[0].Message.Kind).To(gomega.Equal("a.v2"))
		})

		ginkgo.It("purges messages that can not be migrated", func() {
			q := newQueue(
				sqlqueue.WithMigrator(
					message.MigratorFunc(func([]byte) ([]byte, error) {
						return nil, errors.New("<error>")
					}),
				),
			)

			push(fixtures.MessageA1, 0)

			gomega.Expect(poll(q, 10)).To(gomega.BeEmpty())
			gomega.Expect(observer.Count(sqlqueue.MessagePurged{})).To(gomega.Equal(1))
			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))
		})

		ginkgo.It("purges messages with a malformed body", func() {
			insertRaw("<malformed>", `{"kind":`)

			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())
			gomega.Expect(observer.Count(sqlqueue.MessagePurged{})).To(gomega.Equal(1))
			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))
		})

		ginkgo.It("purges queue entries with no message body", func() {
			insertRaw("<missing>", "")

			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())
			gomega.Expect(observer.Count(sqlqueue.MessagePurged{})).To(gomega.Equal(1))
			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))
		})

		ginkgo.It("delivers valid messages alongside malformed ones", func() {
			insertRaw("<malformed>", `not json`)
			push(fixtures.MessageA1, 0)

			deliveries := poll(queue, 10)
			gomega.Expect(deliveries).To(gomega.HaveLen(1))
			gomega.Expect(deliveries[0].Message.Kind).To(gomega.Equal("a"))
		})

		ginkgo.It("panics if the limit is not positive", func() {
			gomega.Expect(func() {
				queue.Poll(ctx, 0, nil) // nolint:errcheck
			}).To(gomega.Panic())
		})
	})

	ginkgo.Describe("func Ack()", func() {
		ginkgo.It("removes the message from the set awaiting acknowledgement", func() {
			push(fixtures.MessageA1, 0)

			deliveries := poll(queue, 10)
			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Orphaned: 1},
			))
		})

		ginkgo.It("prevents the message from being retried", func() {
			push(fixtures.MessageA1, 0)

			deliveries := poll(queue, 10)
			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			clock.Advance(ackTimeout)
			retry()

			gomega.Expect(observer.Count(sqlqueue.MessageRetried{})).To(gomega.Equal(0))
			gomega.Expect(observer.Count(sqlqueue.MessageDead{})).To(gomega.Equal(0))
			gomega.Expect(state().Depth).To(gomega.Equal(0))
		})

		ginkgo.It("does nothing if the message is not awaiting acknowledgement", func() {
			err := queue.Ack(ctx, "<unknown>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			push(fixtures.MessageA1, 0)
			deliveries := poll(queue, 10)

			err = deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		})

		ginkgo.It("completes scenario A", func() {
			m := message.MustNew("task", map[string]string{"task": "A"})
			push(m, 0)

			var calls []delivery
			err := queue.Poll(
				ctx,
				1,
				func(_ context.Context, m message.Message, ack sqlqueue.AckFunc) {
					calls = append(calls, delivery{m, ack})
				},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(calls).To(gomega.HaveLen(1))

			var p map[string]string
			err = calls[0].Message.Decode(&p)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(p).To(gomega.Equal(map[string]string{"task": "A"}))

			err = calls[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(poll(queue, 1)).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("func Reschedule()", func() {
		ginkgo.It("changes the delivery time of a queued message", func() {
			push(fixtures.MessageA1, 1*time.Hour)

			err := queue.Reschedule(ctx, fixtures.MessageA1, 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
			gomega.Expect(observer.Count(sqlqueue.MessageRescheduled{})).To(gomega.Equal(1))
		})

		ginkgo.It("notifies observers if the message is not queued", func() {
			err := queue.Reschedule(ctx, fixtures.MessageA1, 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.MessageNotFound{
					Queue:       in.QueueName,
					Fingerprint: message.MustFingerprint(fixtures.MessageA1),
				},
			))
			gomega.Expect(state().Depth).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("func Ensure()", func() {
		ginkgo.It("pushes the message if it is not present", func() {
			ok, err := queue.Ensure(ctx, fixtures.MessageA1, 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("does not push the message if it is already queued", func() {
			push(fixtures.MessageA1, 1*time.Hour)

			ok, err := queue.Ensure(ctx, fixtures.MessageA1, 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())
		})

		ginkgo.It("does not push the message if it is awaiting acknowledgement", func() {
			push(fixtures.MessageA1, 0)
			poll(queue, 10)

			ok, err := queue.Ensure(ctx, fixtures.MessageA1, 0)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Unacked: 1},
			))
		})
	})

	ginkgo.Describe("func Retry()", func() {
		ginkgo.It("redelivers a message whose lease has expired", func() {
			push(fixtures.MessageA1, 0)
			poll(queue, 10)

			clock.Advance(ackTimeout - time.Millisecond)
			retry()
			gomega.Expect(observer.Count(sqlqueue.MessageRetried{})).To(gomega.Equal(0))

			clock.Advance(time.Millisecond)
			retry()
			gomega.Expect(observer.Count(sqlqueue.MessageRetried{})).To(gomega.Equal(1))

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 1},
			))

			clock.Advance(lockTTL)
			deliveries := poll(queue, 10)
			gomega.Expect(deliveries).To(gomega.HaveLen(1))
			gomega.Expect(deliveries[0].Message.Attributes.AckAttempts).To(gomega.Equal(1))
		})

		ginkgo.It("honours the message's own acknowledgement timeout", func() {
			push(fixtures.MessageA1.WithAckTimeout(5*time.Second), 0)
			poll(queue, 10)

			clock.Advance(5 * time.Second)
			retry()

			gomega.Expect(observer.Count(sqlqueue.MessageRetried{})).To(gomega.Equal(1))
		})

		ginkgo.It("dead-letters a message with max attempts of 3 on its 4th lease expiry", func() {
			m := fixtures.MessageA1.WithMaxAttempts(3)
			push(m, 0)

			for i := 1; i <= 3; i++ {
				gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
				expire()
				gomega.Expect(dead).To(gomega.BeEmpty(), "dead-lettered after %d expiries", i)
			}

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
			clock.Advance(ackTimeout)
			retry()

			gomega.Expect(dead).To(gomega.HaveLen(1))
			gomega.Expect(dead[0].Attributes.Attempts).To(gomega.Equal(4))
			gomega.Expect(observer.Count(sqlqueue.MessageDead{})).To(gomega.Equal(1))
			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))

			clock.Advance(lockTTL)
			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())
		})

		ginkgo.It("dead-letters a message with max attempts of 1 once it has been abandoned twice", func() {
			m := message.MustNew("task", map[string]string{"task": "B"}).WithMaxAttempts(1)
			fp := message.MustFingerprint(m)
			push(m, 0)

			// A message is dead once its attempts exceed the maximum, so the
			// first expiry (attempts == 1) still requeues it.
			gomega.Expect(poll(queue, 1)).To(gomega.HaveLen(1))
			expire()
			gomega.Expect(dead).To(gomega.BeEmpty())

			gomega.Expect(poll(queue, 1)).To(gomega.HaveLen(1))
			clock.Advance(ackTimeout)
			retry()

			x, ok, err := queue.DeadLetter(ctx, fp)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(x.Kind).To(gomega.Equal("task"))

			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))
		})

		ginkgo.It("dead-letters a message once its lease has expired the maximum number of times", func() {
			push(fixtures.MessageA1, 0)

			for i := 1; i < sqlqueue.DefaultMaxAckRetries; i++ {
				gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
				expire()
				gomega.Expect(dead).To(gomega.BeEmpty(), "dead-lettered after %d expiries", i)
			}

			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
			clock.Advance(ackTimeout)
			retry()

			gomega.Expect(dead).To(gomega.HaveLen(1))
			gomega.Expect(dead[0].Attributes.AckAttempts).To(gomega.Equal(sqlqueue.DefaultMaxAckRetries))
		})

		ginkgo.It("honours the configured maximum number of lease expiries", func() {
			q := newQueue(sqlqueue.WithMaxAckRetries(1))
			push(fixtures.MessageA1, 0)

			gomega.Expect(poll(q, 10)).To(gomega.HaveLen(1))
			clock.Advance(ackTimeout)

			err := q.Retry(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(dead).To(gomega.HaveLen(1))
		})

		ginkgo.It("releases queue entries whose lock has outlived the lock TTL", func() {
			push(fixtures.MessageA1, 0)

			ids, err := out.Driver.SelectReadyIDs(ctx, out.DB, queue.Tables(), clock.Now().UnixMilli(), 10)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			// Simulate a poller that failed after claiming the entry.
			n, err := out.Driver.LockQueueEntries(
				ctx,
				out.DB,
				queue.Tables(),
				ids,
				persistence.NewLockMarker("<crashed>", clock.Now()),
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.BeEquivalentTo(1))

			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())

			clock.Advance(lockTTL - time.Millisecond)
			retry()
			gomega.Expect(poll(queue, 10)).To(gomega.BeEmpty())

			clock.Advance(time.Millisecond)
			retry()
			gomega.Expect(observer.Count(sqlqueue.LockReleased{})).To(gomega.Equal(1))
			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("releases queue entries with a malformed lock", func() {
			push(fixtures.MessageA1, 0)

			ids, err := out.Driver.SelectReadyIDs(ctx, out.DB, queue.Tables(), clock.Now().UnixMilli(), 10)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			_, err = out.Driver.LockQueueEntries(ctx, out.DB, queue.Tables(), ids, "<malformed>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			retry()
			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("notifies observers after each sweep", func() {
			retry()

			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.RetryPolled{Queue: in.QueueName},
			))
		})
	})

	ginkgo.Describe("func DeadLetter()", func() {
		ginkgo.It("returns false if the message has not been dead-lettered", func() {
			_, ok, err := queue.DeadLetter(ctx, "<unknown>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("func CleanupMessages()", func() {
		ginkgo.It("removes only bodies that are stale and unreferenced", func() {
			// Completed.
			push(fixtures.MessageA1, 0)
			deliveries := poll(queue, 10)
			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			// In-flight.
			push(fixtures.MessageA2, 0)
			gomega.Expect(poll(queue, 10)).To(gomega.HaveLen(1))

			// Queued.
			push(fixtures.MessageA3, 1*time.Hour)

			clock.Advance(2*ackTimeout + time.Millisecond)

			n, err := queue.CleanupMessages(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.Equal(1))

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 1, Unacked: 1},
			))

			ok, err := queue.ContainsMessage(ctx, func(m message.Message) bool {
				var p fixtures.Payload
				return m.Decode(&p) == nil && p.Value == "A1"
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("does not remove unreferenced bodies until they are stale", func() {
			push(fixtures.MessageA1, 0)
			deliveries := poll(queue, 10)
			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			clock.Advance(2 * ackTimeout)

			n, err := queue.CleanupMessages(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.Equal(0))
			gomega.Expect(state().Orphaned).To(gomega.Equal(1))
		})

		ginkgo.It("honours the configured cleanup age", func() {
			q := newQueue(sqlqueue.WithCleanupAge(1 * time.Second))

			push(fixtures.MessageA1, 0)
			deliveries := poll(q, 10)
			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			clock.Advance(2 * time.Second)

			n, err := q.CleanupMessages(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.Equal(1))
			gomega.Expect(observer.Events()).To(gomega.ContainElement(
				sqlqueue.MessagesCleaned{Queue: in.QueueName, Count: 1},
			))
		})
	})

	ginkgo.Describe("func ReadState()", func() {
		ginkgo.It("returns zero counts for an empty queue", func() {
			gomega.Expect(state()).To(gomega.Equal(persistence.State{}))
		})

		ginkgo.It("counts messages in each state", func() {
			push(fixtures.MessageA1, 0)
			push(fixtures.MessageA2, 0)
			push(fixtures.MessageB1, 1*time.Hour)

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 3, Ready: 2},
			))

			deliveries := poll(queue, 10)
			gomega.Expect(deliveries).To(gomega.HaveLen(2))

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 1, Unacked: 2},
			))

			err := deliveries[0].Ack(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(state()).To(gomega.Equal(
				persistence.State{Depth: 1, Unacked: 1, Orphaned: 1},
			))
		})
	})

	ginkgo.Describe("func ContainsMessage()", func() {
		isB1 := func(m message.Message) bool {
			var p fixtures.Payload
			return m.Kind == "b" && m.Decode(&p) == nil && p.Value == "B1"
		}

		ginkgo.It("returns true if a stored message matches the predicate", func() {
			push(fixtures.MessageA1, 0)
			push(fixtures.MessageB1, 0)

			ok, err := queue.ContainsMessage(ctx, isB1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
		})

		ginkgo.It("returns false if no stored message matches the predicate", func() {
			push(fixtures.MessageA1, 0)
			push(fixtures.MessageB2, 0)

			ok, err := queue.ContainsMessage(ctx, isB1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("skips bodies that can not be decoded", func() {
			insertRaw("<malformed>", `not json`)
			push(fixtures.MessageB1, 0)

			ok, err := queue.ContainsMessage(ctx, isB1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
		})

		ginkgo.It("scans beyond the first batch", func() {
			for i := 0; i < 150; i++ {
				push(fixtures.NewMessage(fmt.Sprintf("M%d", i)), 0)
			}
			push(fixtures.MessageB1, 0)

			ok, err := queue.ContainsMessage(ctx, isB1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})
}
