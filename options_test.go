package sqlqueue

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/message"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/dogmatiq/sqlqueue/persistence/sqlpersistence/sqlite"
	"github.com/dogmatiq/sqlqueue/retry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/trace/noop"
)

var _ = Describe("func resolveOptions()", func() {
	It("uses the defaults when no options are given", func() {
		opts := resolveOptions()

		Expect(opts.Driver).To(BeNil())
		Expect(opts.AckTimeout).To(Equal(DefaultAckTimeout))
		Expect(opts.LockTTL).To(Equal(DefaultLockTTL))
		Expect(opts.RetryInterval).To(Equal(DefaultRetryInterval))
		Expect(opts.CleanupInterval).To(Equal(DefaultCleanupInterval))
		Expect(opts.CleanupAge).To(Equal(2 * DefaultAckTimeout))
		Expect(opts.MaxAckRetries).To(Equal(DefaultMaxAckRetries))
		Expect(opts.MaxClaimPasses).To(Equal(DefaultMaxClaimPasses))
		Expect(opts.SchemaVersion).To(Equal(persistence.DefaultSchemaVersion))
		Expect(opts.Owner).To(HaveLen(32))
		Expect(opts.Now).NotTo(BeNil())
		Expect(opts.ReadRetry).To(Equal(retry.DefaultReadBudget))
		Expect(opts.WriteRetry).To(Equal(retry.DefaultWriteBudget))
		Expect(opts.Logger).To(Equal(DefaultLogger))
		Expect(opts.TracerProvider).NotTo(BeNil())
	})

	It("generates a distinct owner for each queue", func() {
		Expect(resolveOptions().Owner).NotTo(Equal(resolveOptions().Owner))
	})
})

var _ = Describe("func WithDriver()", func() {
	It("sets the driver", func() {
		opts := resolveOptions(WithDriver(sqlite.Driver))
		Expect(opts.Driver).To(Equal(sqlite.Driver))
	})
})

var _ = Describe("func WithAckTimeout()", func() {
	It("sets the ack timeout", func() {
		opts := resolveOptions(WithAckTimeout(10 * time.Minute))
		Expect(opts.AckTimeout).To(Equal(10 * time.Minute))
	})

	It("derives the cleanup age from the ack timeout", func() {
		opts := resolveOptions(WithAckTimeout(10 * time.Minute))
		Expect(opts.CleanupAge).To(Equal(20 * time.Minute))
	})

	It("uses the default if the duration is zero", func() {
		opts := resolveOptions(WithAckTimeout(0))
		Expect(opts.AckTimeout).To(Equal(DefaultAckTimeout))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithAckTimeout(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithLockTTL()", func() {
	It("sets the lock TTL", func() {
		opts := resolveOptions(WithLockTTL(10 * time.Second))
		Expect(opts.LockTTL).To(Equal(10 * time.Second))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithLockTTL(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithRetryInterval()", func() {
	It("sets the retry interval", func() {
		opts := resolveOptions(WithRetryInterval(1 * time.Second))
		Expect(opts.RetryInterval).To(Equal(1 * time.Second))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithRetryInterval(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithCleanupInterval()", func() {
	It("sets the cleanup interval", func() {
		opts := resolveOptions(WithCleanupInterval(1 * time.Second))
		Expect(opts.CleanupInterval).To(Equal(1 * time.Second))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithCleanupInterval(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithCleanupAge()", func() {
	It("sets the cleanup age", func() {
		opts := resolveOptions(WithCleanupAge(1 * time.Hour))
		Expect(opts.CleanupAge).To(Equal(1 * time.Hour))
	})

	It("panics if the duration is negative", func() {
		Expect(func() {
			WithCleanupAge(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithMaxAckRetries()", func() {
	It("sets the maximum number of lease expiries", func() {
		opts := resolveOptions(WithMaxAckRetries(2))
		Expect(opts.MaxAckRetries).To(Equal(2))
	})

	It("panics if the value is negative", func() {
		Expect(func() {
			WithMaxAckRetries(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithMaxClaimPasses()", func() {
	It("sets the maximum number of claim passes", func() {
		opts := resolveOptions(WithMaxClaimPasses(1))
		Expect(opts.MaxClaimPasses).To(Equal(1))
	})

	It("panics if the value is negative", func() {
		Expect(func() {
			WithMaxClaimPasses(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithSchemaVersion()", func() {
	It("sets the schema version", func() {
		opts := resolveOptions(WithSchemaVersion(2))
		Expect(opts.SchemaVersion).To(Equal(2))
	})

	It("panics if the value is negative", func() {
		Expect(func() {
			WithSchemaVersion(-1)
		}).To(Panic())
	})
})

var _ = Describe("func WithOwner()", func() {
	It("sets the owner", func() {
		opts := resolveOptions(WithOwner("<owner>"))
		Expect(opts.Owner).To(Equal("<owner>"))
	})
})

var _ = Describe("func WithClock()", func() {
	It("sets the clock", func() {
		t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		opts := resolveOptions(WithClock(func() time.Time { return t }))
		Expect(opts.Now()).To(Equal(t))
	})
})

var _ = Describe("func WithMigrator()", func() {
	It("sets the migrator", func() {
		opts := resolveOptions(WithMigrator(
			message.MigratorFunc(func(data []byte) ([]byte, error) {
				return data, nil
			}),
		))
		Expect(opts.Migrator).NotTo(BeNil())
	})
})

var _ = Describe("func WithDeadMessageCallback()", func() {
	It("adds each callback", func() {
		fn := func(context.Context, string, message.Message) {}

		opts := resolveOptions(
			WithDeadMessageCallback(fn),
			WithDeadMessageCallback(fn),
			WithDeadMessageCallback(nil),
		)
		Expect(opts.DeadMessageCallbacks).To(HaveLen(2))
	})
})

var _ = Describe("func WithObserver()", func() {
	It("adds each observer", func() {
		o := ObserverFunc(func(Event) {})

		opts := resolveOptions(
			WithObserver(o),
			WithObserver(o),
			WithObserver(nil),
		)
		Expect(opts.Observers).To(HaveLen(2))
	})
})

var _ = Describe("func WithReadRetryBudget()", func() {
	It("sets the read retry budget", func() {
		b := retry.Budget{Attempts: 7}
		opts := resolveOptions(WithReadRetryBudget(b))
		Expect(opts.ReadRetry).To(Equal(b))
	})
})

var _ = Describe("func WithWriteRetryBudget()", func() {
	It("sets the write retry budget", func() {
		b := retry.Budget{Attempts: 7}
		opts := resolveOptions(WithWriteRetryBudget(b))
		Expect(opts.WriteRetry).To(Equal(b))
	})
})

var _ = Describe("func WithLogger()", func() {
	It("sets the logger", func() {
		l := &logging.BufferedLogger{}
		opts := resolveOptions(WithLogger(l))
		Expect(opts.Logger).To(BeIdenticalTo(l))
	})
})

var _ = Describe("func WithTracerProvider()", func() {
	It("sets the tracer provider", func() {
		tp := noop.NewTracerProvider()
		opts := resolveOptions(WithTracerProvider(tp))
		Expect(opts.TracerProvider).To(Equal(tp))
	})
})
