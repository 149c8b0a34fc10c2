package retry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/dogmatiq/sqlqueue/retry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func Do()", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		budget Budget
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)

		budget = Budget{
			Attempts: 3,
			Strategy: backoff.Constant(time.Millisecond),
		}
	})

	It("does not retry a successful operation", func() {
		calls := 0

		err := Do(ctx, budget, nil, func(context.Context) error {
			calls++
			return nil
		})

		Expect(err).ShouldNot(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("retries until the operation succeeds", func() {
		calls := 0

		err := Do(ctx, budget, nil, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("<error>")
			}
			return nil
		})

		Expect(err).ShouldNot(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("returns the last error when the budget is exhausted", func() {
		calls := 0

		err := Do(ctx, budget, nil, func(context.Context) error {
			calls++
			return fmt.Errorf("<error %d>", calls)
		})

		Expect(err).To(MatchError("<error 3>"))
		Expect(calls).To(Equal(3))
	})

	It("attempts the operation once if the budget has no attempts", func() {
		calls := 0

		err := Do(ctx, Budget{}, nil, func(context.Context) error {
			calls++
			return errors.New("<error>")
		})

		Expect(err).To(MatchError("<error>"))
		Expect(calls).To(Equal(1))
	})

	It("does not retry unsupported operations", func() {
		calls := 0

		err := Do(ctx, budget, nil, func(context.Context) error {
			calls++
			return persistence.UnsupportedError{Cause: errors.New("<error>")}
		})

		Expect(err).To(MatchError(persistence.ErrUnsupported))
		Expect(calls).To(Equal(1))
	})

	It("does not retry errors classified as permanent by the caller", func() {
		calls := 0
		permanent := errors.New("<permanent>")

		err := Do(
			ctx,
			budget,
			func(err error) bool { return errors.Is(err, permanent) },
			func(context.Context) error {
				calls++
				return permanent
			},
		)

		Expect(err).To(Equal(permanent))
		Expect(calls).To(Equal(1))
	})

	It("stops retrying when the context is canceled", func() {
		calls := 0
		budget.Strategy = backoff.Constant(time.Hour)

		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := Do(ctx, budget, nil, func(context.Context) error {
			calls++
			return errors.New("<error>")
		})

		Expect(err).To(Equal(context.Canceled))
		Expect(calls).To(Equal(1))
	})
})

var _ = Describe("type Budget", func() {
	It("passes each failure to the backoff strategy", func() {
		var (
			causes   []error
			failures []uint
		)

		b := Budget{
			Attempts: 3,
			Strategy: func(err error, n uint) time.Duration {
				causes = append(causes, err)
				failures = append(failures, n)
				return 0
			},
		}

		calls := 0
		err := Do(context.Background(), b, nil, func(context.Context) error {
			calls++
			return fmt.Errorf("<error %d>", calls)
		})

		Expect(err).To(MatchError("<error 3>"))
		Expect(failures).To(Equal([]uint{0, 1}))
		Expect(causes).To(HaveLen(2))
		Expect(causes[0]).To(MatchError("<error 1>"))
	})

	DescribeTable(
		"the default budgets delay within their bounds",
		func(b Budget, minimum, maximum time.Duration) {
			for n := uint(0); n < 10; n++ {
				d := b.Strategy(nil, n)
				Expect(d).To(BeNumerically(">=", minimum))
				Expect(d).To(BeNumerically("<=", maximum))
			}
		},
		Entry("write", DefaultWriteBudget, 25*time.Millisecond, 150*time.Millisecond),
		Entry("read", DefaultReadBudget, 50*time.Millisecond, 50*time.Millisecond),
	)
})

var _ = Describe("func IsPermanent()", func() {
	DescribeTable(
		"it classifies errors",
		func(err error, expect bool) {
			Expect(IsPermanent(err)).To(Equal(expect))
		},
		Entry("unsupported", persistence.ErrUnsupported, true),
		Entry("wrapped unsupported", fmt.Errorf("<op>: %w", persistence.ErrUnsupported), true),
		Entry("canceled", context.Canceled, true),
		Entry("deadline exceeded", context.DeadlineExceeded, true),
		Entry("other", errors.New("<error>"), false),
	)
})
