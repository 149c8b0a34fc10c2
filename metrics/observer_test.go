package metrics_test

import (
	"time"

	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/fixtures"
	. "github.com/dogmatiq/sqlqueue/metrics"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("type Observer", func() {
	var (
		registry *prometheus.Registry
		observer *Observer
	)

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		observer = NewObserver(registry)
	})

	DescribeTable(
		"it increments the counter that corresponds to each event",
		func(e sqlqueue.Event, counter func() *prometheus.CounterVec) {
			observer.Notify(e)
			observer.Notify(e)

			Expect(testutil.ToFloat64(counter().WithLabelValues("<queue>"))).To(Equal(2.0))
		},
		Entry("MessagePushed", sqlqueue.MessagePushed{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Pushed }),
		Entry("QueuePolled", sqlqueue.QueuePolled{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Polls }),
		Entry("MessageProcessing", sqlqueue.MessageProcessing{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Delivered }),
		Entry("MessageRescheduled", sqlqueue.MessageRescheduled{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Rescheduled }),
		Entry("MessageNotFound", sqlqueue.MessageNotFound{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.NotFound }),
		Entry("MessageAcknowledged", sqlqueue.MessageAcknowledged{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Acked }),
		Entry("MessageRetried", sqlqueue.MessageRetried{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Retried }),
		Entry("MessageDead", sqlqueue.MessageDead{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Dead }),
		Entry("MessagePurged", sqlqueue.MessagePurged{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Purged }),
		Entry("RetryPolled", sqlqueue.RetryPolled{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Sweeps }),
		Entry("LockReleased", sqlqueue.LockReleased{Queue: "<queue>"}, func() *prometheus.CounterVec { return observer.Released }),
	)

	It("adds the number of bodies removed by cleanup", func() {
		observer.Notify(sqlqueue.MessagesCleaned{Queue: "<queue>", Count: 3})
		observer.Notify(sqlqueue.MessagesCleaned{Queue: "<queue>", Count: 4})

		Expect(testutil.ToFloat64(observer.Cleaned.WithLabelValues("<queue>"))).To(Equal(7.0))
	})

	It("records the delivery lag", func() {
		scheduled := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		observer.Notify(sqlqueue.MessageProcessing{
			Queue:       "<queue>",
			Message:     fixtures.MessageA1,
			ScheduledAt: scheduled,
			ProcessedAt: scheduled.Add(2 * time.Second),
		})

		Expect(testutil.CollectAndCount(observer.Lag)).To(Equal(1))
	})

	It("labels metrics by queue", func() {
		observer.Notify(sqlqueue.MessagePushed{Queue: "<queue-a>"})
		observer.Notify(sqlqueue.MessagePushed{Queue: "<queue-b>"})

		Expect(testutil.CollectAndCount(observer.Pushed)).To(Equal(2))
	})

	It("registers its metrics", func() {
		observer.Notify(sqlqueue.MessagePushed{Queue: "<queue>"})

		n, err := testutil.GatherAndCount(registry, "sqlqueue_pushed_total")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(n).To(Equal(1))
	})
})
