package metrics

import (
	"github.com/dogmatiq/sqlqueue"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer is an sqlqueue.Observer that records queue events as Prometheus
// metrics.
type Observer struct {
	Pushed      *prometheus.CounterVec
	Polls       *prometheus.CounterVec
	Delivered   *prometheus.CounterVec
	Lag         *prometheus.HistogramVec
	Rescheduled *prometheus.CounterVec
	NotFound    *prometheus.CounterVec
	Acked       *prometheus.CounterVec
	Retried     *prometheus.CounterVec
	Dead        *prometheus.CounterVec
	Purged      *prometheus.CounterVec
	Sweeps      *prometheus.CounterVec
	Released    *prometheus.CounterVec
	Cleaned     *prometheus.CounterVec
}

var _ sqlqueue.Observer = (*Observer)(nil)

// NewObserver returns an observer with its metrics registered with r.
func NewObserver(r prometheus.Registerer) *Observer {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlqueue",
				Name:      name,
				Help:      help,
			},
			[]string{"queue"},
		)
	}

	o := &Observer{
		Pushed:      counter("pushed_total", "Total number of messages pushed onto the queue."),
		Polls:       counter("polls_total", "Total number of times the queue has been polled."),
		Delivered:   counter("delivered_total", "Total number of messages delivered to workers."),
		Rescheduled: counter("rescheduled_total", "Total number of messages whose delivery time was changed."),
		NotFound:    counter("reschedule_not_found_total", "Total number of attempts to reschedule a message that was not queued."),
		Acked:       counter("acknowledged_total", "Total number of messages acknowledged by workers."),
		Retried:     counter("retried_total", "Total number of messages returned to the queue after their lease expired."),
		Dead:        counter("dead_total", "Total number of messages dead-lettered."),
		Purged:      counter("purged_total", "Total number of messages removed because their body was missing or malformed."),
		Sweeps:      counter("retry_sweeps_total", "Total number of lease sweeps."),
		Released:    counter("locks_released_total", "Total number of stale claims released."),
		Cleaned:     counter("cleaned_total", "Total number of orphaned message bodies removed."),
		Lag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sqlqueue",
				Name:      "delivery_lag_seconds",
				Help:      "Time between a message's scheduled delivery time and its delivery to a worker.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"queue"},
		),
	}

	r.MustRegister(
		o.Pushed,
		o.Polls,
		o.Delivered,
		o.Lag,
		o.Rescheduled,
		o.NotFound,
		o.Acked,
		o.Retried,
		o.Dead,
		o.Purged,
		o.Sweeps,
		o.Released,
		o.Cleaned,
	)

	return o
}

// Notify updates the metrics that correspond to e.
func (o *Observer) Notify(e sqlqueue.Event) {
	q := e.QueueName()

	switch e := e.(type) {
	case sqlqueue.MessagePushed:
		o.Pushed.WithLabelValues(q).Inc()
	case sqlqueue.QueuePolled:
		o.Polls.WithLabelValues(q).Inc()
	case sqlqueue.MessageProcessing:
		o.Delivered.WithLabelValues(q).Inc()
		o.Lag.WithLabelValues(q).Observe(
			e.ProcessedAt.Sub(e.ScheduledAt).Seconds(),
		)
	case sqlqueue.MessageRescheduled:
		o.Rescheduled.WithLabelValues(q).Inc()
	case sqlqueue.MessageNotFound:
		o.NotFound.WithLabelValues(q).Inc()
	case sqlqueue.MessageAcknowledged:
		o.Acked.WithLabelValues(q).Inc()
	case sqlqueue.MessageRetried:
		o.Retried.WithLabelValues(q).Inc()
	case sqlqueue.MessageDead:
		o.Dead.WithLabelValues(q).Inc()
	case sqlqueue.MessagePurged:
		o.Purged.WithLabelValues(q).Inc()
	case sqlqueue.RetryPolled:
		o.Sweeps.WithLabelValues(q).Inc()
	case sqlqueue.LockReleased:
		o.Released.WithLabelValues(q).Inc()
	case sqlqueue.MessagesCleaned:
		o.Cleaned.WithLabelValues(q).Add(float64(e.Count))
	}
}
