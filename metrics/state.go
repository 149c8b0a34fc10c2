package metrics

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/persistence"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultStateTimeout is the default maximum duration spent reading the state
// of each queue when metrics are collected.
const DefaultStateTimeout = 5 * time.Second

// StateReader is an interface for reading the state of a queue.
//
// It is implemented by *sqlqueue.Queue.
type StateReader interface {
	Name() string
	ReadState(ctx context.Context) (persistence.State, error)
}

var (
	depthDesc = prometheus.NewDesc(
		"sqlqueue_depth",
		"Number of messages in the queue, regardless of delivery time.",
		[]string{"queue"},
		nil,
	)

	readyDesc = prometheus.NewDesc(
		"sqlqueue_ready",
		"Number of queued messages whose delivery time has passed.",
		[]string{"queue"},
		nil,
	)

	unackedDesc = prometheus.NewDesc(
		"sqlqueue_unacked",
		"Number of messages awaiting acknowledgement.",
		[]string{"queue"},
		nil,
	)

	orphanedDesc = prometheus.NewDesc(
		"sqlqueue_orphaned",
		"Number of message bodies awaiting compaction.",
		[]string{"queue"},
		nil,
	)
)

// StateCollector is a prometheus.Collector that reports the state of a set of
// queues each time metrics are collected.
type StateCollector struct {
	// Queues is the set of queues to report on.
	Queues []StateReader

	// Timeout is the maximum duration to spend reading the state of each
	// queue. If it is zero, DefaultStateTimeout is used.
	Timeout time.Duration

	// Logger is the target for log messages about queues whose state can not
	// be read. If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

var _ prometheus.Collector = (*StateCollector)(nil)

// Describe sends the descriptors of the collector's metrics to ch.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- depthDesc
	ch <- readyDesc
	ch <- unackedDesc
	ch <- orphanedDesc
}

// Collect reads the state of each queue and sends the resulting metrics to ch.
//
// Queues whose state can not be read are omitted.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultStateTimeout
	}

	for _, q := range c.Queues {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		s, err := q.ReadState(ctx)
		cancel()

		if err != nil {
			logging.Log(c.Logger, "unable to read the state of the '%s' queue: %s", q.Name(), err)
			continue
		}

		name := q.Name()
		ch <- prometheus.MustNewConstMetric(depthDesc, prometheus.GaugeValue, float64(s.Depth), name)
		ch <- prometheus.MustNewConstMetric(readyDesc, prometheus.GaugeValue, float64(s.Ready), name)
		ch <- prometheus.MustNewConstMetric(unackedDesc, prometheus.GaugeValue, float64(s.Unacked), name)
		ch <- prometheus.MustNewConstMetric(orphanedDesc, prometheus.GaugeValue, float64(s.Orphaned), name)
	}
}
