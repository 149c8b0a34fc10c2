package metrics_test

import (
	"context"
	"errors"
	"strings"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/sqlqueue/metrics"
	"github.com/dogmatiq/sqlqueue/persistence"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stateReaderStub struct {
	name  string
	state persistence.State
	err   error
}

func (s stateReaderStub) Name() string {
	return s.name
}

func (s stateReaderStub) ReadState(context.Context) (persistence.State, error) {
	return s.state, s.err
}

var _ = Describe("type StateCollector", func() {
	It("reports the state of each queue", func() {
		c := &StateCollector{
			Queues: []StateReader{
				stateReaderStub{
					name:  "<queue>",
					state: persistence.State{Depth: 4, Ready: 3, Unacked: 2, Orphaned: 1},
				},
			},
		}

		err := testutil.CollectAndCompare(
			c,
			strings.NewReader(`
# HELP sqlqueue_depth Number of messages in the queue, regardless of delivery time.
# TYPE sqlqueue_depth gauge
sqlqueue_depth{queue="<queue>"} 4
# HELP sqlqueue_orphaned Number of message bodies awaiting compaction.
# TYPE sqlqueue_orphaned gauge
sqlqueue_orphaned{queue="<queue>"} 1
# HELP sqlqueue_ready Number of queued messages whose delivery time has passed.
# TYPE sqlqueue_ready gauge
sqlqueue_ready{queue="<queue>"} 3
# HELP sqlqueue_unacked Number of messages awaiting acknowledgement.
# TYPE sqlqueue_unacked gauge
sqlqueue_unacked{queue="<queue>"} 2
`),
		)
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("omits queues whose state can not be read", func() {
		logger := &logging.BufferedLogger{}

		c := &StateCollector{
			Queues: []StateReader{
				stateReaderStub{name: "<ok>"},
				stateReaderStub{name: "<failing>", err: errors.New("<error>")},
			},
			Logger: logger,
		}

		Expect(testutil.CollectAndCount(c)).To(Equal(4))
		Expect(logger.Messages()).To(ContainElement(
			logging.BufferedLogMessage{
				Message: "unable to read the state of the '<failing>' queue: <error>",
			},
		))
	})
})
