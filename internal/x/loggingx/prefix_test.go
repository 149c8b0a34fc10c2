package loggingx_test

import (
	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/sqlqueue/internal/x/loggingx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("func WithPrefix()", func() {
	var (
		target *logging.BufferedLogger
		logger logging.Logger
	)

	BeforeEach(func() {
		target = &logging.BufferedLogger{CaptureDebug: true}
		logger = WithPrefix(target, "[%s] ", "100%")
	})

	It("prefixes formatted messages", func() {
		logger.Log("<%s>", "message")
		logger.Debug("<%s>", "debug")

		Expect(target.Messages()).To(Equal([]logging.BufferedLogMessage{
			{Message: "[100%] <message>"},
			{Message: "[100%] <debug>", IsDebug: true},
		}))
	})

	It("prefixes plain messages", func() {
		logger.LogString("<message>")
		logger.DebugString("<debug>")

		Expect(target.Messages()).To(Equal([]logging.BufferedLogMessage{
			{Message: "[100%] <message>"},
			{Message: "[100%] <debug>", IsDebug: true},
		}))
	})

	It("reports the debug state of the target", func() {
		Expect(logger.IsDebug()).To(BeTrue())

		target.CaptureDebug = false
		Expect(logger.IsDebug()).To(BeFalse())
	})
})
