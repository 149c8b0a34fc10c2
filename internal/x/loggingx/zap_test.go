package loggingx_test

import (
	. "github.com/dogmatiq/sqlqueue/internal/x/loggingx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("func Zap()", func() {
	var logs *observer.ObservedLogs

	newLogger := func(level zapcore.Level) {
		var core zapcore.Core
		core, logs = observer.New(level)
		logger := Zap(zap.New(core))

		logger.Log("<%s>", "info")
		logger.LogString("<info-string>")
		logger.Debug("<%s>", "debug")
		logger.DebugString("<debug-string>")
	}

	messages := func() []string {
		var m []string
		for _, e := range logs.All() {
			m = append(m, e.Level.String()+" "+e.Message)
		}
		return m
	}

	It("writes messages at the info level and debug messages at the debug level", func() {
		newLogger(zapcore.DebugLevel)

		Expect(messages()).To(Equal([]string{
			"info <info>",
			"info <info-string>",
			"debug <debug>",
			"debug <debug-string>",
		}))
	})

	It("discards debug messages when the debug level is disabled", func() {
		newLogger(zapcore.InfoLevel)

		Expect(messages()).To(Equal([]string{
			"info <info>",
			"info <info-string>",
		}))
	})

	It("reports whether the debug level is enabled", func() {
		core, _ := observer.New(zapcore.InfoLevel)
		Expect(Zap(zap.New(core)).IsDebug()).To(BeFalse())

		core, _ = observer.New(zapcore.DebugLevel)
		Expect(Zap(zap.New(core)).IsDebug()).To(BeTrue())
	})
})
