package mlog

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/sqlqueue/message"
)

// LogPush logs a message indicating that a message has been pushed onto a
// queue.
func LogPush(
	log logging.Logger,
	fp string,
	m message.Message,
	delay time.Duration,
) {
	if !logging.IsDebug(log) {
		return
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{ProduceIcon, ""},
			m.Kind,
			fmt.Sprintf("deliver in %s", delay),
		),
	)
}

// LogConsume logs a message indicating that a message is being delivered to a
// worker.
func LogConsume(
	log logging.Logger,
	fp string,
	m message.Message,
) {
	if !logging.IsDebug(log) {
		return
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{ConsumeIcon, retryIcon(m.Attributes.AckAttempts)},
			m.Kind,
			fmt.Sprintf("attempt %d", m.Attributes.Attempts),
		),
	)
}

// LogAck logs a message indicating that a message has been acknowledged.
func LogAck(
	log logging.Logger,
	fp string,
) {
	if !logging.IsDebug(log) {
		return
	}

	logging.DebugString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{AckIcon, ""},
			"acknowledged",
		),
	)
}

// LogRetry logs a message indicating that a message's lease expired and it has
// been returned to the queue.
func LogRetry(
	log logging.Logger,
	fp string,
	m message.Message,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{ConsumeErrorIcon, RetryIcon},
			m.Kind,
			fmt.Sprintf("lease expired %d time(s), requeued", m.Attributes.AckAttempts),
		),
	)
}

// LogDead logs a message indicating that a message has exhausted its retries
// and is being dead-lettered.
func LogDead(
	log logging.Logger,
	fp string,
	m message.Message,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{DeadIcon, ErrorIcon},
			m.Kind,
			fmt.Sprintf(
				"exceeded retry limits after %d attempt(s), %d lease expiry(s)",
				m.Attributes.Attempts,
				m.Attributes.AckAttempts,
			),
		),
	)
}

// LogPurge logs a message indicating that all trace of a fingerprint has been
// removed because its body is missing or can not be decoded.
func LogPurge(
	log logging.Logger,
	fp string,
	cause error,
) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{FingerprintIcon.WithFingerprint(fp)},
			[]Icon{ConsumeErrorIcon, ErrorIcon},
			cause.Error(),
			"removed from queue",
		),
	)
}

// LogSystem logs an informational message about the internals of the queue.
func LogSystem(
	log logging.Logger,
	f string, v ...interface{},
) {
	logging.LogString(
		log,
		String(
			nil,
			[]Icon{SystemIcon, ""},
			fmt.Sprintf(f, v...),
		),
	)
}

func retryIcon(n int) Icon {
	if n == 0 {
		return ""
	}

	return RetryIcon
}
