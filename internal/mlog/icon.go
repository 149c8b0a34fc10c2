package mlog

import (
	"fmt"
	"io"

	"github.com/dogmatiq/iago/must"
)

const (
	// FingerprintIcon is the icon shown directly before a message fingerprint.
	// It is an "equals sign", indicating that this message "has exactly" the
	// displayed identity.
	FingerprintIcon Icon = "="

	// QueueIcon is the icon shown directly before a queue name. It is the
	// mathematical "member of set" symbol, indicating that the message belongs
	// to the displayed queue.
	QueueIcon Icon = "⋲"

	// ConsumeIcon is the icon shown to indicate that a message is being
	// delivered to a worker. It is a downward pointing arrow, as such messages
	// are "downloaded" from the queue.
	ConsumeIcon Icon = "▼"

	// ConsumeErrorIcon is a variant of ConsumeIcon used when there is an error
	// condition. It is an hollow version of the regular consume icon,
	// indicating that the requirement remains "unfulfilled".
	ConsumeErrorIcon Icon = "▽"

	// ProduceIcon is the icon shown to indicate that a message is being pushed
	// onto the queue. It is an upward pointing arrow, as such messages are
	// "uploaded" to the queue.
	ProduceIcon Icon = "▲"

	// RetryIcon is shown when a message is being re-attempted. It is an
	// open-circle with an arrow, indicating that the message has "come around
	// again".
	RetryIcon Icon = "↻"

	// AckIcon is shown when a message is acknowledged. It is a check mark,
	// indicating that the work is complete.
	AckIcon Icon = "✔"

	// ErrorIcon is the icon shown when logging information about an error.
	// It is a heavy cross, indicating a failure.
	ErrorIcon Icon = "✖"

	// DeadIcon is shown when a message is moved to the dead-letter table. It is
	// a "tombstone" cross.
	DeadIcon Icon = "✝"

	// SystemIcon is an icon shown when a log message relates to the internals of
	// the queue. It is a sprocket, representing the inner workings of the
	// machine.
	SystemIcon Icon = "⚙"

	// SeparatorIcon is an icon used to separate strings of unrelated text inside a
	// log message. It is a large bullet, intended to have a large visual impact.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

func (i Icon) String() string {
	return string(i)
}

// WriteTo writes a string representation of the icon to w.
// If i is the zero-value, a single space is rendered.
func (i Icon) WriteTo(w io.Writer) (int64, error) {
	s := i.String()
	if i == "" {
		s = " "
	}

	n, err := io.WriteString(w, s)
	return int64(n), err
}

// WithLabel return an IconWithLabel containing this icon and the given label.
func (i Icon) WithLabel(f string, v ...interface{}) IconWithLabel {
	return IconWithLabel{
		i,
		formatLabel(fmt.Sprintf(f, v...)),
	}
}

// WithFingerprint return an IconWithLabel containing this icon and a
// fingerprint as its label.
//
// The fingerprint is formatted using FormatFingerprint().
func (i Icon) WithFingerprint(fp string) IconWithLabel {
	return i.WithLabel(FormatFingerprint(fp))
}

// IconWithLabel is a container for an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}

// WriteTo writes a string representation of the icon and its label to w.
func (i IconWithLabel) WriteTo(w io.Writer) (_ int64, err error) {
	defer must.Recover(&err)

	n := must.WriteTo(w, i.Icon)
	n += must.Write(w, space1)
	n += must.WriteString(w, i.Label)

	return int64(n), err
}

// formatLabel formats a label for display.
func formatLabel(label string) string {
	if label == "" {
		return "-"
	}

	return label
}
