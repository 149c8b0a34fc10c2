package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a unit of work that is pushed onto, and delivered from, a queue.
//
// The engine treats the payload as opaque. A message's identity is determined
// by its fingerprint, which covers every field except Attributes.
type Message struct {
	// Kind identifies the type of the message, such that consumers know how to
	// decode the payload.
	Kind string `json:"kind"`

	// Payload is the JSON representation of the message's business content.
	Payload json.RawMessage `json:"payload,omitempty"`

	// AckTimeout, if positive, overrides the queue's default acknowledgement
	// timeout for this message.
	AckTimeout time.Duration `json:"ackTimeout,omitempty"`

	// Attributes holds the book-keeping values maintained by the queue.
	Attributes Attributes `json:"attributes"`
}

// Attributes is the set of book-keeping values attached to a message by the
// queue itself.
//
// Attributes are excluded from the message's fingerprint.
type Attributes struct {
	// Attempts is the number of times the message has been claimed by a
	// worker. It is only persisted when MaxAttempts is positive.
	Attempts int `json:"attempts,omitempty"`

	// MaxAttempts, if positive, is the maximum number of times the message may
	// be delivered before it is dead-lettered.
	MaxAttempts int `json:"maxAttempts,omitempty"`

	// AckAttempts is the number of times the message's lease has expired
	// without it being acknowledged.
	AckAttempts int `json:"ackAttempts,omitempty"`
}

// New returns a message of the given kind with a payload containing the JSON
// representation of v.
func New(kind string, v interface{}) (Message, error) {
	if kind == "" {
		return Message{}, fmt.Errorf("message kind must not be empty")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("unable to marshal %s payload: %w", kind, err)
	}

	return Message{
		Kind:    kind,
		Payload: data,
	}, nil
}

// MustNew returns a message of the given kind with a payload containing the
// JSON representation of v. It panics if v can not be marshaled.
func MustNew(kind string, v interface{}) Message {
	m, err := New(kind, v)
	if err != nil {
		panic(err)
	}

	return m
}

// Decode unmarshals the message's payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Kind)
	}

	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("unable to unmarshal %s payload: %w", m.Kind, err)
	}

	return nil
}

// WithMaxAttempts returns a copy of m that is dead-lettered once it has been
// delivered more than n times without being acknowledged.
func (m Message) WithMaxAttempts(n int) Message {
	if n < 0 {
		panic("max attempts must not be negative")
	}

	m.Attributes.MaxAttempts = n
	return m
}

// WithAckTimeout returns a copy of m with a specific acknowledgement timeout.
func (m Message) WithAckTimeout(d time.Duration) Message {
	if d < 0 {
		panic("duration must not be negative")
	}

	m.AckTimeout = d
	return m
}

// String returns a short human-readable description of the message.
func (m Message) String() string {
	return fmt.Sprintf("%s%s", m.Kind, m.Payload)
}

// Marshal returns the stored representation of m.
func Marshal(m Message) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("unable to marshal %s message: %w", m.Kind, err)
	}

	return string(data), nil
}

// Unmarshal parses a stored message body, applying mig (which may be nil)
// first.
func Unmarshal(body string, mig Migrator) (Message, error) {
	data := []byte(body)

	if mig != nil {
		var err error
		data, err = mig.Migrate(data)
		if err != nil {
			return Message{}, fmt.Errorf("unable to migrate message: %w", err)
		}
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("unable to unmarshal message: %w", err)
	}

	if m.Kind == "" {
		return Message{}, fmt.Errorf("unable to unmarshal message: kind is empty")
	}

	return m, nil
}
