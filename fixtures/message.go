package fixtures

import "github.com/dogmatiq/sqlqueue/message"

// Payload is the payload of the test messages.
type Payload struct {
	Value string `json:"value"`
}

// MessageA1, etc are test messages of kind "a".
var (
	MessageA1 = message.MustNew("a", Payload{"A1"})
	MessageA2 = message.MustNew("a", Payload{"A2"})
	MessageA3 = message.MustNew("a", Payload{"A3"})
)

// MessageB1, etc are test messages of kind "b".
var (
	MessageB1 = message.MustNew("b", Payload{"B1"})
	MessageB2 = message.MustNew("b", Payload{"B2"})
)

// NewMessage returns a message of kind "a" with the given value.
func NewMessage(v string) message.Message {
	return message.MustNew("a", Payload{v})
}
