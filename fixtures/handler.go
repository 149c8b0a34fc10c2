package fixtures

import (
	"context"
	"sync"

	"github.com/dogmatiq/sqlqueue/message"
)

// HandlerStub is a test implementation of the sqlqueue.Handler interface.
type HandlerStub struct {
	HandleMessageFunc func(context.Context, message.Message) error

	m       sync.Mutex
	handled []message.Message
}

// HandleMessage records m, then calls h.HandleMessageFunc if it is non-nil.
func (h *HandlerStub) HandleMessage(ctx context.Context, m message.Message) error {
	h.m.Lock()
	h.handled = append(h.handled, m)
	h.m.Unlock()

	if h.HandleMessageFunc != nil {
		return h.HandleMessageFunc(ctx, m)
	}

	return nil
}

// Handled returns the messages passed to HandleMessage() so far.
func (h *HandlerStub) Handled() []message.Message {
	h.m.Lock()
	defer h.m.Unlock()

	return append([]message.Message(nil), h.handled...)
}
