package fixtures

import (
	"reflect"
	"sync"

	"github.com/dogmatiq/sqlqueue"
)

// ObserverStub is an sqlqueue.Observer that records every event.
type ObserverStub struct {
	m      sync.Mutex
	events []sqlqueue.Event
}

// Notify records e.
func (o *ObserverStub) Notify(e sqlqueue.Event) {
	o.m.Lock()
	defer o.m.Unlock()

	o.events = append(o.events, e)
}

// Events returns the events recorded so far.
func (o *ObserverStub) Events() []sqlqueue.Event {
	o.m.Lock()
	defer o.m.Unlock()

	return append([]sqlqueue.Event(nil), o.events...)
}

// Reset discards the recorded events.
func (o *ObserverStub) Reset() {
	o.m.Lock()
	defer o.m.Unlock()

	o.events = nil
}

// Count returns the number of recorded events of the same type as e.
func (o *ObserverStub) Count(e sqlqueue.Event) int {
	o.m.Lock()
	defer o.m.Unlock()

	n := 0
	for _, x := range o.events {
		if reflect.TypeOf(x) == reflect.TypeOf(e) {
			n++
		}
	}

	return n
}
