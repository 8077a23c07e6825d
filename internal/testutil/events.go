package testutil

import (
	"sync"

	"github.com/roach88/hive/internal/channel"
)

// Emitted is one event observed by an EventRecorder.
type Emitted struct {
	Event   string
	Payload any
}

// EventRecorder subscribes to a set of events and keeps what it sees.
//
// Thread-safety: safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []Emitted
}

// Subscriber is anything with a channel-style Subscribe, such as a
// channel.Channel or a provider.Facade.
type Subscriber interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
}

// RecordEvents subscribes a new EventRecorder to every named event on s.
func RecordEvents(s Subscriber, events ...string) *EventRecorder {
	r := &EventRecorder{}
	for _, ev := range events {
		ev := ev
		s.Subscribe(ev, func(payload any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, Emitted{Event: ev, Payload: payload})
		})
	}
	return r
}

// Events returns a copy of the recorded events in arrival order.
func (r *EventRecorder) Events() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *EventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
