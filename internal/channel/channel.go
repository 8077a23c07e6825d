// Package channel provides the publish/subscribe primitive that links a
// provider to its remote source.
//
// A Channel carries two kinds of traffic on the same event namespace:
// inbound protocol messages published under EventMessage by the transport,
// and lifecycle events emitted by the provider for its consumers.
package channel

import (
	"sync"
)

// EventMessage is the event name under which transports publish decoded
// inbound protocol.Message values.
const EventMessage = "message"

// Handler receives an event payload. A nil payload means the event has none.
type Handler func(payload any)

// Subscription identifies a registered handler so it can be removed.
type Subscription uint64

// Channel is a bidirectional publish/subscribe transport.
type Channel interface {
	Subscribe(event string, h Handler) Subscription
	Unsubscribe(event string, sub Subscription)
	Emit(event string, payload any)
}

type entry struct {
	sub Subscription
	h   Handler
}

// Emitter is the in-memory Channel implementation.
//
// Handlers run synchronously on the emitting goroutine in subscription order.
// Subscribing or unsubscribing from inside a handler is allowed and takes
// effect from the next Emit.
type Emitter struct {
	mu       sync.Mutex
	next     Subscription
	handlers map[string][]entry
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]entry)}
}

// Subscribe registers h for event and returns its subscription.
func (e *Emitter) Subscribe(event string, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.handlers[event] = append(e.handlers[event], entry{sub: e.next, h: h})
	return e.next
}

// Unsubscribe removes the handler registered under sub. Unknown
// subscriptions are ignored.
func (e *Emitter) Unsubscribe(event string, sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.handlers[event]
	for i, en := range list {
		if en.sub == sub {
			// Copy so an in-flight Emit keeps its snapshot intact.
			trimmed := make([]entry, 0, len(list)-1)
			trimmed = append(trimmed, list[:i]...)
			trimmed = append(trimmed, list[i+1:]...)
			if len(trimmed) == 0 {
				delete(e.handlers, event)
			} else {
				e.handlers[event] = trimmed
			}
			return
		}
	}
}

// Emit delivers payload to every handler subscribed to event.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	snapshot := e.handlers[event]
	e.mu.Unlock()

	for _, en := range snapshot {
		en.h(payload)
	}
}

// Count returns the number of handlers subscribed to event.
func (e *Emitter) Count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}
