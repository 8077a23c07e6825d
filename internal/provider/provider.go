package provider

import (
	"github.com/roach88/hive/internal/channel"
	"github.com/roach88/hive/internal/protocol"
)

// Events emitted on the provider's channel.
const (
	EventAvailable   = "available"   // no payload
	EventUnavailable = "unavailable" // no payload
	EventWorker      = "worker"      // payload: Worker
	EventWorkerDead  = "workerDead"  // payload: worker id string
)

// Worker is the payload of EventWorker.
//
// EventWorkerDead carries the bare id instead. The asymmetry is part of the
// event contract consumers already rely on.
type Worker struct {
	ID string
}

// Availability is the provider's tri-state availability.
type Availability int

const (
	// AvailabilityUnknown holds until the first availability message.
	AvailabilityUnknown Availability = iota
	AvailabilityAvailable
	AvailabilityUnavailable
)

// String returns a lowercase label for a.
func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Provider is the per-source adapter. It is not safe for concurrent use; all
// inbound messages for one provider must be delivered from one goroutine.
type Provider struct {
	id           string
	ch           channel.Channel
	attributes   Attributes
	availability Availability
	decoderSub   channel.Subscription
	closed       bool
}

// New creates a Provider over ch and subscribes its decoder to inbound
// messages. All three arguments are required; a nil attributes map is
// rejected while an empty one is accepted. On error nothing is subscribed.
func New(id string, ch channel.Channel, attributes map[string]any) (*Provider, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "id required"}
	}
	if ch == nil {
		return nil, &ValidationError{Field: "channel", Message: "channel required"}
	}
	if attributes == nil {
		return nil, &ValidationError{Field: "attributes", Message: "attributes required"}
	}

	p := &Provider{
		id:         id,
		ch:         ch,
		attributes: freezeAttributes(attributes),
	}
	p.decoderSub = ch.Subscribe(channel.EventMessage, p.handleMessage)
	return p, nil
}

// Create builds a Provider and returns only its Facade.
func Create(id string, ch channel.Channel, attributes map[string]any) (*Facade, error) {
	p, err := New(id, ch, attributes)
	if err != nil {
		return nil, err
	}
	return p.Facade(), nil
}

// ID returns the provider id.
func (p *Provider) ID() string { return p.id }

// Availability returns the current availability.
func (p *Provider) Availability() Availability { return p.availability }

// Facade returns the observation-only view of p.
func (p *Provider) Facade() *Facade {
	return &Facade{p: p}
}

// Close detaches the decoder from the channel. Later inbound messages no
// longer change state or emit events. Close is idempotent.
func (p *Provider) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.ch.Unsubscribe(channel.EventMessage, p.decoderSub)
}

// SetAvailable marks the provider available and emits EventAvailable.
func (p *Provider) SetAvailable() {
	p.availability = AvailabilityAvailable
	p.ch.Emit(EventAvailable, nil)
}

// SetUnavailable marks the provider unavailable and emits EventUnavailable.
func (p *Provider) SetUnavailable() {
	p.availability = AvailabilityUnavailable
	p.ch.Emit(EventUnavailable, nil)
}

// WorkerSpawned relays a new worker as EventWorker.
func (p *Provider) WorkerSpawned(workerID string) {
	p.ch.Emit(EventWorker, Worker{ID: workerID})
}

// WorkerDead relays a dead worker as EventWorkerDead with the raw id.
func (p *Provider) WorkerDead(workerID string) {
	p.ch.Emit(EventWorkerDead, workerID)
}

func (p *Provider) handleMessage(payload any) {
	msg, ok := payload.(protocol.Message)
	if !ok {
		return
	}
	p.Decode(msg)
}

// Decode routes one inbound message. Unrecognized types are dropped.
func (p *Provider) Decode(msg protocol.Message) {
	switch msg.Type {
	case protocol.Available:
		p.SetAvailable()
	case protocol.Unavailable:
		p.SetUnavailable()
	case protocol.WorkerSpawned:
		p.WorkerSpawned(msg.WorkerID)
	case protocol.WorkerDead:
		p.WorkerDead(msg.WorkerID)
	}
}

// Facade is what consumers see of a Provider.
type Facade struct {
	p *Provider
}

// ID returns the provider id.
func (f *Facade) ID() string { return f.p.id }

// Attributes returns the frozen attribute set.
func (f *Facade) Attributes() Attributes { return f.p.attributes }

// Subscribe registers h for one of the provider events.
func (f *Facade) Subscribe(event string, h channel.Handler) channel.Subscription {
	return f.p.ch.Subscribe(event, h)
}

// Unsubscribe removes a handler registered with Subscribe.
func (f *Facade) Unsubscribe(event string, sub channel.Subscription) {
	f.p.ch.Unsubscribe(event, sub)
}
