package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// MessageType identifies a worker-provider message on the wire.
type MessageType int

const (
	// Available reports that the source can accept work.
	Available MessageType = 1
	// Unavailable reports that the source cannot accept work.
	Unavailable MessageType = 2
	// WorkerSpawned relays a new worker id.
	WorkerSpawned MessageType = 3
	// WorkerDead relays the id of a worker that went away.
	WorkerDead MessageType = 4
)

var typeNames = map[MessageType]string{
	Available:     "available",
	Unavailable:   "unavailable",
	WorkerSpawned: "worker spawned",
	WorkerDead:    "worker dead",
}

// Types returns every known message type in code order.
func Types() []MessageType {
	return []MessageType{Available, Unavailable, WorkerSpawned, WorkerDead}
}

// Known reports whether t is one of the protocol's message types.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// Code returns the wire code for t.
func (t MessageType) Code() int {
	return int(t)
}

// String returns the semantic name of t, e.g. "worker spawned".
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// Lookup maps a semantic name back to its message type.
func Lookup(name string) (MessageType, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Message is a decoded wire frame.
//
// WorkerID is only meaningful when HasWorker is true. For Available and
// Unavailable frames the payload slot is absent.
type Message struct {
	Type      MessageType
	WorkerID  string
	HasWorker bool
}

// ErrMalformedFrame is returned by Decode when a frame is not a JSON array
// with a numeric first element.
var ErrMalformedFrame = errors.New("malformed protocol frame")

// Decode parses a raw `[code, payload?]` frame.
//
// An unrecognized code is not an error: the returned Message carries the raw
// code and its Type reports false from Known.
func Decode(frame []byte) (Message, error) {
	if !gjson.ValidBytes(frame) {
		return Message{}, fmt.Errorf("%w: invalid JSON", ErrMalformedFrame)
	}
	root := gjson.ParseBytes(frame)
	if !root.IsArray() {
		return Message{}, fmt.Errorf("%w: expected array", ErrMalformedFrame)
	}
	code := root.Get("0")
	if code.Type != gjson.Number {
		return Message{}, fmt.Errorf("%w: missing numeric type code", ErrMalformedFrame)
	}

	msg := Message{Type: MessageType(code.Int())}
	if float64(code.Int()) != code.Num {
		// Fractional or out-of-range codes match no type.
		msg.Type = 0
	}
	if payload := root.Get("1"); payload.Exists() && payload.Type != gjson.Null {
		msg.WorkerID = payload.String()
		msg.HasWorker = true
	}
	return msg, nil
}

// Encode writes m as a wire frame. The payload slot is emitted only when
// HasWorker is set.
func Encode(m Message) ([]byte, error) {
	frame := []any{m.Type.Code()}
	if m.HasWorker {
		frame = append(frame, m.WorkerID)
	}
	return json.Marshal(frame)
}

// NewAvailable builds an Available message.
func NewAvailable() Message { return Message{Type: Available} }

// NewUnavailable builds an Unavailable message.
func NewUnavailable() Message { return Message{Type: Unavailable} }

// NewWorkerSpawned builds a WorkerSpawned message for workerID.
func NewWorkerSpawned(workerID string) Message {
	return Message{Type: WorkerSpawned, WorkerID: workerID, HasWorker: true}
}

// NewWorkerDead builds a WorkerDead message for workerID.
func NewWorkerDead(workerID string) Message {
	return Message{Type: WorkerDead, WorkerID: workerID, HasWorker: true}
}
