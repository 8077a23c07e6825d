// Package transport carries the worker-provider protocol over websockets.
//
// A source opens a websocket to the coordinator's capture endpoint, sends a
// Hello, and then streams `[code, payload?]` frames. On the coordinator side
// Pump decodes those frames and publishes them on the provider's channel
// under channel.EventMessage.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roach88/hive/internal/channel"
	"github.com/roach88/hive/internal/protocol"
)

// CapturePath is the HTTP path of the capture endpoint.
const CapturePath = "/providers"

// Hello introduces a source. Both fields are optional.
type Hello struct {
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ReadHello reads the introductory frame. timeout bounds the wait when
// positive.
func ReadHello(ws *websocket.Conn, timeout time.Duration) (Hello, error) {
	if timeout > 0 {
		if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Hello{}, fmt.Errorf("set hello deadline: %w", err)
		}
	}
	var h Hello
	if err := websocket.JSON.Receive(ws, &h); err != nil {
		return Hello{}, fmt.Errorf("read hello: %w", err)
	}
	return h, nil
}

// PumpOptions configures Pump.
type PumpOptions struct {
	// ReadTimeout drops the connection when no frame arrives in time.
	// Zero disables the deadline.
	ReadTimeout time.Duration

	Debug *slog.Logger
}

// Pump reads frames from ws and emits each decoded message on ch until the
// connection fails or closes. Malformed frames are logged and skipped.
// A clean close returns nil.
func Pump(ws *websocket.Conn, ch channel.Channel, opts PumpOptions) error {
	debug := opts.Debug
	if debug == nil {
		debug = slog.New(slog.DiscardHandler)
	}

	for {
		if opts.ReadTimeout > 0 {
			if err := ws.SetReadDeadline(time.Now().Add(opts.ReadTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}

		var frame []byte
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			debug.Debug("dropping frame", "error", err, "frame", string(frame))
			continue
		}
		ch.Emit(channel.EventMessage, msg)
	}
}

// Source is the worker-source end of a capture connection.
type Source struct {
	ws *websocket.Conn
}

// Dial connects to the capture endpoint at addr ("host:port") and sends hello.
func Dial(addr string, hello Hello) (*Source, error) {
	ws, err := websocket.Dial("ws://"+addr+CapturePath, "", "http://localhost/")
	if err != nil {
		return nil, fmt.Errorf("dial capture endpoint: %w", err)
	}
	if err := websocket.JSON.Send(ws, hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return &Source{ws: ws}, nil
}

// Send writes one protocol message.
func (s *Source) Send(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return websocket.Message.Send(s.ws, string(frame))
}

// SendRaw writes an arbitrary frame. Useful for sources speaking a newer
// protocol revision.
func (s *Source) SendRaw(frame string) error {
	return websocket.Message.Send(s.ws, frame)
}

// Close closes the connection.
func (s *Source) Close() error {
	return s.ws.Close()
}
