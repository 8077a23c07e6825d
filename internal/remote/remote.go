// Package remote connects to a coordinator that is already running elsewhere
// and exposes it through the same handle a local coordinator offers.
package remote

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/roach88/hive/internal/server"
)

// Params configures Connect.
type Params struct {
	// Host is the remote control server address, e.g. "queen:9200".
	Host string

	// ReplyTimeout bounds the wait for a kill acknowledgement.
	// Defaults to DefaultReplyTimeout.
	ReplyTimeout time.Duration

	Log   *slog.Logger
	Debug *slog.Logger
}

// DefaultReplyTimeout is used when Params.ReplyTimeout is zero.
const DefaultReplyTimeout = 5 * time.Second

// Coordinator is a handle to a remote coordinator.
type Coordinator struct {
	host  string
	conn  *websocket.Conn
	log   *slog.Logger
	debug *slog.Logger

	replyTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Connect dials the remote control endpoint in the background and calls done
// exactly once with the handle or the dial error.
func Connect(p Params, done func(*Coordinator, error)) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	debug := p.Debug
	if debug == nil {
		debug = slog.New(slog.DiscardHandler)
	}
	timeout := p.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}

	go func() {
		url := fmt.Sprintf("ws://%s/control", p.Host)
		debug.Debug("dialing remote coordinator", "url", url)

		conn, err := websocket.Dial(url, "", "http://localhost/")
		if err != nil {
			done(nil, fmt.Errorf("connect to remote coordinator %s: %w", p.Host, err))
			return
		}
		log.Info("connected to remote coordinator", "host", p.Host)
		done(&Coordinator{host: p.Host, conn: conn, log: log, debug: debug, replyTimeout: timeout}, nil)
	}()
}

// Host returns the remote address.
func (c *Coordinator) Host() string {
	return c.host
}

// Kill asks the remote coordinator to stop and closes the connection. It
// waits at most the reply timeout for the acknowledgement.
func (c *Coordinator) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	defer c.conn.Close()

	if err := c.conn.SetDeadline(time.Now().Add(c.replyTimeout)); err != nil {
		c.debug.Debug("set kill deadline", "host", c.host, "error", err)
	}

	if err := websocket.JSON.Send(c.conn, server.Command{Command: server.CommandKill}); err != nil {
		c.log.Error("send kill to remote coordinator", "host", c.host, "error", err)
		return
	}
	var reply server.Reply
	if err := websocket.JSON.Receive(c.conn, &reply); err != nil {
		c.debug.Debug("no kill acknowledgement", "host", c.host, "error", err)
		return
	}
	if !reply.OK {
		c.log.Error("remote coordinator refused kill", "host", c.host, "error", reply.Error)
	}
}
