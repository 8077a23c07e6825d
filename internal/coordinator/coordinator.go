// Package coordinator is hive's default local coordinator.
//
// It accepts worker sources on a capture endpoint, wraps each connection in
// a provider, and keeps a registry of providers with their availability and
// live workers. Test scheduling is not its concern: plugins and scripts build
// on the registry and on OnProvider.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/roach88/hive/internal/channel"
	"github.com/roach88/hive/internal/provider"
	"github.com/roach88/hive/internal/transport"
)

// Params configures a Coordinator.
type Params struct {
	// Capture is the bind address of the capture endpoint. Empty disables it.
	Capture string

	// HeartbeatInterval bounds source silence: a source quiet for two
	// intervals is dropped. Zero disables the check.
	HeartbeatInterval time.Duration

	Log   *slog.Logger
	Debug *slog.Logger

	// NewID names sources that do not introduce themselves. Defaults to
	// UUIDv7 strings.
	NewID func() string
}

// ErrDuplicateProvider is returned by Attach for an id already registered.
var ErrDuplicateProvider = errors.New("provider already attached")

// ErrKilled is returned by Attach after Kill.
var ErrKilled = errors.New("coordinator killed")

type entry struct {
	provider     *provider.Provider
	conn         io.Closer
	availability provider.Availability
	workers      map[string]bool
}

// Coordinator is safe for concurrent use. Each provider's events are
// delivered on the goroutine serving its connection.
type Coordinator struct {
	log       *slog.Logger
	debug     *slog.Logger
	heartbeat time.Duration
	newID     func() string

	mu       sync.Mutex
	entries  map[string]*entry
	watchers []func(*provider.Facade)
	killed   bool
	done     chan struct{}

	listener net.Listener
	http     *http.Server
}

// New creates a Coordinator and, when p.Capture is set, binds the capture
// endpoint.
func New(p Params) (*Coordinator, error) {
	c := &Coordinator{
		log:       p.Log,
		debug:     p.Debug,
		heartbeat: p.HeartbeatInterval,
		newID:     p.NewID,
		entries:   make(map[string]*entry),
		done:      make(chan struct{}),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.debug == nil {
		c.debug = slog.New(slog.DiscardHandler)
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	if p.Capture == "" {
		return c, nil
	}

	ln, err := net.Listen("tcp", p.Capture)
	if err != nil {
		return nil, fmt.Errorf("bind capture endpoint: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(transport.CapturePath, websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   c.serveSource,
	})
	c.listener = ln
	c.http = &http.Server{Handler: mux}

	go func() {
		if err := c.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("capture endpoint stopped", "error", err)
		}
	}()
	c.log.Info("capture endpoint listening", "addr", ln.Addr().String())
	return c, nil
}

// Start builds a Coordinator in the background and reports it through done.
func Start(p Params, done func(*Coordinator, error)) {
	go func() {
		c, err := New(p)
		done(c, err)
	}()
}

// CaptureAddr returns the bound capture address, or "" when disabled.
func (c *Coordinator) CaptureAddr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Done is closed by Kill.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// OnProvider calls fn for every attached provider, now and in the future.
func (c *Coordinator) OnProvider(fn func(*provider.Facade)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	existing := make([]*provider.Facade, 0, len(c.entries))
	for _, id := range c.sortedIDs() {
		existing = append(existing, c.entries[id].provider.Facade())
	}
	c.mu.Unlock()

	for _, f := range existing {
		fn(f)
	}
}

// Attach registers a provider over ch. The returned facade is also handed to
// every OnProvider watcher.
func (c *Coordinator) Attach(id string, ch channel.Channel, attributes map[string]any) (*provider.Facade, error) {
	return c.attach(id, ch, attributes, nil)
}

func (c *Coordinator) attach(id string, ch channel.Channel, attributes map[string]any, conn io.Closer) (*provider.Facade, error) {
	p, err := provider.New(id, ch, attributes)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		p.Close()
		return nil, ErrKilled
	}
	if _, ok := c.entries[id]; ok {
		c.mu.Unlock()
		p.Close()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}
	e := &entry{provider: p, conn: conn, workers: make(map[string]bool)}
	c.entries[id] = e
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()

	f := p.Facade()
	c.track(id, f)
	for _, fn := range watchers {
		fn(f)
	}
	c.log.Info("provider attached", "provider", id, "attributes", f.Attributes().Len())
	return f, nil
}

// track mirrors provider events into the registry.
func (c *Coordinator) track(id string, f *provider.Facade) {
	update := func(fn func(e *entry)) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[id]; ok {
			fn(e)
		}
	}
	f.Subscribe(provider.EventAvailable, func(any) {
		update(func(e *entry) { e.availability = provider.AvailabilityAvailable })
	})
	f.Subscribe(provider.EventUnavailable, func(any) {
		update(func(e *entry) { e.availability = provider.AvailabilityUnavailable })
	})
	f.Subscribe(provider.EventWorker, func(payload any) {
		if w, ok := payload.(provider.Worker); ok {
			update(func(e *entry) { e.workers[w.ID] = true })
			c.debug.Debug("worker spawned", "provider", id, "worker", w.ID)
		}
	})
	f.Subscribe(provider.EventWorkerDead, func(payload any) {
		if wid, ok := payload.(string); ok {
			update(func(e *entry) { delete(e.workers, wid) })
			c.debug.Debug("worker dead", "provider", id, "worker", wid)
		}
	})
}

// Detach removes a provider and stops decoding its messages.
func (c *Coordinator) Detach(id string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	if !ok {
		return
	}
	e.provider.Close()
	c.log.Info("provider detached", "provider", id)
}

func (c *Coordinator) serveSource(ws *websocket.Conn) {
	defer ws.Close()

	hello, err := transport.ReadHello(ws, 2*c.heartbeat)
	if err != nil {
		c.debug.Debug("source left before hello", "remote", ws.Request().RemoteAddr, "error", err)
		return
	}
	id := hello.ID
	if id == "" {
		id = c.newID()
	}
	attrs := hello.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	ch := channel.NewEmitter()
	if _, err := c.attach(id, ch, attrs, ws); err != nil {
		c.log.Error("rejecting source", "provider", id, "error", err)
		return
	}
	defer c.Detach(id)

	err = transport.Pump(ws, ch, transport.PumpOptions{ReadTimeout: 2 * c.heartbeat, Debug: c.debug})
	if err != nil {
		c.debug.Debug("source connection ended", "provider", id, "error", err)
	}
}

// ProviderStatus is a registry snapshot of one provider.
type ProviderStatus struct {
	ID           string         `json:"id"`
	Availability string         `json:"availability"`
	Attributes   map[string]any `json:"attributes"`
	Workers      []string       `json:"workers"`
}

// Providers returns a snapshot of the registry ordered by id.
func (c *Coordinator) Providers() []ProviderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ProviderStatus, 0, len(c.entries))
	for _, id := range c.sortedIDs() {
		e := c.entries[id]
		workers := make([]string, 0, len(e.workers))
		for w := range e.workers {
			workers = append(workers, w)
		}
		sort.Strings(workers)
		out = append(out, ProviderStatus{
			ID:           id,
			Availability: e.availability.String(),
			Attributes:   e.provider.Facade().Attributes().Map(),
			Workers:      workers,
		})
	}
	return out
}

// Status implements the control server's status report.
func (c *Coordinator) Status() any {
	c.mu.Lock()
	killed := c.killed
	c.mu.Unlock()
	return map[string]any{
		"capture":   c.CaptureAddr(),
		"killed":    killed,
		"providers": c.Providers(),
	}
}

// Kill stops the capture endpoint, drops every source and closes Done.
// It is idempotent.
func (c *Coordinator) Kill() {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return
	}
	c.killed = true
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	if c.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.http.Shutdown(ctx); err != nil {
			c.log.Error("stopping capture endpoint", "error", err)
		}
	}
	for _, e := range entries {
		e.provider.Close()
		if e.conn != nil {
			_ = e.conn.Close()
		}
	}
	close(c.done)
	c.log.Info("coordinator killed")
}

// sortedIDs must be called with mu held.
func (c *Coordinator) sortedIDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
