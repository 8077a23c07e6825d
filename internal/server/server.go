// Package server implements the fallback control server that keeps a
// coordinator reachable when no script drives it.
//
// Endpoints:
//
//	GET  /status    JSON snapshot of the coordinator (when it reports one)
//	WS   /control   JSON commands, currently {"command": "kill"}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// Coordinator is what the control server drives.
type Coordinator interface {
	Kill()
}

// StatusReporter is implemented by coordinators that can describe themselves
// for GET /status.
type StatusReporter interface {
	Status() any
}

// Options configures Start.
type Options struct {
	// Host is the bind address, e.g. "localhost:9200".
	Host string

	Log   *slog.Logger
	Debug *slog.Logger
}

// Command is a control message received on /control.
type Command struct {
	Command string `json:"command"`
}

// Reply answers a Command.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CommandKill stops the coordinator.
const CommandKill = "kill"

// Server is a running control server.
type Server struct {
	coordinator Coordinator
	listener    net.Listener
	http        *http.Server
	log         *slog.Logger
	debug       *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Start binds opts.Host and serves in the background. done is called exactly
// once from another goroutine: with the server once it is listening, or with
// the bind error.
func Start(c Coordinator, opts Options, done func(*Server, error)) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	debug := opts.Debug
	if debug == nil {
		debug = slog.New(slog.DiscardHandler)
	}

	go func() {
		ln, err := net.Listen("tcp", opts.Host)
		if err != nil {
			done(nil, err)
			return
		}

		s := &Server{
			coordinator: c,
			listener:    ln,
			log:         log,
			debug:       debug,
		}
		s.http = &http.Server{Handler: s.routes()}

		log.Info("control server listening", "addr", ln.Addr().String())
		done(s, nil)

		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("control server stopped", "error", err)
		}
	}()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("/control", websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.handleControl,
	})
	return mux
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.http.Shutdown(context.Background())
	})
	return s.closeErr
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready"}
	if reporter, ok := s.coordinator.(StatusReporter); ok {
		body["coordinator"] = reporter.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.debug.Debug("write status", "error", err)
	}
}

func (s *Server) handleControl(ws *websocket.Conn) {
	defer ws.Close()
	s.debug.Debug("control client connected", "remote", ws.Request().RemoteAddr)

	for {
		var cmd Command
		if err := websocket.JSON.Receive(ws, &cmd); err != nil {
			s.debug.Debug("control client gone", "error", err)
			return
		}

		reply := s.execute(cmd)
		if err := websocket.JSON.Send(ws, reply); err != nil {
			s.debug.Debug("control reply failed", "error", err)
			return
		}
		if cmd.Command == CommandKill {
			return
		}
	}
}

func (s *Server) execute(cmd Command) Reply {
	switch cmd.Command {
	case CommandKill:
		s.log.Info("kill requested over control channel")
		s.coordinator.Kill()
		return Reply{OK: true}
	default:
		return Reply{OK: false, Error: "unknown command: " + cmd.Command}
	}
}
