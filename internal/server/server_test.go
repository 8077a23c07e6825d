package server

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type fakeCoordinator struct {
	mu     sync.Mutex
	killed int
}

func (f *fakeCoordinator) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed++
}

func (f *fakeCoordinator) Kills() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

func (f *fakeCoordinator) Status() any {
	return map[string]any{"providers": 2}
}

func start(t *testing.T, c Coordinator, host string) (*Server, error) {
	t.Helper()
	type result struct {
		s   *Server
		err error
	}
	ch := make(chan result, 1)
	Start(c, Options{Host: host}, func(s *Server, err error) {
		ch <- result{s, err}
	})
	r := <-ch
	if r.s != nil {
		t.Cleanup(func() { _ = r.s.Close() })
	}
	return r.s, r.err
}

func TestStart_Status(t *testing.T) {
	s, err := start(t, &fakeCoordinator{}, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"providers": float64(2)}, body["coordinator"])
}

func TestStart_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, err := start(t, &fakeCoordinator{}, ln.Addr().String())
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestControl_Kill(t *testing.T) {
	c := &fakeCoordinator{}
	s, err := start(t, c, "127.0.0.1:0")
	require.NoError(t, err)

	ws, err := websocket.Dial("ws://"+s.Addr()+"/control", "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, websocket.JSON.Send(ws, Command{Command: "status?"}))
	var reply Reply
	require.NoError(t, websocket.JSON.Receive(ws, &reply))
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, "unknown command")

	require.NoError(t, websocket.JSON.Send(ws, Command{Command: CommandKill}))
	require.NoError(t, websocket.JSON.Receive(ws, &reply))
	assert.True(t, reply.OK)
	assert.Equal(t, 1, c.Kills())
}

func TestClose_Idempotent(t *testing.T) {
	s, err := start(t, &fakeCoordinator{}, "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
