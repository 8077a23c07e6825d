package launcher

import (
	"log/slog"
	"sync"
)

// Hooks is an explicit shutdown sequence. The owning process registers
// cleanup steps while launching and runs them once during its controlled
// shutdown, typically after receiving SIGINT or SIGTERM.
type Hooks struct {
	mu    sync.Mutex
	hooks []hook
	ran   bool
}

type hook struct {
	name string
	fn   func()
}

// Register adds fn to the shutdown sequence. Hooks run in reverse
// registration order, like deferred calls.
func (h *Hooks) Register(name string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every registered hook once. Later calls do nothing.
func (h *Hooks) Run() {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return
	}
	h.ran = true
	hooks := h.hooks
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		slog.Debug("running shutdown hook", "hook", hooks[i].name)
		hooks[i].fn()
	}
}
