package testutil

import (
	"sync"

	"github.com/roach88/hive/internal/sandbox"
)

// FakeCoordinator is a stand-in coordinator for launcher, plugin and script
// tests. Scripts see it through the sandbox as:
//
//	coordinator.mark(value)  record value and set Marked
//	coordinator.get(key)     read a value stored with set
//	coordinator.set(key, v)  store a value
//
// Thread-safety: all methods are safe for concurrent use.
type FakeCoordinator struct {
	mu     sync.Mutex
	kills  int
	marked bool
	marks  []any
	values map[string]any
}

// NewFakeCoordinator creates an unmarked, unkilled coordinator.
func NewFakeCoordinator() *FakeCoordinator {
	return &FakeCoordinator{values: make(map[string]any)}
}

// Kill records a kill.
func (f *FakeCoordinator) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
}

// Kills returns how often Kill was called.
func (f *FakeCoordinator) Kills() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

// Mark sets the marked flag, as an inline script would.
func (f *FakeCoordinator) Mark(value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = true
	f.marks = append(f.marks, value)
}

// Marked reports whether Mark (or the script method "mark") ran.
func (f *FakeCoordinator) Marked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked
}

// Marks returns every marked value in call order.
func (f *FakeCoordinator) Marks() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.marks...)
}

// Value returns a value stored by a script.
func (f *FakeCoordinator) Value(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

// ScriptMethods implements sandbox.Scriptable.
func (f *FakeCoordinator) ScriptMethods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"mark": func(args []any) (any, error) {
			var v any
			if len(args) > 0 {
				v = args[0]
			}
			f.Mark(v)
			return nil, nil
		},
		"set": func(args []any) (any, error) {
			if len(args) != 2 {
				return nil, errWrongArgs
			}
			key, _ := args[0].(string)
			f.mu.Lock()
			f.values[key] = args[1]
			f.mu.Unlock()
			return nil, nil
		},
		"get": func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, errWrongArgs
			}
			key, _ := args[0].(string)
			return f.Value(key), nil
		},
	}
}
