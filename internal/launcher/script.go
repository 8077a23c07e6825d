package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/hive/internal/sandbox"
)

// Branch is the script dispatch strategy.
type Branch int

const (
	// BranchServer starts the fallback control server (no script).
	BranchServer Branch = iota
	// BranchRemote fetches the script over the network and sandboxes it.
	BranchRemote
	// BranchLocal resolves the script as a local module.
	BranchLocal
	// BranchFunc calls an inline Go function.
	BranchFunc
)

// uriSeparator marks a script source as remote.
const uriSeparator = "://"

// Classify selects the dispatch branch from the shape of s alone.
func Classify(s Script) Branch {
	switch {
	case s.Func != nil:
		return BranchFunc
	case s.Source == "":
		return BranchServer
	case strings.Contains(s.Source, uriSeparator):
		return BranchRemote
	default:
		return BranchLocal
	}
}

func (l *Launcher) runRemote(ctx context.Context, c Coordinator, cfg *LaunchConfig, finish Callback) {
	url := cfg.Script.Source
	cfg.Log.Info("loading remote script", "url", url)

	body, err := l.fetch(ctx, url)
	if err != nil {
		cfg.Log.Error("unable to load remote script", "url", url, "error", err)
		finish(nil, err)
		return
	}

	cfg.Log.Info("executing remote script", "url", url)
	if err := sandbox.Run(url, body, c); err != nil {
		cfg.Log.Error("error executing remote script", "url", url, "error", err)
		finish(nil, NewExecutionError(url, err))
		return
	}
	finish(c, nil)
}

func (l *Launcher) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", NewFetchError(url, 0, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", NewFetchError(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewFetchError(url, resp.StatusCode, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewFetchError(url, 0, err)
	}
	return string(body), nil
}

func runLocal(c Coordinator, cfg *LaunchConfig, finish Callback) {
	name := cfg.Script.Source
	cfg.Log.Info("loading script module", "module", name)

	fn, err := resolveLocal(cfg, name)
	if err == nil {
		err = invoke(fn, c)
	}
	if err != nil {
		cfg.Log.Error("error loading script module", "module", name, "error", err)
		finish(nil, NewExecutionError(name, err))
		return
	}
	finish(c, nil)
}

func runFunc(c Coordinator, cfg *LaunchConfig, finish Callback) {
	if err := invoke(cfg.Script.Func, c); err != nil {
		cfg.Log.Error("error executing script", "error", err)
		finish(nil, NewExecutionError("inline", err))
		return
	}
	finish(c, nil)
}

// ErrModuleNotFound is wrapped in the execution error of a local script
// that resolves to nothing.
var ErrModuleNotFound = errors.New("script module not found")

// resolveLocal looks a local script up in the static module table first,
// then as a Lua file relative to the work directory.
func resolveLocal(cfg *LaunchConfig, name string) (ScriptFunc, error) {
	if fn, ok := cfg.Modules[name]; ok {
		return fn, nil
	}

	path := cfg.resolvePath(name)
	candidates := []string{path}
	if filepath.Ext(path) == "" {
		candidates = append(candidates, path+".lua")
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if filepath.Ext(candidate) != ".lua" {
			return nil, fmt.Errorf("%s: only Lua script modules can be loaded from disk", candidate)
		}
		return luaFileScript(candidate), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

func luaFileScript(path string) ScriptFunc {
	return func(c Coordinator) error {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		return sandbox.Run(path, string(src), c)
	}
}

// invoke calls fn and converts a panic into an error.
func invoke(fn ScriptFunc, c Coordinator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()
	return fn(c)
}
