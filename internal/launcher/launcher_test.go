package launcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hive/internal/config"
	"github.com/roach88/hive/internal/testutil"
)

// outcome is what the completion callback received.
type outcome struct {
	c     Coordinator
	err   error
	calls int
}

// launchAndWait runs Launch and blocks until the callback fires. It fails the
// test if the callback fires more than once within a short grace period.
func launchAndWait(t *testing.T, l *Launcher, cfg *LaunchConfig, factory Factory) outcome {
	t.Helper()

	var mu sync.Mutex
	var out outcome
	fired := make(chan struct{}, 1)

	err := l.Launch(context.Background(), cfg, factory, func(c Coordinator, err error) {
		mu.Lock()
		out.c, out.err = c, err
		out.calls++
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("launch callback never fired")
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, out.calls, "callback must fire exactly once")
	return out
}

// stubFactory yields c synchronously.
func stubFactory(c Coordinator) Factory {
	return func(_ FactoryParams, done func(Coordinator, error)) {
		done(c, nil)
	}
}

func errFactory(err error) Factory {
	return func(_ FactoryParams, done func(Coordinator, error)) {
		done(nil, err)
	}
}

// newConfig isolates the launch from the test process working directory.
func newConfig(t *testing.T, values config.Values) *LaunchConfig {
	t.Helper()
	cfg := NewLaunchConfig(values)
	cfg.WorkDir = t.TempDir()
	return cfg
}

// failingServer fails the test if the fallback server is started.
func failingServer(t *testing.T) Option {
	return WithServerStarter(func(Coordinator, string, Sinks, func(io.Closer, error)) {
		t.Error("control server must not start")
	})
}

func TestLaunch_NilConfig(t *testing.T) {
	called := false
	err := New().Launch(context.Background(), nil, stubFactory(testutil.NewFakeCoordinator()), func(Coordinator, error) {
		called = true
	})
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.False(t, called)
}

func TestLaunch_NoFactory(t *testing.T) {
	err := New().Launch(context.Background(), newConfig(t, nil), nil, nil)
	assert.ErrorIs(t, err, ErrFactoryMissing)
}

func TestLaunch_InlineScriptMarksCoordinator(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	cfg.Script = Script{Func: func(c Coordinator) error {
		c.(*testutil.FakeCoordinator).Mark(true)
		return nil
	}}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(fake))

	require.NoError(t, out.err)
	assert.Same(t, fake, out.c)
	assert.True(t, fake.Marked())
}

func TestLaunch_FactoryErrorStopsEverything(t *testing.T) {
	factoryErr := errors.New("no browsers today")
	pluginRan := false
	scriptRan := false

	cfg := newConfig(t, nil)
	cfg.Use("spy", func(Coordinator, *LaunchConfig, Sinks) { pluginRan = true })
	cfg.Script = Script{Func: func(Coordinator) error {
		scriptRan = true
		return nil
	}}

	out := launchAndWait(t, New(failingServer(t)), cfg, errFactory(factoryErr))

	assert.Same(t, factoryErr, out.err)
	assert.Nil(t, out.c)
	assert.False(t, pluginRan)
	assert.False(t, scriptRan)
	assert.Equal(t, 0, cfg.Shutdown.Len())
}

func TestLaunch_FactoryReturningNothing(t *testing.T) {
	out := launchAndWait(t, New(failingServer(t)), newConfig(t, nil), func(_ FactoryParams, done func(Coordinator, error)) {
		done(nil, nil)
	})
	assert.Error(t, out.err)
}

func TestLaunch_AsyncFactory(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	cfg.Script = Script{Func: func(Coordinator) error { return nil }}

	out := launchAndWait(t, New(), cfg, func(_ FactoryParams, done func(Coordinator, error)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			done(fake, nil)
		}()
	})
	require.NoError(t, out.err)
	assert.Same(t, fake, out.c)
}

func TestLaunch_FactoryParams(t *testing.T) {
	var got FactoryParams
	cfg := newConfig(t, config.Values{
		config.KeyCapture:           "127.0.0.1:7000",
		config.KeyHeartbeatInterval: "3s",
	})
	cfg.Script = Script{Func: func(Coordinator) error { return nil }}

	out := launchAndWait(t, New(), cfg, func(p FactoryParams, done func(Coordinator, error)) {
		got = p
		done(testutil.NewFakeCoordinator(), nil)
	})
	require.NoError(t, out.err)

	assert.Equal(t, "", got.Host)
	assert.Equal(t, "127.0.0.1:7000", got.Capture)
	assert.Equal(t, 3*time.Second, got.HeartbeatInterval)
	assert.NotNil(t, got.Log)
	assert.NotNil(t, got.Debug)
}

func TestLaunch_RemoteSelectsRemoteFactory(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	var remoteHost string
	l := New(WithRemoteFactory(func(p FactoryParams, done func(Coordinator, error)) {
		remoteHost = p.Host
		done(fake, nil)
	}))

	cfg := newConfig(t, config.Values{config.KeyRemote: "queen.example:9200"})
	cfg.Script = Script{Func: func(Coordinator) error { return nil }}

	out := launchAndWait(t, l, cfg, func(FactoryParams, func(Coordinator, error)) {
		t.Error("caller factory must not be used when remote is set")
	})
	require.NoError(t, out.err)
	assert.Equal(t, "queen.example:9200", remoteHost)
	assert.Same(t, fake, out.c)
}

func TestLaunch_ShutdownHookKills(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	cfg.Script = Script{Func: func(Coordinator) error { return nil }}

	out := launchAndWait(t, New(), cfg, stubFactory(fake))
	require.NoError(t, out.err)
	assert.Equal(t, 0, fake.Kills())

	cfg.Shutdown.Run()
	cfg.Shutdown.Run()
	assert.Equal(t, 1, fake.Kills())
}

func TestLaunch_PluginsRunInOrder(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	var order []string
	var scriptSawPlugins []string

	plugin := func(name string) PluginFactory {
		return func(c Coordinator, cfg *LaunchConfig, sinks Sinks) {
			assert.Same(t, fake, c)
			assert.NotNil(t, cfg.Log)
			assert.NotNil(t, sinks.Log)
			assert.NotNil(t, sinks.Debug)
			order = append(order, name)
		}
	}

	cfg := newConfig(t, config.Values{config.KeyPlugin: []any{"catalogued", "first"}})
	cfg.Use("first", plugin("first"))
	cfg.Use("second", plugin("second"))
	cfg.PluginCatalog = map[string]PluginFactory{"catalogued": plugin("catalogued")}
	cfg.Script = Script{Func: func(Coordinator) error {
		scriptSawPlugins = append([]string(nil), order...)
		return nil
	}}

	out := launchAndWait(t, New(), cfg, stubFactory(fake))
	require.NoError(t, out.err)

	assert.Equal(t, []string{"first", "second", "catalogued"}, order)
	assert.Equal(t, order, scriptSawPlugins, "plugins complete before the script runs")
}

func TestLaunch_UnknownPlugin(t *testing.T) {
	factoryCalled := false
	cfg := newConfig(t, config.Values{config.KeyPlugin: []any{"nope"}})

	err := New().Launch(context.Background(), cfg, func(FactoryParams, func(Coordinator, error)) {
		factoryCalled = true
	}, nil)

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeUnknownPlugin, le.Code)
	assert.False(t, factoryCalled)
}

func TestLaunch_PluginPanicPropagates(t *testing.T) {
	scriptRan := false
	cfg := newConfig(t, nil)
	cfg.Use("boom", func(Coordinator, *LaunchConfig, Sinks) { panic("plugin exploded") })
	cfg.Use("after", func(Coordinator, *LaunchConfig, Sinks) { t.Error("later plugins must not run") })
	cfg.Script = Script{Func: func(Coordinator) error {
		scriptRan = true
		return nil
	}}

	assert.PanicsWithValue(t, "plugin exploded", func() {
		_ = New().Launch(context.Background(), cfg, stubFactory(testutil.NewFakeCoordinator()), nil)
	})
	assert.False(t, scriptRan)
}

func TestLaunch_InlineScriptError(t *testing.T) {
	scriptErr := errors.New("bad test run")
	cfg := newConfig(t, nil)
	cfg.Script = Script{Func: func(Coordinator) error { return scriptErr }}

	out := launchAndWait(t, New(), cfg, stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsExecutionError(out.err))
	assert.ErrorIs(t, out.err, scriptErr)
	assert.Nil(t, out.c)
}

func TestLaunch_InlineScriptPanic(t *testing.T) {
	cfg := newConfig(t, nil)
	cfg.Script = Script{Func: func(Coordinator) error { panic("kaboom") }}

	out := launchAndWait(t, New(), cfg, stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsExecutionError(out.err))
	assert.Contains(t, out.err.Error(), "kaboom")
}

func TestLaunch_RemoteScript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `return function(c) c.mark("remote") end`)
	}))
	defer srv.Close()

	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, config.Values{config.KeyScript: srv.URL + "/run.lua"})

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(fake))
	require.NoError(t, out.err)
	assert.Same(t, fake, out.c)
	assert.Equal(t, []any{"remote"}, fake.Marks())
}

func TestLaunch_RemoteScriptNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: srv.URL + "/missing.lua"}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(fake))

	require.True(t, IsFetchError(out.err))
	var le *LaunchError
	require.ErrorAs(t, out.err, &le)
	assert.Equal(t, http.StatusNotFound, le.StatusCode)
	assert.Nil(t, out.c)
	assert.False(t, fake.Marked(), "nothing may execute after a failed fetch")
}

func TestLaunch_RemoteScriptUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/run.lua"
	srv.Close()

	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: url}

	out := launchAndWait(t, New(), cfg, stubFactory(testutil.NewFakeCoordinator()))
	require.True(t, IsFetchError(out.err))
	var le *LaunchError
	require.ErrorAs(t, out.err, &le)
	assert.Equal(t, 0, le.StatusCode)
	assert.Error(t, le.Err)
}

func TestLaunch_RemoteScriptFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `os.exit(1)`)
	}))
	defer srv.Close()

	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: srv.URL}

	out := launchAndWait(t, New(), cfg, stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsExecutionError(out.err))
}

// panickingCoordinator fails its kill with a non-error panic value.
type panickingCoordinator struct{}

func (panickingCoordinator) Kill() { panic("kill failed") }

func TestLaunch_RemoteScriptPanickingKill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `coordinator.kill()`)
	}))
	defer srv.Close()

	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: srv.URL + "/kill.lua"}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(panickingCoordinator{}))
	require.True(t, IsExecutionError(out.err))
	assert.Contains(t, out.err.Error(), "kill failed")
	assert.Nil(t, out.c)
}

func TestLaunch_LocalModuleFromTable(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: "smoke"}
	cfg.Modules = map[string]ScriptFunc{
		"smoke": func(c Coordinator) error {
			c.(*testutil.FakeCoordinator).Mark("smoke")
			return nil
		},
	}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(fake))
	require.NoError(t, out.err)
	assert.Equal(t, []any{"smoke"}, fake.Marks())
}

func TestLaunch_LocalLuaFile(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.WorkDir, "local"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "local", "script.lua"),
		[]byte(`return function(c) c.mark("local") end`), 0644))
	cfg.Script = Script{Source: "./local/script"}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(fake))
	require.NoError(t, out.err)
	assert.Equal(t, []any{"local"}, fake.Marks())
}

func TestLaunch_LocalModuleMissing(t *testing.T) {
	cfg := newConfig(t, nil)
	cfg.Script = Script{Source: "./does/not/exist"}

	out := launchAndWait(t, New(failingServer(t)), cfg, stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsExecutionError(out.err))
	assert.ErrorIs(t, out.err, ErrModuleNotFound)
}

func TestLaunch_LocalNonLuaFile(t *testing.T) {
	cfg := newConfig(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "script.sh"), []byte("rm -rf /"), 0644))
	cfg.Script = Script{Source: "script.sh"}

	out := launchAndWait(t, New(), cfg, stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsExecutionError(out.err))
}

func TestLaunch_FallbackServer(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	var gotHost string
	closer := &closeRecorder{}
	l := New(WithServerStarter(func(c Coordinator, host string, sinks Sinks, done func(io.Closer, error)) {
		gotHost = host
		assert.Same(t, fake, c)
		go done(closer, nil)
	}))

	cfg := newConfig(t, config.Values{config.KeyHost: "127.0.0.1:9999"})
	out := launchAndWait(t, l, cfg, stubFactory(fake))

	require.NoError(t, out.err)
	assert.Same(t, fake, out.c)
	assert.Equal(t, "127.0.0.1:9999", gotHost)

	cfg.Shutdown.Run()
	assert.True(t, closer.closed)
	assert.Equal(t, 1, fake.Kills())
}

func TestLaunch_FallbackServerDefaultHost(t *testing.T) {
	var gotHost string
	l := New(WithServerStarter(func(_ Coordinator, host string, _ Sinks, done func(io.Closer, error)) {
		gotHost = host
		done(&closeRecorder{}, nil)
	}))

	out := launchAndWait(t, l, newConfig(t, nil), stubFactory(testutil.NewFakeCoordinator()))
	require.NoError(t, out.err)
	assert.Equal(t, "localhost:9200", gotHost)
}

func TestLaunch_FallbackServerBindError(t *testing.T) {
	bindErr := errors.New("address in use")
	l := New(WithServerStarter(func(_ Coordinator, _ string, _ Sinks, done func(io.Closer, error)) {
		done(nil, bindErr)
	}))

	out := launchAndWait(t, l, newConfig(t, nil), stubFactory(testutil.NewFakeCoordinator()))
	assert.True(t, IsServerStartError(out.err))
	assert.ErrorIs(t, out.err, bindErr)
	assert.Nil(t, out.c)
}

func TestLaunch_RealControlServer(t *testing.T) {
	fake := testutil.NewFakeCoordinator()
	cfg := newConfig(t, config.Values{config.KeyHost: "127.0.0.1:0"})

	out := launchAndWait(t, New(), cfg, stubFactory(fake))
	require.NoError(t, out.err)
	defer cfg.Shutdown.Run()
	assert.Same(t, fake, out.c)
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestLaunch_Sinks(t *testing.T) {
	tests := []struct {
		name      string
		values    config.Values
		wantInfo  bool
		wantDebug bool
	}{
		{"default", nil, true, false},
		{"quiet", config.Values{config.KeyQuiet: true}, false, false},
		{"verbose", config.Values{config.KeyVerbose: true}, true, true},
		{"quiet and verbose", config.Values{config.KeyQuiet: true, config.KeyVerbose: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			cfg := newConfig(t, tt.values)
			cfg.Script = Script{Func: func(Coordinator) error { return nil }}

			out := launchAndWait(t, New(WithLogger(logger)), cfg, stubFactory(testutil.NewFakeCoordinator()))
			require.NoError(t, out.err)

			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("msg=starting")))
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("verbose logging enabled")))
		})
	}
}

func TestLaunch_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	out := launchAndWait(t, New(WithLogger(logger)), newConfig(t, nil), errFactory(errors.New("boom")))
	require.Error(t, out.err)
	assert.Contains(t, buf.String(), "coordinator instantiation error")
	assert.Contains(t, buf.String(), "boom")
}
