package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/hive/internal/config"
	"github.com/roach88/hive/internal/remote"
	"github.com/roach88/hive/internal/server"
)

// Coordinator is the launched coordinator as seen by the launcher, plugins
// and scripts. Its internals belong to whichever factory built it.
type Coordinator interface {
	Kill()
}

// FactoryParams are handed to the coordinator factory.
type FactoryParams struct {
	// Host is the remote coordinator address; empty for a local one.
	Host              string
	Capture           string
	HeartbeatInterval time.Duration
	Log               *slog.Logger
	Debug             *slog.Logger
}

// Factory builds a coordinator and reports it through done, either
// synchronously or later from another goroutine.
type Factory func(params FactoryParams, done func(Coordinator, error))

// Callback receives the launch outcome: the ready coordinator or an error.
type Callback func(Coordinator, error)

// Sinks are the derived loggers handed to plugins and the control server.
type Sinks struct {
	Log   *slog.Logger
	Debug *slog.Logger
}

// PluginFactory extends a freshly built coordinator. A panic is not
// recovered and aborts the rest of the launch.
type PluginFactory func(c Coordinator, cfg *LaunchConfig, sinks Sinks)

// Plugin is a named PluginFactory.
type Plugin struct {
	Name    string
	Factory PluginFactory
}

// ServerStarter starts the fallback control server and reports the running
// server (as something closable) or the bind error through done.
type ServerStarter func(c Coordinator, host string, sinks Sinks, done func(io.Closer, error))

// ErrFactoryMissing is returned by Launch when no factory is given and no
// remote host is configured.
var ErrFactoryMissing = errors.New("coordinator factory must be defined")

// Launcher sequences a launch. The zero value is not usable; call New.
type Launcher struct {
	client      *http.Client
	startServer ServerStarter
	remote      Factory
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithHTTPClient sets the client used to fetch remote scripts.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Launcher) { l.client = c }
}

// WithServerStarter replaces the fallback control server.
func WithServerStarter(s ServerStarter) Option {
	return func(l *Launcher) { l.startServer = s }
}

// WithRemoteFactory replaces the factory used when a remote host is set.
func WithRemoteFactory(f Factory) Option {
	return func(l *Launcher) { l.remote = f }
}

// WithLogger sets the logger the sinks derive from. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// WithTracer sets the tracer for launch spans. Defaults to the global
// provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(l *Launcher) { l.tracer = t }
}

// New creates a Launcher.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		client:      http.DefaultClient,
		startServer: startControlServer,
		remote:      connectRemote,
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/roach88/hive/internal/launcher"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch runs the launch sequence for cfg. See the package documentation
// for the order of steps.
//
// A non-nil error means the launch never reached the factory and done will
// not be called. Otherwise done is called exactly once.
func (l *Launcher) Launch(ctx context.Context, cfg *LaunchConfig, factory Factory, done Callback) error {
	if cfg == nil {
		return ErrConfigurationMissing
	}
	if done == nil {
		done = func(Coordinator, error) {}
	}

	if err := l.resolveModule(cfg); err != nil {
		return err
	}
	if err := l.applyDefaults(cfg); err != nil {
		return err
	}
	l.deriveSinks(cfg)
	if err := resolvePlugins(cfg); err != nil {
		return err
	}
	if cfg.Shutdown == nil {
		cfg.Shutdown = &Hooks{}
	}

	if cfg.Options.Remote != "" {
		factory = l.remote
	}
	if factory == nil {
		return ErrFactoryMissing
	}

	ctx, span := l.tracer.Start(ctx, "hive.launch", trace.WithAttributes(
		attribute.String("hive.branch", Classify(cfg.Script).String()),
		attribute.Bool("hive.remote", cfg.Options.Remote != ""),
	))
	finish := func(c Coordinator, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		done(c, err)
	}

	cfg.Log.Info("starting")
	cfg.Debug.Debug("verbose logging enabled")

	factory(FactoryParams{
		Host:              cfg.Options.Remote,
		Capture:           cfg.Options.Capture,
		HeartbeatInterval: cfg.Options.HeartbeatInterval,
		Log:               cfg.Log,
		Debug:             cfg.Debug,
	}, func(c Coordinator, err error) {
		l.configure(ctx, c, err, cfg, finish)
	})
	return nil
}

func (l *Launcher) resolveModule(cfg *LaunchConfig) error {
	if cfg.Values == nil {
		cfg.Values = config.Values{}
	}
	if cfg.Values.Set(config.KeyConfig) {
		cfg.Values[config.KeyModule] = cfg.Values[config.KeyConfig]
	}

	var mod *config.Module
	if path, ok := cfg.Values[config.KeyModule].(string); ok && path != "" {
		m, err := config.LoadModule(cfg.resolvePath(path))
		if err != nil {
			l.logger.Error("unable to load config module", "module", path, "error", err)
			return NewConfigModuleError(path, err)
		}
		mod = m
	} else {
		dir, err := cfg.workDir()
		if err != nil {
			l.logger.Debug("no working directory to probe for config module", "error", err)
			return nil
		}
		m, err := config.ProbeModule(dir)
		if err != nil {
			l.logger.Debug("ignoring conventional config module", "dir", dir, "error", err)
			return nil
		}
		mod = m
	}
	if mod == nil {
		return nil
	}

	if mod.Callable() {
		cfg.Script = Script{Func: luaFileScript(mod.ScriptPath)}
		return nil
	}
	// One level only: a "module" key inside the module is merged as a plain
	// value and never loaded.
	cfg.Values = config.SetDefaults(cfg.Values, mod.Values)
	return nil
}

func (l *Launcher) applyDefaults(cfg *LaunchConfig) error {
	defaults, err := config.Defaults()
	if err != nil {
		return err
	}
	cfg.Values = config.SetDefaults(cfg.Values, defaults)

	opts, err := config.Decode(cfg.Values)
	if err != nil {
		return err
	}
	cfg.Options = opts

	if cfg.Script.IsZero() && opts.Script != "" {
		cfg.Script = Script{Source: opts.Script}
	}
	return nil
}

func (l *Launcher) deriveSinks(cfg *LaunchConfig) {
	discard := slog.New(slog.DiscardHandler)
	cfg.Log = discard
	cfg.Debug = discard
	if !cfg.Options.Quiet {
		cfg.Log = l.logger
	}
	if cfg.Options.Verbose {
		cfg.Debug = l.logger
	}
}

func resolvePlugins(cfg *LaunchConfig) error {
	have := make(map[string]bool, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		have[p.Name] = true
	}
	for _, name := range cfg.Options.Plugin {
		if have[name] {
			continue
		}
		factory, ok := cfg.PluginCatalog[name]
		if !ok {
			return &LaunchError{Code: ErrCodeUnknownPlugin, Message: "no plugin registered under name", Target: name}
		}
		cfg.Plugins = append(cfg.Plugins, Plugin{Name: name, Factory: factory})
		have[name] = true
	}
	return nil
}

func (l *Launcher) configure(ctx context.Context, c Coordinator, err error, cfg *LaunchConfig, finish Callback) {
	if err == nil && c == nil {
		err = errors.New("coordinator factory returned neither coordinator nor error")
	}
	if err != nil {
		cfg.Log.Error("coordinator instantiation error", "error", err)
		finish(nil, err)
		return
	}

	cfg.Shutdown.Register("coordinator", c.Kill)

	sinks := Sinks{Log: cfg.Log, Debug: cfg.Debug}
	for _, p := range cfg.Plugins {
		cfg.Log.Info("initializing plugin", "plugin", p.Name)
		p.Factory(c, cfg, sinks)
	}

	l.dispatch(ctx, c, cfg, finish)
}

func (l *Launcher) dispatch(ctx context.Context, c Coordinator, cfg *LaunchConfig, finish Callback) {
	switch Classify(cfg.Script) {
	case BranchServer:
		l.serve(c, cfg, finish)
	case BranchRemote:
		go l.runRemote(ctx, c, cfg, finish)
	case BranchLocal:
		runLocal(c, cfg, finish)
	case BranchFunc:
		runFunc(c, cfg, finish)
	}
}

func (l *Launcher) serve(c Coordinator, cfg *LaunchConfig, finish Callback) {
	host := cfg.Options.Host
	sinks := Sinks{Log: cfg.Log, Debug: cfg.Debug}
	l.startServer(c, host, sinks, func(srv io.Closer, err error) {
		if err != nil {
			cfg.Log.Error("unable to start control server", "host", host, "error", err)
			if !IsServerStartError(err) {
				err = NewServerStartError(host, err)
			}
			finish(nil, err)
			return
		}
		cfg.Shutdown.Register("control server", func() {
			if err := srv.Close(); err != nil {
				cfg.Log.Error("closing control server", "error", err)
			}
		})
		finish(c, nil)
	})
}

func connectRemote(p FactoryParams, done func(Coordinator, error)) {
	remote.Connect(remote.Params{Host: p.Host, Log: p.Log, Debug: p.Debug}, func(c *remote.Coordinator, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		done(c, nil)
	})
}

func startControlServer(c Coordinator, host string, sinks Sinks, done func(io.Closer, error)) {
	server.Start(c, server.Options{Host: host, Log: sinks.Log, Debug: sinks.Debug}, func(s *server.Server, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		done(s, nil)
	})
}

func (cfg *LaunchConfig) workDir() (string, error) {
	if cfg.WorkDir != "" {
		return cfg.WorkDir, nil
	}
	return os.Getwd()
}

func (cfg *LaunchConfig) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	dir, err := cfg.workDir()
	if err != nil {
		return path
	}
	return filepath.Join(dir, path)
}

// String is used in span attributes and logs.
func (b Branch) String() string {
	switch b {
	case BranchRemote:
		return "remote"
	case BranchLocal:
		return "local"
	case BranchFunc:
		return "func"
	default:
		return "server"
	}
}
