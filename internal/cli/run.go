package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hive/internal/config"
	"github.com/roach88/hive/internal/coordinator"
	"github.com/roach88/hive/internal/journal"
	"github.com/roach88/hive/internal/launcher"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Module            string
	Config            string
	Quiet             bool
	Remote            string
	Capture           string
	HeartbeatInterval time.Duration
	Host              string
	Plugins           []string
	Script            string
	Journal           string
	WorkDir           string

	// Launcher overrides the launcher (for testing).
	Launcher *launcher.Launcher
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a coordinator and run a test script",
		Long: `Launch a coordinator, initialize plugins, and run the test script.

Options are layered: flags, then HIVE_* environment variables, then the
config module (hive.cue, hive.yaml or hive.lua in the working directory, or
--module), then built-in defaults.

The script decides what happens after launch:
  (none)            serve the coordinator on --host for remote control
  http://...        fetch the script and run it sandboxed
  name or path.lua  run a local Lua script

Examples:
  hive run
  hive run --script smoke.lua --plugin journal
  hive run --remote 10.0.0.5:9200 --script http://ci/scripts/nightly.lua`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Module, "module", "", "config module path")
	f.StringVar(&opts.Config, "config", "", "alias of --module")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "silence the regular log")
	f.StringVar(&opts.Remote, "remote", "", "drive the coordinator served at this address")
	f.StringVar(&opts.Capture, "capture", "", "capture endpoint bind address")
	f.DurationVar(&opts.HeartbeatInterval, "heartbeat-interval", 0, "worker source heartbeat interval")
	f.StringVar(&opts.Host, "host", "", "control server bind address")
	f.StringSliceVar(&opts.Plugins, "plugin", nil, "plugins to load by name (repeatable)")
	f.StringVar(&opts.Script, "script", "", "test script: URL, module name or .lua path")
	f.StringVar(&opts.Journal, "journal", "", "journal database path")
	f.StringVar(&opts.WorkDir, "workdir", "", "directory for config probing and relative paths")

	return cmd
}

// explicitValues layers changed flags over HIVE_* variables.
func explicitValues(opts *RunOptions, cmd *cobra.Command) (config.Values, error) {
	envOpts, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	values := envOpts.Values()

	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	set := map[string]func(){
		"module":             func() { values[config.KeyModule] = opts.Module },
		"config":             func() { values[config.KeyConfig] = opts.Config },
		"quiet":              func() { values[config.KeyQuiet] = opts.Quiet },
		"verbose":            func() { values[config.KeyVerbose] = opts.Verbose },
		"remote":             func() { values[config.KeyRemote] = opts.Remote },
		"capture":            func() { values[config.KeyCapture] = opts.Capture },
		"heartbeat-interval": func() { values[config.KeyHeartbeatInterval] = opts.HeartbeatInterval.String() },
		"host":               func() { values[config.KeyHost] = opts.Host },
		"plugin":             func() { values[config.KeyPlugin] = opts.Plugins },
		"script":             func() { values[config.KeyScript] = opts.Script },
		"journal":            func() { values[config.KeyJournal] = opts.Journal },
	}
	for name, apply := range set {
		if changed(name) {
			apply()
		}
	}
	return values, nil
}

// coordinatorFactory builds the default local coordinator.
func coordinatorFactory(p launcher.FactoryParams, done func(launcher.Coordinator, error)) {
	coordinator.Start(coordinator.Params{
		Capture:           p.Capture,
		HeartbeatInterval: p.HeartbeatInterval,
		Log:               p.Log,
		Debug:             p.Debug,
	}, func(c *coordinator.Coordinator, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		done(c, nil)
	})
}

func runLaunch(opts *RunOptions, cmd *cobra.Command) error {
	values, err := explicitValues(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}

	// Level stays at debug; the launcher's sinks decide what is verbose.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := launcher.NewLaunchConfig(values)
	cfg.WorkDir = opts.WorkDir
	cfg.PluginCatalog = map[string]launcher.PluginFactory{
		journal.PluginName: journal.NewPlugin(),
	}
	defer cfg.Shutdown.Run()

	l := opts.Launcher
	if l == nil {
		l = launcher.New(launcher.WithLogger(logger))
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type result struct {
		c   launcher.Coordinator
		err error
	}
	launched := make(chan result, 1)
	err = l.Launch(ctx, cfg, coordinatorFactory, func(c launcher.Coordinator, err error) {
		launched <- result{c, err}
	})
	if err != nil {
		return launchFailure(opts, cmd, err)
	}

	var r result
	select {
	case r = <-launched:
	case <-ctx.Done():
		return nil
	}
	if r.err != nil {
		return launchFailure(opts, cmd, r.err)
	}

	// Local coordinators end on Kill; remote ones live until interrupted.
	var done <-chan struct{}
	if d, ok := r.c.(interface{ Done() <-chan struct{} }); ok {
		done = d.Done()
	}
	select {
	case <-done:
		logger.Debug("coordinator finished")
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	}
	return nil
}

// launchFailure reports err on stdout as JSON, or on stderr as text.
func launchFailure(opts *RunOptions, cmd *cobra.Command, err error) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	var details any
	if opts.Format == "json" {
		out.Writer = cmd.OutOrStdout()
	} else if cause := errors.Unwrap(err); cause != nil {
		details = cause
	}
	_ = out.Error(ErrorCode(err), err.Error(), details)

	code := ExitFailure
	if errors.Is(err, launcher.ErrConfigurationMissing) {
		code = ExitCommandError
	}
	exitErr := WrapExitError(code, fmt.Sprintf("launch failed [%s]", ErrorCode(err)), err)
	exitErr.Reported = true
	return exitErr
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
