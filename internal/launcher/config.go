package launcher

import (
	"log/slog"

	"github.com/roach88/hive/internal/config"
)

// ScriptFunc drives a ready coordinator. Returning an error, or panicking,
// fails the launch with an execution error.
type ScriptFunc func(c Coordinator) error

// Script is the value that selects the dispatch branch. Func takes
// precedence over Source; a zero Script starts the control server.
type Script struct {
	// Source is a URL ("scheme://...") or a local module name or path.
	Source string
	// Func is an inline script.
	Func ScriptFunc
}

// IsZero reports whether no script is set.
func (s Script) IsZero() bool {
	return s.Func == nil && s.Source == ""
}

// LaunchConfig is the mutable launch record. Launch fills in the derived
// fields (Options, Log, Debug, and Shutdown when nil) in place.
type LaunchConfig struct {
	// Values holds the explicit options. Config module exports and built-in
	// defaults are merged underneath during Launch.
	Values config.Values

	// Script overrides the "script" option and may hold a Go function.
	Script Script

	// Plugins run in slice order after the coordinator is built.
	Plugins []Plugin

	// PluginCatalog resolves the names listed in the "plugin" option.
	// Resolved plugins run after those already in Plugins.
	PluginCatalog map[string]PluginFactory

	// Modules maps local module names to statically linked scripts. A local
	// script name found here never touches the filesystem.
	Modules map[string]ScriptFunc

	// WorkDir anchors relative module and script paths and is where the
	// conventional config module is probed. Defaults to the process working
	// directory.
	WorkDir string

	// Shutdown collects cleanup for the owning process. Created by Launch
	// when nil.
	Shutdown *Hooks

	// Derived during Launch.
	Options config.Options
	Log     *slog.Logger
	Debug   *slog.Logger
}

// NewLaunchConfig creates a LaunchConfig over explicit values.
func NewLaunchConfig(values config.Values) *LaunchConfig {
	if values == nil {
		values = config.Values{}
	}
	return &LaunchConfig{Values: values, Shutdown: &Hooks{}}
}

// Use appends a plugin.
func (cfg *LaunchConfig) Use(name string, factory PluginFactory) {
	cfg.Plugins = append(cfg.Plugins, Plugin{Name: name, Factory: factory})
}
