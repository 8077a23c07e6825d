package journal

import (
	"path/filepath"

	"github.com/roach88/hive/internal/launcher"
	"github.com/roach88/hive/internal/provider"
)

// PluginName is the catalog name of the journal plugin.
const PluginName = "journal"

// ProviderSource is a coordinator that announces its providers.
type ProviderSource interface {
	OnProvider(fn func(*provider.Facade))
}

// NewPlugin returns the journal plugin. It opens the journal at the
// `journal` option (DefaultPath when unset, relative to the working
// directory) and closes it on shutdown. Coordinators that do not announce
// providers, such as remote ones, are skipped with a log line.
func NewPlugin() launcher.PluginFactory {
	return func(c launcher.Coordinator, cfg *launcher.LaunchConfig, sinks launcher.Sinks) {
		src, ok := c.(ProviderSource)
		if !ok {
			sinks.Log.Info("journal disabled: coordinator does not expose providers")
			return
		}

		path := cfg.Options.Journal
		if path == "" {
			path = DefaultPath
		}
		if !filepath.IsAbs(path) && cfg.WorkDir != "" {
			path = filepath.Join(cfg.WorkDir, path)
		}

		j, err := Open(path)
		if err != nil {
			sinks.Log.Error("journal disabled", "path", path, "error", err)
			return
		}
		if cfg.Shutdown != nil {
			cfg.Shutdown.Register("journal", func() {
				if err := j.Close(); err != nil {
					sinks.Log.Error("closing journal", "error", err)
				}
			})
		}

		sinks.Debug.Debug("journal open", "path", path)
		src.OnProvider(NewRecorder(j, sinks.Log).Watch)
	}
}
