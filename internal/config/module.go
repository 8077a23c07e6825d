package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hive/internal/sandbox"
)

// ConventionalNames are probed, in order, in the working directory when no
// module path is given explicitly.
var ConventionalNames = []string{"hive.cue", "hive.yaml", "hive.yml", "hive.lua"}

// Module is the resolved export of a config module. Exactly one of Values
// and ScriptPath is set: a record export fills Values, a callable export
// (only Lua modules can return one) sets ScriptPath to the module file.
type Module struct {
	Path       string
	Values     Values
	ScriptPath string
}

// Callable reports whether the module exported a script instead of a record.
func (m *Module) Callable() bool {
	return m.ScriptPath != ""
}

// ErrUnsupportedModule is returned for files whose extension has no loader.
var ErrUnsupportedModule = errors.New("unsupported config module type")

// LoadModule loads the config module at path. The format is chosen by file
// extension.
func LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config module: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return loadCUE(path, data)
	case ".yaml", ".yml":
		return loadYAML(path, data)
	case ".lua":
		return loadLua(path, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModule, ext)
	}
}

// ProbeModule looks for a conventional config module in dir. It returns
// (nil, nil) when none exists. Errors loading a file that does exist are
// returned so the caller can decide whether to ignore them.
func ProbeModule(dir string) (*Module, error) {
	for _, name := range ConventionalNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadModule(path)
	}
	return nil, nil
}

func loadCUE(path string, data []byte) (*Module, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile CUE module: %w", err)
	}

	var v Values
	if err := value.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode CUE module: %w", err)
	}
	return &Module{Path: path, Values: v}, nil
}

func loadYAML(path string, data []byte) (*Module, error) {
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse YAML module: %w", err)
	}
	if v == nil {
		v = Values{}
	}
	return &Module{Path: path, Values: v}, nil
}

func loadLua(path string, data []byte) (*Module, error) {
	export, err := sandbox.Export(path, string(data))
	if err != nil {
		return nil, fmt.Errorf("evaluate Lua module: %w", err)
	}
	if export.Callable {
		return &Module{Path: path, ScriptPath: path}, nil
	}
	if export.Record == nil {
		return nil, fmt.Errorf("lua module %s must return a table or a function", path)
	}
	return &Module{Path: path, Values: Values(export.Record)}, nil
}
