package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns a fresh copy of the built-in defaults record.
func Defaults() (Values, error) {
	var v Values
	if err := yaml.Unmarshal(defaultsYAML, &v); err != nil {
		return nil, fmt.Errorf("parse built-in defaults: %w", err)
	}
	return v, nil
}
