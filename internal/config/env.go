package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvOptions are the HIVE_* environment variables. Unset variables stay nil
// so they do not mask lower layers.
type EnvOptions struct {
	Module            *string        `env:"HIVE_MODULE"`
	Quiet             *bool          `env:"HIVE_QUIET"`
	Verbose           *bool          `env:"HIVE_VERBOSE"`
	Remote            *string        `env:"HIVE_REMOTE"`
	Capture           *string        `env:"HIVE_CAPTURE"`
	HeartbeatInterval *time.Duration `env:"HIVE_HEARTBEAT_INTERVAL"`
	Host              *string        `env:"HIVE_HOST"`
	Plugin            []string       `env:"HIVE_PLUGIN" envSeparator:","`
	Script            *string        `env:"HIVE_SCRIPT"`
	Journal           *string        `env:"HIVE_JOURNAL"`
}

// ParseEnv loads EnvOptions from the process environment.
func ParseEnv() (EnvOptions, error) {
	var opts EnvOptions
	if err := env.Parse(&opts); err != nil {
		return EnvOptions{}, fmt.Errorf("parse env: %w", err)
	}
	return opts, nil
}

// Values returns the set environment variables as a Values layer.
func (e EnvOptions) Values() Values {
	v := Values{}
	putString(v, KeyModule, e.Module)
	putString(v, KeyRemote, e.Remote)
	putString(v, KeyCapture, e.Capture)
	putString(v, KeyHost, e.Host)
	putString(v, KeyScript, e.Script)
	putString(v, KeyJournal, e.Journal)
	if e.Quiet != nil {
		v[KeyQuiet] = *e.Quiet
	}
	if e.Verbose != nil {
		v[KeyVerbose] = *e.Verbose
	}
	if e.HeartbeatInterval != nil {
		v[KeyHeartbeatInterval] = e.HeartbeatInterval.String()
	}
	if len(e.Plugin) > 0 {
		v[KeyPlugin] = e.Plugin
	}
	return v
}

func putString(v Values, key string, s *string) {
	if s != nil {
		v[key] = *s
	}
}
