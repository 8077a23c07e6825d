package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Option keys recognized in Values.
const (
	KeyModule            = "module"
	KeyConfig            = "config" // alias of KeyModule
	KeyQuiet             = "quiet"
	KeyVerbose           = "verbose"
	KeyRemote            = "remote"
	KeyCapture           = "capture"
	KeyHeartbeatInterval = "heartbeatInterval"
	KeyHost              = "host"
	KeyPlugin            = "plugin"
	KeyScript            = "script"
	KeyJournal           = "journal"
)

// Options is the typed view of merged Values.
type Options struct {
	Module            string        `mapstructure:"module"`
	Quiet             bool          `mapstructure:"quiet"`
	Verbose           bool          `mapstructure:"verbose"`
	Remote            string        `mapstructure:"remote"`
	Capture           string        `mapstructure:"capture"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	Host              string        `mapstructure:"host"`
	Plugin            []string      `mapstructure:"plugin"`
	Script            string        `mapstructure:"script"`
	Journal           string        `mapstructure:"journal"`
}

// Decode converts merged Values into Options.
//
// Durations accept Go duration strings ("30s") or bare numbers, which are read
// as milliseconds. Unknown keys are ignored so config modules may carry
// plugin-specific settings.
func Decode(v Values) (Options, error) {
	var opts Options
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondsHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return Options{}, fmt.Errorf("build options decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(v)); err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func millisecondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch n := data.(type) {
	case int:
		return time.Duration(n) * time.Millisecond, nil
	case int64:
		return time.Duration(n) * time.Millisecond, nil
	case float64:
		return time.Duration(n * float64(time.Millisecond)), nil
	}
	return data, nil
}
