package launcher

import (
	"errors"
	"fmt"
)

// ErrConfigurationMissing is returned by Launch when no configuration is
// given. Nothing else has happened at that point.
var ErrConfigurationMissing = errors.New("launch configuration must be defined")

// LaunchError reports a failed launch phase.
//
// Config module errors are returned synchronously from Launch. Every other
// code arrives through the completion callback.
type LaunchError struct {
	// Code identifies the failing phase.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Target is the module path, script URL or address involved.
	Target string

	// StatusCode is the HTTP status of a failed remote fetch, 0 otherwise.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes launch errors.
type ErrorCode string

const (
	// ErrCodeConfigModule indicates an explicit config module failed to load.
	ErrCodeConfigModule ErrorCode = "CONFIG_MODULE"

	// ErrCodeUnknownPlugin indicates a plugin name with no registered factory.
	ErrCodeUnknownPlugin ErrorCode = "UNKNOWN_PLUGIN"

	// ErrCodeFetch indicates the remote script could not be retrieved.
	ErrCodeFetch ErrorCode = "FETCH"

	// ErrCodeExecution indicates the script failed while running.
	ErrCodeExecution ErrorCode = "EXECUTION"

	// ErrCodeServerStart indicates the fallback control server did not bind.
	ErrCodeServerStart ErrorCode = "SERVER_START"
)

// Error implements the error interface.
func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Target != "" {
		msg += fmt.Sprintf(" (%s)", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var le *LaunchError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// IsConfigModuleError reports whether err is a config module load failure.
func IsConfigModuleError(err error) bool { return hasCode(err, ErrCodeConfigModule) }

// IsFetchError reports whether err is a remote script fetch failure.
func IsFetchError(err error) bool { return hasCode(err, ErrCodeFetch) }

// IsExecutionError reports whether err is a script execution failure.
func IsExecutionError(err error) bool { return hasCode(err, ErrCodeExecution) }

// IsServerStartError reports whether err is a control server start failure.
func IsServerStartError(err error) bool { return hasCode(err, ErrCodeServerStart) }

// NewConfigModuleError creates a LaunchError for a config module that failed
// to load.
func NewConfigModuleError(path string, err error) *LaunchError {
	return &LaunchError{
		Code:    ErrCodeConfigModule,
		Message: "unable to load config module",
		Target:  path,
		Err:     err,
	}
}

// NewFetchError creates a LaunchError for a failed remote fetch. status is 0
// when the request never produced a response.
func NewFetchError(url string, status int, err error) *LaunchError {
	msg := "unable to fetch remote script"
	if status != 0 {
		msg = fmt.Sprintf("remote script returned status %d", status)
	}
	return &LaunchError{
		Code:       ErrCodeFetch,
		Message:    msg,
		Target:     url,
		StatusCode: status,
		Err:        err,
	}
}

// NewExecutionError creates a LaunchError for a script that failed.
func NewExecutionError(script string, err error) *LaunchError {
	return &LaunchError{
		Code:    ErrCodeExecution,
		Message: "script failed",
		Target:  script,
		Err:     err,
	}
}

// NewServerStartError creates a LaunchError for a control server that could
// not start.
func NewServerStartError(host string, err error) *LaunchError {
	return &LaunchError{
		Code:    ErrCodeServerStart,
		Message: "unable to start control server",
		Target:  host,
		Err:     err,
	}
}
