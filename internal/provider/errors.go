package provider

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing construction argument.
type ValidationError struct {
	// Field names the missing argument ("id", "channel", "attributes").
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid provider: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
