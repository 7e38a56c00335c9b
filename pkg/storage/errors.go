package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an execution, plan, or config entry is absent
	ErrNotFound = errors.New("entity not found")

	// ErrTerminalState is returned when updating an execution that already
	// reached completed or failed
	ErrTerminalState = errors.New("execution is in a terminal state")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
