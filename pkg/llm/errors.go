package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyCompletion is returned when the provider produced no content
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// ProviderError wraps a provider failure. It is fatal for retry purposes
// unless the underlying error is classified retryable by its message or an
// explicit tag.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error
func NewProviderError(provider, message string, err error) error {
	return &ProviderError{Provider: provider, Message: message, Err: err}
}

// IsProviderError checks whether an error carries provider context
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
