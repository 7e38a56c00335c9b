// Package resilience provides retry with classified errors and a per-key
// circuit breaker for calls to flaky dependencies.
package resilience

import (
	"errors"
	"strings"
)

// retryablePatterns are message fragments that mark an untagged error as
// transient. Matching is case-insensitive.
var retryablePatterns = []string{
	"timeout",
	"rate limit",
	"429",
	"503",
	"econnreset",
	"eai_again",
	"network",
}

type taggedError struct {
	err       error
	retryable bool
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

// MarkRetryable tags an error as transient regardless of its message
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, retryable: true}
}

// MarkFatal tags an error as permanent so it is never retried, even when
// its message matches a transient pattern
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, retryable: false}
}

// Retryable classifies an error. Explicit tags win; otherwise the message
// is matched against the transient patterns.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var tagged *taggedError
	if errors.As(err, &tagged) {
		return tagged.retryable
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
