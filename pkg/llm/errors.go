package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass classifies backend errors for retry and fallback decisions.
type ErrorClass string

const (
	// ErrClassTransient covers timeouts, 5xx, and provider rate limiting.
	// Retried with exponential backoff.
	ErrClassTransient ErrorClass = "transient"
	// ErrClassSchema is a malformed structured output. Retried once, then
	// degraded fallback.
	ErrClassSchema ErrorClass = "schema"
	// ErrClassInput is a caller mistake (bad request, bad schema). Not retried.
	ErrClassInput ErrorClass = "input"
	// ErrClassFatal is everything else. Not retried.
	ErrClassFatal ErrorClass = "fatal"
)

// BackendError wraps a backend failure with its routing classification.
type BackendError struct {
	Backend string
	Class   ErrorClass
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Class, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError creates a classified backend error.
func NewBackendError(backend string, class ErrorClass, err error) *BackendError {
	return &BackendError{Backend: backend, Class: class, Err: err}
}

// ClassOf returns the classification of err, defaulting to fatal for
// unclassified errors. Context cancellation counts as transient so a
// cancelled in-flight call is recorded as a failure, not a crash.
func ClassOf(err error) ErrorClass {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}
	var ve *SchemaValidationError
	if errors.As(err, &ve) {
		return ErrClassSchema
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTransient
	}
	return ErrClassFatal
}

// IsRetryable reports whether err should be retried by the pipeline.
// Schema errors are retryable; the retry budget is the caller's to manage.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ErrClassTransient, ErrClassSchema:
		return true
	default:
		return false
	}
}

// SchemaValidationError reports structured output that failed schema validation.
type SchemaValidationError struct {
	Schema string
	Issues []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("output does not match schema %q: %v", e.Schema, e.Issues)
}
