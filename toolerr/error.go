// Package toolerr provides a structured error type for failures at the
// kernel/transport boundary. It preserves cause chains so errors.Is/As keep
// working across retries and classification, while still serializing
// cleanly into the public ErrorDetail envelope.
package toolerr

import (
	"errors"
	"fmt"
)

// Error represents a structured transport or execution failure. Errors may
// be nested via Cause to retain diagnostics across retries.
type Error struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling chains via Unwrap.
	Cause *Error
}

// New constructs an Error with the given message.
func New(message string) *Error {
	if message == "" {
		message = "tool error"
	}
	return &Error{Message: message}
}

// Errorf formats according to a format specifier and returns an *Error.
func Errorf(format string, args ...any) *Error {
	return New(fmt.Sprintf(format, args...))
}

// NewWithCause constructs an Error that wraps an underlying error.
func NewWithCause(message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into an *Error chain.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}
