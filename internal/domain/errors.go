// Package domain contains the core domain models and types.
package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Every *Error matches exactly one of them via errors.Is.
var (
	// ErrValidation indicates a malformed value object or entity.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates a session method was called out of order.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrNotFound indicates a referenced aggregate or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness rule was violated.
	ErrConflict = errors.New("conflict")

	// ErrConcurrentModification indicates a stale version was written.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Collaborator sentinels.
var (
	// ErrAITimeout indicates the AI service did not respond in time.
	ErrAITimeout = errors.New("AI service timeout")

	// ErrAIUnavailable indicates the AI service is not available.
	ErrAIUnavailable = errors.New("AI service unavailable")

	// ErrInvalidAIResponse indicates the AI response failed validation.
	ErrInvalidAIResponse = errors.New("invalid AI response format")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCollectorFailed indicates a log source backend returned an error.
	ErrCollectorFailed = errors.New("log collection failed")

	// ErrUnsupportedSource indicates no collector handles the source type.
	ErrUnsupportedSource = errors.New("unsupported log source type")
)

// Error is a domain rule violation. Its message is part of the public
// contract and is returned verbatim by Error.
type Error struct {
	// Kind is one of the category sentinels above.
	Kind error

	// Message is the human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func stateError(message string) error {
	return &Error{Kind: ErrInvalidState, Message: message}
}

// InvalidStateError builds an ErrInvalidState error with the given message.
func InvalidStateError(format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError builds an ErrNotFound error for the given entity name and id,
// e.g. `Log source with ID "abc" not found`.
func NotFoundError(entity, id string) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s with ID \"%s\" not found", entity, id)}
}

// ConflictError builds an ErrConflict error with the given message.
func ConflictError(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// StaleVersionError reports that an aggregate was modified by another writer.
func StaleVersionError(entity, id string, expected, actual int) error {
	return &Error{
		Kind:    ErrConcurrentModification,
		Message: fmt.Sprintf("%s %q was modified concurrently (expected version %d, found %d)", entity, id, expected, actual),
	}
}

// OpError wraps a collaborator error with the failing operation.
type OpError struct {
	// Op is the operation that failed.
	Op string

	// Err is the underlying error.
	Err error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapError creates a new OpError with context.
func WrapError(op string, err error, retryable bool) *OpError {
	return &OpError{
		Op:        op,
		Err:       err,
		Retryable: retryable,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}
