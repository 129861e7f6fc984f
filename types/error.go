package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so retry and reporting logic stays
// agent-agnostic. Kinds are stable strings, not Go types, and are persisted
// verbatim on step records.
type ErrorKind string

const (
	// ErrKindTimeout indicates an agent call exceeded its deadline.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindNetwork indicates a transport-level failure reaching an agent.
	ErrKindNetwork ErrorKind = "network"
	// ErrKindValidation indicates bad input to an agent. Never retried.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindAgentUnavailable indicates the capability is not registered. Never retried.
	ErrKindAgentUnavailable ErrorKind = "agent-unavailable"
	// ErrKindAgentFailure indicates the agent ran but returned an error.
	ErrKindAgentFailure ErrorKind = "agent-failure"
	// ErrKindCancelled indicates an operator-initiated cancellation.
	ErrKindCancelled ErrorKind = "cancelled"
	// ErrKindDefinition indicates an unknown workflow type or an invalid
	// dependency graph. Fatal before any step starts.
	ErrKindDefinition ErrorKind = "definition-error"
	// ErrKindPersistence indicates the state store rejected a write after
	// bounded retries. Terminal for the affected run.
	ErrKindPersistence ErrorKind = "persistence-error"
)

// retryableByDefault holds the kinds that are transient in nature.
// A retry policy may narrow this set but validation, unavailable-capability,
// cancellation, definition and persistence errors are never retryable.
var retryableByDefault = map[ErrorKind]bool{
	ErrKindTimeout:      true,
	ErrKindNetwork:      true,
	ErrKindAgentFailure: true,
}

// Retryable reports whether the kind is transient by default.
func (k ErrorKind) Retryable() bool {
	return retryableByDefault[k]
}

// Error is the structured error carried across the orchestration boundary.
// It pairs a stable ErrorKind with a human-readable message and an optional
// wrapped cause.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the kind's default retryability.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable overrides the retryable flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// KindOf extracts the ErrorKind from err. Unclassified errors map to
// agent-failure so upstream policy always has a kind to work with;
// context cancellation and deadline errors map to cancelled and timeout.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindAgentFailure
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return KindOf(err).Retryable()
}

// AsError extracts a *Error from err, or wraps err as an agent-failure if it
// carries no classification.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(KindOf(err), err.Error()).WithCause(err)
}
