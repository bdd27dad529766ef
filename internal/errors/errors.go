// Package errors provides centralized error definitions and error handling utilities
// for sweeper. It defines domain-specific errors, semantic error types, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - SweepError: errors related to a sweep's files and claim protocol
//   - LockError: errors from the advisory lock guarding a sweep
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSweepError("cannot serve sweep", errors.ErrMissingTrials).WithSweepID("k3x9a0qz")
//	err := errors.NewLockError("acquire failed", cause).WithPath("/data/sweeps/k3x9a0qz/trials.lock")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrMissingTrials) { ... }
//
//	var lockErr *errors.LockError
//	if errors.As(err, &lockErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Sweep-related sentinel errors
var (
	// ErrSweepNotFound indicates that a sweep directory could not be found.
	ErrSweepNotFound = New("sweep not found")
	// ErrMissingTrials indicates that neither the primary nor the
	// human-readable trial list exists for a sweep.
	ErrMissingTrials = New("no trial list to sweep on")
	// ErrStoreUnreadable indicates the primary trial list never decoded
	// within the read attempt budget.
	ErrStoreUnreadable = New("trial list unreadable")
	// ErrInvalidAxes indicates that the varying parameter axes are invalid.
	ErrInvalidAxes = New("invalid parameter axes")
	// ErrNoLatestSweep indicates that no sweep has been created under a root yet.
	ErrNoLatestSweep = New("no latest sweep recorded")
)

// Lock-related sentinel errors
var (
	// ErrLockFailed indicates that the advisory lock could not be acquired.
	ErrLockFailed = New("lock acquisition failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SweeperError is the base interface for all sweeper errors.
type SweeperError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SweepError represents errors related to a sweep's files or its claim protocol.
//
// Example:
//
//	err := errors.NewSweepError("cannot serve sweep", errors.ErrMissingTrials)
//	err = err.WithSweepID("k3x9a0qz").WithRunID("run-1")
//	fmt.Println(err) // "sweep error [sweep=k3x9a0qz, run=run-1]: cannot serve sweep: no trial list to sweep on"
type SweepError struct {
	baseError
	SweepID string
	RunID   string
}

// NewSweepError creates a new SweepError.
func NewSweepError(message string, cause error) *SweepError {
	return &SweepError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			userFacing: true,
		},
	}
}

// WithSweepID adds a sweep ID to the error context.
func (e *SweepError) WithSweepID(id string) *SweepError {
	e.SweepID = id
	return e
}

// WithRunID adds the calling worker's run ID to the error context.
func (e *SweepError) WithRunID(id string) *SweepError {
	e.RunID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *SweepError) WithRetryable(r bool) *SweepError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SweepError) Error() string {
	var parts []string
	if e.SweepID != "" {
		parts = append(parts, fmt.Sprintf("sweep=%s", e.SweepID))
	}
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	return e.format("sweep error", parts)
}

// LockError represents a failure of the advisory lock primitive. Lock errors
// are never retried: a stale lock or a permission problem needs an operator.
type LockError struct {
	baseError
	Path string
}

// NewLockError creates a new LockError. The cause is joined with
// ErrLockFailed so callers can match either.
func NewLockError(message string, cause error) *LockError {
	if cause == nil {
		cause = ErrLockFailed
	} else if !Is(cause, ErrLockFailed) {
		cause = fmt.Errorf("%w: %w", ErrLockFailed, cause)
	}
	return &LockError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			userFacing: true,
		},
	}
}

// WithPath adds the lock file path to the error context.
func (e *LockError) WithPath(path string) *LockError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("lock error", parts)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates that a requested resource was not found.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds an underlying cause.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return e.cause
}

// ValidationError indicates that input validation failed.
type ValidationError struct {
	Message string
	Field   string
	Value   any
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField sets the field that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds an underlying cause.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error")
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Value != nil {
		sb.WriteString(fmt.Sprintf(" (got: %v)", e.Value))
	}
	return sb.String()
}

// Unwrap returns the underlying error, defaulting to ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Error Classification
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry. Lock failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrLockFailed) {
		return false
	}

	var sweeperErr SweeperError
	if As(err, &sweeperErr) {
		return sweeperErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrStoreUnreadable)
}

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var sweeperErr SweeperError
	if As(err, &sweeperErr) {
		return sweeperErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	return As(err, &notFound) || As(err, &validation)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to open sweep %s", sweepID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
