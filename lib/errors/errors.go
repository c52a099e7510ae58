// Package errors provides structured error types for the Redis connection pool.
//
// This package provides:
//   - Sentinel errors for the conditions the pool can report
//   - Error codes so callers can categorise failures without string matching
//   - Error wrapping with context preservation
package errors

import (
	"errors"
	"fmt"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Error codes for categorizing pool failures.
const (
	CodeInternal      = 1 // Unexpected internal error
	CodeMisuse        = 2 // Caller broke the pool contract
	CodeCreation      = 3 // Connection factory failed
	CodeClosed        = 4 // Pool or lease already closed
	CodeConfiguration = 5 // Invalid configuration
	CodeTimeout       = 6 // Operation timed out
	CodeConnection    = 7 // Connection level failure
	CodeState         = 8 // Invalid state transition
	CodeInvalidInput  = 9 // Invalid argument
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrMisuse indicates the caller violated the pool's usage contract,
	// for example by releasing a connection it never acquired.
	ErrMisuse = errors.New("misuse")

	// ErrCreation indicates a new connection could not be created.
	ErrCreation = errors.New("connection creation failed")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrConnection indicates a connection error.
	ErrConnection = errors.New("connection error")

	// ErrInvalidState indicates an invalid state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")
)

// Error is a structured error with a code and message.
type Error struct {
	// Code is the error code for categorization
	Code int
	// Message is a short description of what failed
	Message string
	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given code and message.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error.
// It assigns an error code based on the sentinel found in err's tree.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    CodeOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// CodeOf maps an error to its code. A structured *Error anywhere in the
// chain wins over sentinel matching.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrMisuse):
		return CodeMisuse
	case errors.Is(err, ErrCreation):
		return CodeCreation
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrConnection):
		return CodeConnection
	case errors.Is(err, ErrInvalidState):
		return CodeState
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// IsMisuse returns true if the error indicates a broken usage contract.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrMisuse)
}

// IsCreation returns true if the error came from a failed connection creation.
func IsCreation(err error) bool {
	return errors.Is(err, ErrCreation)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
