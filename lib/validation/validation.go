// Package validation provides reusable input validation functions for pool
// configuration. All validators follow a consistent pattern: they return nil
// on success and a descriptive error on failure.
package validation

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrTooLong indicates a string exceeds the maximum length.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidDuration indicates an invalid duration string.
	ErrInvalidDuration = errors.New("invalid duration")
)

const (
	// MaxPasswordLength bounds the AUTH password accepted in configuration.
	MaxPasswordLength = 512

	// UnixScheme prefixes addresses that name a unix domain socket.
	UnixScheme = "unix://"
)

// encodings lists the codec names a pool may be configured with.
var encodings = map[string]struct{}{
	"utf-8":      {},
	"utf8":       {},
	"ascii":      {},
	"latin-1":    {},
	"iso-8859-1": {},
}

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string doesn't exceed the maximum length.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewResult(field, fmt.Sprintf("exceeds maximum length of %d characters", max), ErrTooLong)
	}
	return nil
}

// IntRange validates that an integer is within the given range (inclusive).
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that an integer is non-negative (>= 0).
func NonNegative(field string, value int) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// Duration validates a duration string and returns the parsed duration.
// Empty means "use the default" and yields zero.
func Duration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, NewResult(field, "invalid duration format", ErrInvalidDuration)
	}

	if d < 0 {
		return 0, NewResult(field, "duration cannot be negative", ErrOutOfRange)
	}

	return d, nil
}

// Address validates a server address: either host:port or a unix socket
// given as unix:///path or an absolute path.
func Address(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}

	if path, ok := UnixPath(value); ok {
		if !filepath.IsAbs(path) {
			return NewResult(field, "unix socket path must be absolute", ErrInvalidFormat)
		}
		return nil
	}

	// An empty host means localhost.
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return NewResult(field, "must be host:port or a unix socket path", ErrInvalidFormat)
	}
	if port == "" {
		return NewResult(field, "port is required", ErrInvalidFormat)
	}
	return nil
}

// UnixPath reports whether the address names a unix socket and returns its path.
func UnixPath(address string) (string, bool) {
	if strings.HasPrefix(address, UnixScheme) {
		return strings.TrimPrefix(address, UnixScheme), true
	}
	if strings.HasPrefix(address, "/") {
		return address, true
	}
	return "", false
}

// DBIndex validates a logical database index.
func DBIndex(field string, value int) error {
	return NonNegative(field, value)
}

// Password validates an optional AUTH password.
func Password(field, value string) error {
	if value == "" {
		return nil
	}
	return MaxLength(field, value, MaxPasswordLength)
}

// Encoding validates an optional codec name.
func Encoding(field, value string) error {
	if value == "" {
		return nil
	}
	if _, ok := encodings[strings.ToLower(value)]; !ok {
		return NewResult(field, fmt.Sprintf("unsupported encoding %q", value), ErrInvalidFormat)
	}
	return nil
}

// PoolBounds validates the min/max sizing pair. MaxSize of zero is allowed
// with any MinSize; otherwise MinSize may not exceed MaxSize.
func PoolBounds(minField string, minSize int, maxField string, maxSize int) error {
	if err := NonNegative(minField, minSize); err != nil {
		return err
	}
	if err := NonNegative(maxField, maxSize); err != nil {
		return err
	}
	if maxSize > 0 && minSize > maxSize {
		return NewResult(minField, fmt.Sprintf("must not exceed %s (%d)", maxField, maxSize), ErrOutOfRange)
	}
	return nil
}

// All runs multiple validation functions and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	return e
}

// First returns the first error, or nil if none.
func (e Errors) First() error {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}
