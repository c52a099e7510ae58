package pool

import (
	"fmt"

	apperrors "github.com/bdrosen96/aioredis/lib/errors"
)

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = fmt.Errorf("pool: %w", apperrors.ErrClosed)
	// ErrNotLeased is returned when releasing a connection that is not
	// currently leased from this pool.
	ErrNotLeased = fmt.Errorf("pool: connection not leased from this pool: %w", apperrors.ErrMisuse)
	// ErrLeaseReleased is returned when a scoped lease is released twice.
	ErrLeaseReleased = fmt.Errorf("pool: lease already released: %w", apperrors.ErrMisuse)
	// ErrInvalidConfig is returned by New for a bad Config.
	ErrInvalidConfig = fmt.Errorf("pool: %w", apperrors.ErrConfiguration)
	// ErrTimeout is returned when Acquire gives up after AcquireTimeout.
	ErrTimeout = fmt.Errorf("pool: acquire: %w", apperrors.ErrTimeout)
)

// MisuseError reports a caller bug such as releasing a connection that was
// never acquired from this pool. The pool state is left untouched.
type MisuseError struct {
	Op   string
	Conn Conn
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("pool: %s %v: connection not leased from this pool", e.Op, e.Conn)
}

func (e *MisuseError) Unwrap() error {
	return ErrNotLeased
}

// CreationError reports a failed factory call. The pending slot reserved
// for the connection has already been given back when it is returned.
type CreationError struct {
	Address string
	DB      int
	Err     error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("pool: create connection to %s (db %d): %v", e.Address, e.DB, e.Err)
}

func (e *CreationError) Unwrap() []error {
	return []error{apperrors.ErrCreation, e.Err}
}
