package pool

import (
	"fmt"
	"time"

	"github.com/bdrosen96/aioredis/lib/validation"
)

// Default sizing, matching the defaults of most Redis pool clients.
const (
	DefaultMinSize = 10
	DefaultMaxSize = 10
)

// Config configures a Pool.
type Config struct {
	// Address is the server endpoint, host:port or a unix socket path.
	// Required.
	Address string
	// DB is the logical database new connections select.
	// Default: 0
	DB int
	// Password is sent with AUTH when non-empty.
	Password string
	// Encoding is the codec name passed through to the factory.
	Encoding string
	// MinSize is the number of connections the pool keeps provisioned.
	// Default: 10
	MinSize int
	// MaxSize bounds the idle list and caps growth beyond MinSize.
	// Zero disables growth beyond MinSize.
	// Default: 10
	MaxSize int
	// AcquireTimeout bounds Acquire when the caller's context carries no
	// deadline. Zero waits until the context is done.
	AcquireTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults. Address still
// needs to be set.
func DefaultConfig() Config {
	return Config{
		MinSize: DefaultMinSize,
		MaxSize: DefaultMaxSize,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs validation.Errors
	errs.Add(validation.Address("address", c.Address))
	errs.Add(validation.DBIndex("db", c.DB))
	errs.Add(validation.Password("password", c.Password))
	errs.Add(validation.Encoding("encoding", c.Encoding))
	errs.Add(validation.PoolBounds("minsize", c.MinSize, "maxsize", c.MaxSize))
	if c.AcquireTimeout < 0 {
		errs.Add(validation.NewResult("acquire_timeout", "must be non-negative", validation.ErrOutOfRange))
	}
	if errs.HasErrors() {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// freeCapacity is the size of the idle list. It is never below MinSize so
// that a fill to minimum always has somewhere to put its connections.
func (c Config) freeCapacity() int {
	return max(c.MinSize, c.MaxSize, 1)
}

func (c Config) dialOptions(db int) DialOptions {
	return DialOptions{
		Address:  c.Address,
		DB:       db,
		Password: c.Password,
		Encoding: c.Encoding,
	}
}
