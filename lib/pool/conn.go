package pool

import "context"

// Conn is a single network connection managed by the pool. The pool only
// inspects its state; protocol I/O is the lease holder's business.
//
// Implementations must be comparable (pointer types are) because the pool
// tracks leased connections in a set.
type Conn interface {
	// Close starts closing the connection. It must not block on network
	// teardown; WaitClosed waits for that.
	Close() error
	// Closed reports whether Close has been called or the connection broke.
	Closed() bool
	// WaitClosed blocks until teardown has finished or ctx is done.
	WaitClosed(ctx context.Context) error
	// DB returns the logical database index currently selected.
	DB() int
	// InTransaction reports whether a MULTI block is open.
	InTransaction() bool
	// Select switches the connection to another logical database.
	Select(ctx context.Context, db int) error
}

// DialOptions are the parameters handed to a Factory.
type DialOptions struct {
	Address  string
	DB       int
	Password string
	Encoding string
}

// Factory creates a new ready connection. It is called without the pool
// guard held and may fail.
type Factory func(ctx context.Context, opts DialOptions) (Conn, error)
