package pool

import (
	"context"
	"sync"
)

// Lease holds one acquired connection and returns it to the pool exactly
// once. Pair it with defer:
//
//	lease, err := p.Lease(ctx)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
type Lease struct {
	mu   sync.Mutex
	pool *Pool
	conn Conn
}

// Lease acquires a connection wrapped in a Lease.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{pool: p, conn: conn}, nil
}

// Conn returns the leased connection, or nil once the lease is released.
func (l *Lease) Conn() Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Release returns the connection to the pool and invalidates the lease.
// Calling it again returns ErrLeaseReleased.
func (l *Lease) Release() error {
	l.mu.Lock()
	p, conn := l.pool, l.conn
	l.pool, l.conn = nil, nil
	l.mu.Unlock()

	if p == nil {
		return ErrLeaseReleased
	}
	return p.Release(conn)
}

// Do runs fn with a leased connection and releases it however fn exits,
// panics included. A release error is returned only when fn succeeded.
func (p *Pool) Do(ctx context.Context, fn func(Conn) error) (err error) {
	lease, err := p.Lease(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(lease.Conn())
}
