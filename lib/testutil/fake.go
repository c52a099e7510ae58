// Package testutil provides in-memory fakes of the pool's external
// collaborators: a connection whose state tests can steer and a factory
// that counts, fails or holds connection creation on demand.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bdrosen96/aioredis/lib/pool"
)

// FakeConn is a pool.Conn with scriptable state.
type FakeConn struct {
	id int

	mu         sync.Mutex
	db         int
	inTx       bool
	closed     bool
	closeCalls int
	selects    []int
	selectErr  error
	closeDelay time.Duration
	done       chan struct{}
}

// NewFakeConn returns an open connection on db.
func NewFakeConn(id, db int) *FakeConn {
	return &FakeConn{id: id, db: db, done: make(chan struct{})}
}

// ID returns the creation sequence number, starting at 1.
func (c *FakeConn) ID() int {
	return c.id
}

func (c *FakeConn) String() string {
	return fmt.Sprintf("fake-conn-%d", c.id)
}

// Close marks the connection closed. Teardown completes after the
// configured close delay.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	delay := c.closeDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		close(c.done)
	}()
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WaitClosed blocks until teardown finished or ctx is done.
func (c *FakeConn) WaitClosed(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseCalls returns how many times Close was called.
func (c *FakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// DB returns the selected database.
func (c *FakeConn) DB() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// SetDB changes the database without going through Select, the way a
// lease holder issuing its own SELECT would.
func (c *FakeConn) SetDB(db int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
}

// InTransaction reports the scripted transaction state.
func (c *FakeConn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// SetInTransaction opens or ends a fake MULTI block.
func (c *FakeConn) SetInTransaction(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTx = v
}

// Select switches database unless a select error is scripted.
func (c *FakeConn) Select(ctx context.Context, db int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectErr != nil {
		return c.selectErr
	}
	c.db = db
	c.selects = append(c.selects, db)
	return nil
}

// FailSelect makes every following Select return err.
func (c *FakeConn) FailSelect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectErr = err
}

// Selects returns the databases passed to successful Select calls.
func (c *FakeConn) Selects() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.selects...)
}

// SetCloseDelay makes teardown take d after Close.
func (c *FakeConn) SetCloseDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeDelay = d
}

// FakeFactory creates FakeConns.
type FakeFactory struct {
	mu         sync.Mutex
	conns      []*FakeConn
	failures   int
	failErr    error
	gate       chan struct{}
	dialing    int
	closeDelay time.Duration
	options    []pool.DialOptions
}

// NewFakeFactory returns a factory that always succeeds.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// Dial is a pool.Factory.
func (f *FakeFactory) Dial(ctx context.Context, opts pool.DialOptions) (pool.Conn, error) {
	f.mu.Lock()
	f.dialing++
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.dialing--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = append(f.options, opts)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return nil, f.failErr
	}
	conn := NewFakeConn(len(f.conns)+1, opts.DB)
	conn.closeDelay = f.closeDelay
	f.conns = append(f.conns, conn)
	return conn, nil
}

// FailNext makes the next n dials return err. A negative n fails every
// dial until FailNext(0, nil) is called.
func (f *FakeFactory) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.failErr = err
}

// Hold makes dials block until the returned function is called.
func (f *FakeFactory) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Dialing returns the number of dials in flight.
func (f *FakeFactory) Dialing() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialing
}

// SetCloseDelay applies d to connections created from now on.
func (f *FakeFactory) SetCloseDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeDelay = d
}

// Created returns the number of connections created.
func (f *FakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Conns returns the created connections in creation order.
func (f *FakeFactory) Conns() []*FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeConn(nil), f.conns...)
}

// Options returns the DialOptions of every dial attempt.
func (f *FakeFactory) Options() []pool.DialOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pool.DialOptions(nil), f.options...)
}
