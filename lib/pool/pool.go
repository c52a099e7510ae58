package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// closeWaitTimeout bounds the background wait for a connection closed by
// Release.
const closeWaitTimeout = 30 * time.Second

// Pool is a connection pool. It is safe for concurrent use.
type Pool struct {
	factory Factory
	config  Config

	mu      guard
	cond    *sync.Cond
	free    *freeList
	leased  map[Conn]struct{}
	pending int
	db      int
	closed  bool

	published gaugeState

	// Counters
	created      uint64
	createFailed uint64
	closedConns  uint64
	acquireCount uint64
	acquireWaits uint64
	releaseCount uint64
	anomalies    uint64
}

// New creates a pool and fills it to MinSize before returning. If any of
// those connections cannot be created the ones already made are closed and
// the error is returned.
func New(ctx context.Context, factory Factory, cfg Config) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		factory: factory,
		config:  cfg,
		free:    newFreeList(cfg.freeCapacity()),
		leased:  make(map[Conn]struct{}),
		db:      cfg.DB,
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	err := p.fillLocked(ctx, false)
	p.publishLocked()
	p.mu.Unlock()
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeWaitTimeout)
		defer cancel()
		p.Close(closeCtx)
		return nil, err
	}

	log.WithField("address", cfg.Address).
		WithField("minSize", cfg.MinSize).
		WithField("maxSize", cfg.MaxSize).
		Debug("pool created")
	return p, nil
}

// Acquire leases a connection, creating one if the pool is below its
// limits. It blocks until a connection is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	atomic.AddUint64(&p.acquireCount, 1)
	PoolAcquireTotal.Inc()
	start := time.Now()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	waited := false
	for {
		if p.closed {
			return nil, ErrPoolClosed
		}
		if err := ctx.Err(); err != nil {
			if waited {
				// A release may have signalled us after the context
				// fired; hand the wake-up on.
				p.cond.Signal()
			}
			return nil, acquireError(err)
		}

		if err := p.fillLocked(ctx, true); err != nil {
			p.publishLocked()
			return nil, err
		}

		if conn, ok := p.free.pop(); ok {
			if conn.Closed() {
				log.Warn("dropping closed connection from free list")
				p.countClosed()
				continue
			}
			if _, dup := p.leased[conn]; dup {
				panic(fmt.Sprintf("pool: connection %v is both free and leased", conn))
			}
			p.leased[conn] = struct{}{}
			p.publishLocked()
			PoolAcquireLatency.Observe(time.Since(start).Seconds())
			return conn, nil
		}

		if !waited {
			waited = true
			atomic.AddUint64(&p.acquireWaits, 1)
			PoolAcquireWaitTotal.Inc()
		}
		log.Debug("waiting for available connection")
		p.waitWithContext(ctx)
	}
}

func acquireError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// waitWithContext waits for a signal on the condition or for ctx to be
// done. Caller must hold the guard.
func (p *Pool) waitWithContext(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.cond.Wait()
	stop()
}

// fillLocked creates connections until the pool holds MinSize of them.
// With topUp set and no free connection left, it creates one more as long
// as the pool is below MaxSize. Caller must hold the guard.
func (p *Pool) fillLocked(ctx context.Context, topUp bool) error {
	for p.sizeLocked() < p.config.MinSize {
		if err := p.createLocked(ctx); err != nil {
			return err
		}
	}
	if !topUp || p.free.len() > 0 {
		return nil
	}
	if p.sizeLocked() < p.config.MaxSize {
		return p.createLocked(ctx)
	}
	return nil
}

// createLocked reserves a pending slot, calls the factory with the guard
// released and appends the new connection to the free list. Caller must
// hold the guard; it is held again on return.
func (p *Pool) createLocked(ctx context.Context) error {
	opts := p.config.dialOptions(p.db)
	p.pending++
	p.publishLocked()
	p.mu.Unlock()

	conn, err := p.factory(ctx, opts)

	p.mu.Lock()
	p.pending--
	if err != nil {
		atomic.AddUint64(&p.createFailed, 1)
		PoolCreateFailedTotal.Inc()
		// The slot is free again; a waiter may be able to use it.
		p.cond.Signal()
		log.WithError(err).WithField("address", opts.Address).Debug("failed to create new connection")
		return &CreationError{Address: opts.Address, DB: opts.DB, Err: err}
	}
	atomic.AddUint64(&p.created, 1)
	PoolCreatedTotal.Inc()

	if p.closed {
		p.closeConn(conn, "pool closed")
		return ErrPoolClosed
	}
	if conn.DB() != p.db {
		// Select ran while this connection was being created.
		if err := conn.Select(ctx, p.db); err != nil {
			p.closeConn(conn, "select after create failed")
			return &CreationError{Address: opts.Address, DB: p.db, Err: err}
		}
	}

	if evicted := p.free.push(conn); evicted != nil {
		p.closeConn(evicted, "free list overflow")
	}
	p.cond.Signal()
	log.Debug("created new connection")
	return nil
}

// Release returns a leased connection. Connections that are closed, inside
// a transaction, on another database, or that do not fit in the free list
// are closed instead of recycled. Release only fails for a connection that
// is not leased from this pool, and then changes nothing.
func (p *Pool) Release(conn Conn) error {
	if conn == nil {
		return &MisuseError{Op: "release", Conn: conn}
	}

	p.mu.Lock()
	if _, ok := p.leased[conn]; !ok {
		p.mu.Unlock()
		return &MisuseError{Op: "release", Conn: conn}
	}
	delete(p.leased, conn)
	atomic.AddUint64(&p.releaseCount, 1)
	PoolReleaseTotal.Inc()

	var reason string
	switch {
	case conn.Closed():
	case conn.InTransaction():
		reason = "in transaction"
		p.countAnomaly()
		log.WithField("conn", conn).Warn("connection released inside a transaction, closing it")
	case p.closed:
		reason = "pool closed"
	case conn.DB() != p.db:
		reason = "database changed"
		p.countAnomaly()
		log.WithField("conn", conn).
			WithField("connDB", conn.DB()).
			WithField("poolDB", p.db).
			Debug("connection released on another database, closing it")
	case p.config.MaxSize > 0 && p.free.len() < p.config.MaxSize:
		p.free.push(conn)
	default:
		reason = "free list full"
	}
	p.publishLocked()
	p.cond.Signal()
	p.mu.Unlock()

	if reason != "" {
		p.closeConn(conn, reason)
	}
	return nil
}

// closeConn closes conn and waits for its teardown in the background.
func (p *Pool) closeConn(conn Conn, reason string) {
	p.countClosed()
	if err := conn.Close(); err != nil {
		log.WithError(err).WithField("reason", reason).Warn("error closing connection")
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeWaitTimeout)
		defer cancel()
		if err := conn.WaitClosed(ctx); err != nil {
			log.WithError(err).WithField("reason", reason).Warn("connection did not finish closing")
		}
	}()
}

func (p *Pool) countClosed() {
	atomic.AddUint64(&p.closedConns, 1)
	PoolClosedTotal.Inc()
}

func (p *Pool) countAnomaly() {
	atomic.AddUint64(&p.anomalies, 1)
	PoolRecycleAnomaliesTotal.Inc()
}

// Select switches every free connection to db and makes db the pool's
// database. Leased connections are left alone; they are closed on release
// because their database no longer matches. A free connection that fails
// to switch is closed and dropped, the rest are still switched, and the
// failures are returned together.
func (p *Pool) Select(ctx context.Context, db int) error {
	if db < 0 {
		return fmt.Errorf("%w: db must be non-negative, got %d", ErrInvalidConfig, db)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	var errs []error
	for _, conn := range p.free.snapshot() {
		if err := conn.Select(ctx, db); err != nil {
			p.free.remove(conn)
			p.closeConn(conn, "select failed")
			errs = append(errs, fmt.Errorf("pool: select db %d on %v: %w", db, conn, err))
		}
	}
	p.db = db
	p.publishLocked()
	p.cond.Broadcast()

	log.WithField("db", db).WithField("free", p.free.len()).Debug("pool database selected")
	return errors.Join(errs...)
}

// Clear closes every free connection and waits for all of them to finish
// closing. Leased connections are not touched.
func (p *Pool) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.drainLocked(ctx)
	p.publishLocked()
	p.cond.Broadcast()
	return err
}

// drainLocked closes all free connections and waits for their teardown
// concurrently. Caller must hold the guard.
func (p *Pool) drainLocked(ctx context.Context) error {
	var g errgroup.Group
	n := 0
	for {
		conn, ok := p.free.pop()
		if !ok {
			break
		}
		n++
		p.countClosed()
		if err := conn.Close(); err != nil {
			log.WithError(err).Warn("error closing connection")
		}
		g.Go(func() error {
			return conn.WaitClosed(ctx)
		})
	}
	err := g.Wait()
	if n > 0 {
		log.WithField("closed", n).Debug("free connections drained")
	}
	return err
}

// Close closes the pool. Free connections are closed now, waiters get
// ErrPoolClosed, and leased connections are closed when released.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true

	err := p.drainLocked(ctx)
	p.publishLocked()
	p.cond.Broadcast()

	log.WithField("address", p.config.Address).Debug("pool closed")
	return err
}

// sizeLocked is the provisioned capacity: free + leased + pending.
func (p *Pool) sizeLocked() int {
	return p.free.len() + len(p.leased) + p.pending
}

// MinSize returns the minimum pool size.
func (p *Pool) MinSize() int {
	return p.config.MinSize
}

// MaxSize returns the maximum pool size.
func (p *Pool) MaxSize() int {
	return p.config.MaxSize
}

// Size returns the number of free, leased and pending connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeLocked()
}

// FreeSize returns the number of idle connections.
func (p *Pool) FreeSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.len()
}

// DB returns the currently selected database index.
func (p *Pool) DB() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}

// Encoding returns the configured codec name, empty if none.
func (p *Pool) Encoding() string {
	return p.config.Encoding
}

// Address returns the server address.
func (p *Pool) Address() string {
	return p.config.Address
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats is a snapshot of pool state and counters.
type Stats struct {
	Address string
	DB      int
	MinSize int
	MaxSize int
	// Size is Free + Leased + Pending.
	Size    int
	Free    int
	Leased  int
	Pending int

	Created          uint64
	CreateFailed     uint64
	Closed           uint64
	AcquireCount     uint64
	AcquireWaits     uint64
	ReleaseCount     uint64
	RecycleAnomalies uint64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Address:          p.config.Address,
		DB:               p.db,
		MinSize:          p.config.MinSize,
		MaxSize:          p.config.MaxSize,
		Size:             p.sizeLocked(),
		Free:             p.free.len(),
		Leased:           len(p.leased),
		Pending:          p.pending,
		Created:          atomic.LoadUint64(&p.created),
		CreateFailed:     atomic.LoadUint64(&p.createFailed),
		Closed:           atomic.LoadUint64(&p.closedConns),
		AcquireCount:     atomic.LoadUint64(&p.acquireCount),
		AcquireWaits:     atomic.LoadUint64(&p.acquireWaits),
		ReleaseCount:     atomic.LoadUint64(&p.releaseCount),
		RecycleAnomalies: atomic.LoadUint64(&p.anomalies),
	}
}
