// Package pool provides a client-side connection pool for a stateful,
// single-request-at-a-time protocol such as Redis.
//
// The pool keeps a bounded FIFO list of idle connections, a set of leased
// connections and a count of connections being created. Every change to
// that state happens under one guard; the only work done without the guard
// is the factory call that creates a connection and connection teardown.
//
// The pool supports:
//   - Eager fill to a minimum size at construction and on every acquire
//   - Conservative growth: at most one extra connection per acquire once
//     the minimum is met, capped at the maximum size
//   - Blocking, context-aware acquisition
//   - Recycle checks on release (closed, mid-transaction, wrong database)
//   - Switching the database of all idle connections with Select
//   - Draining idle connections with Clear
//   - Scoped leases that always return their connection
//
// # Basic Usage
//
//	cfg := pool.DefaultConfig()
//	cfg.Address = "localhost:6379"
//	cfg.MinSize = 2
//	cfg.MaxSize = 10
//
//	p, err := pool.New(ctx, redisconn.Dial, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(context.Background())
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(conn)
//
// # Scoped Leases
//
// Do acquires a connection, runs fn and releases the connection on every
// exit path, including a panic inside fn:
//
//	err := p.Do(ctx, func(conn pool.Conn) error {
//	    return conn.(*redisconn.Conn).Ping(ctx)
//	})
//
// # Recycling
//
// A released connection goes back to the idle list only if it is open,
// not inside a transaction, still on the pool's database and the idle list
// has room under MaxSize. Anything else is closed. Release never fails
// because a connection is unfit for reuse; it fails only when the
// connection was not leased from this pool.
//
// # Metrics
//
// Pool metrics are registered with the metrics package:
//   - redispool_connections_free: Idle connections
//   - redispool_connections_leased: Connections held by callers
//   - redispool_connections_pending: Connections being created
//   - redispool_acquire_total: Acquire calls
//   - redispool_acquire_wait_total: Acquire calls that had to wait
//   - redispool_release_total: Successful releases
//   - redispool_created_total: Connections created
//   - redispool_create_failed_total: Failed connection creations
//   - redispool_closed_total: Connections closed by the pool
//   - redispool_recycle_anomalies_total: Releases of unfit connections
//   - redispool_acquire_duration_seconds: Acquire latency
package pool
