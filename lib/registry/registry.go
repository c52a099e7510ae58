// Package registry keeps one connection pool per (address, db) pair and
// creates pools on first use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-i2p/logger"
	cmap "github.com/orcaman/concurrent-map"

	apperrors "github.com/bdrosen96/aioredis/lib/errors"
	"github.com/bdrosen96/aioredis/lib/pool"
)

var log = logger.GetGoI2PLogger()

var (
	// ErrClosed is returned by a registry after Close.
	ErrClosed = fmt.Errorf("registry: %w", apperrors.ErrClosed)
	// ErrNotFound is returned by Remove for an unknown pool.
	ErrNotFound = fmt.Errorf("registry: pool not found: %w", apperrors.ErrInvalidInput)
)

// Registry maps server endpoints to pools. It is safe for concurrent use.
type Registry struct {
	factory  pool.Factory
	defaults pool.Config
	pools    cmap.ConcurrentMap
	closed   atomic.Bool
}

// New returns an empty registry. Pools it creates use factory and copy
// every setting but Address and DB from defaults.
func New(factory pool.Factory, defaults pool.Config) *Registry {
	return &Registry{
		factory:  factory,
		defaults: defaults,
		pools:    cmap.New(),
	}
}

// Key is the map key for a pool.
func Key(address string, db int) string {
	return fmt.Sprintf("%s/%d", address, db)
}

// Get returns the pool for address and db, creating it if needed. When two
// callers race to create the same pool, one pool wins and the other is
// closed.
func (r *Registry) Get(ctx context.Context, address string, db int) (*pool.Pool, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	key := Key(address, db)
	if v, ok := r.pools.Get(key); ok {
		return v.(*pool.Pool), nil
	}

	cfg := r.defaults
	cfg.Address = address
	cfg.DB = db
	p, err := pool.New(ctx, r.factory, cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: create pool %s: %w", key, err)
	}

	for {
		if r.pools.SetIfAbsent(key, p) {
			break
		}
		if v, ok := r.pools.Get(key); ok {
			log.WithField("key", key).Debug("lost pool creation race, closing duplicate")
			closePool(ctx, p)
			return v.(*pool.Pool), nil
		}
	}

	// Close may have swept the map before our insert.
	if r.closed.Load() {
		r.pools.Remove(key)
		closePool(ctx, p)
		return nil, ErrClosed
	}
	log.WithField("key", key).Debug("pool registered")
	return p, nil
}

// Remove closes and forgets the pool for address and db.
func (r *Registry) Remove(ctx context.Context, address string, db int) error {
	key := Key(address, db)
	v, ok := r.pools.Pop(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return ignoreClosed(v.(*pool.Pool).Close(ctx))
}

// ClearAll clears the free connections of every pool.
func (r *Registry) ClearAll(ctx context.Context) error {
	var errs []error
	for item := range r.pools.IterBuffered() {
		if err := item.Val.(*pool.Pool).Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("registry: clear %s: %w", item.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every pool. Get fails afterwards.
func (r *Registry) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	var errs []error
	for _, key := range r.pools.Keys() {
		v, ok := r.pools.Pop(key)
		if !ok {
			continue
		}
		if err := ignoreClosed(v.(*pool.Pool).Close(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("registry: close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns the statistics of every pool by key.
func (r *Registry) Stats() map[string]pool.Stats {
	stats := make(map[string]pool.Stats, r.pools.Count())
	for item := range r.pools.IterBuffered() {
		stats[item.Key] = item.Val.(*pool.Pool).Stats()
	}
	return stats
}

// Len returns the number of pools.
func (r *Registry) Len() int {
	return r.pools.Count()
}

func closePool(ctx context.Context, p *pool.Pool) {
	if err := ignoreClosed(p.Close(ctx)); err != nil {
		log.WithError(err).WithField("address", p.Address()).Warn("error closing pool")
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, pool.ErrPoolClosed) {
		return nil
	}
	return err
}
