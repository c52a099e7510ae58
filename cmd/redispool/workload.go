package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bdrosen96/aioredis/lib/config"
	"github.com/bdrosen96/aioredis/lib/pool"
	"github.com/bdrosen96/aioredis/lib/redisconn"
)

// workloadResult summarizes a workload run.
type workloadResult struct {
	OK       uint64
	Failed   uint64
	Elapsed  time.Duration
	FirstErr error
}

// Rate returns successful requests per second.
func (r workloadResult) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.OK) / r.Elapsed.Seconds()
}

// runWorkload runs cfg.Workers workers, each sending cfg.Command
// cfg.Requests times on a leased connection, paced to cfg.Rate when set.
// Failed requests are counted; only cancellation of ctx stops the run
// early.
func runWorkload(ctx context.Context, p *pool.Pool, cfg config.WorkloadConfig) workloadResult {
	args := commandArgs(cfg.Command)
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(cfg.Workers, 1))
	}
	var (
		ok, failed uint64
		once       sync.Once
		firstErr   error
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			for i := 0; i < cfg.Requests; i++ {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				err := p.Do(gctx, func(conn pool.Conn) error {
					rc, isRedis := conn.(*redisconn.Conn)
					if !isRedis {
						return fmt.Errorf("unexpected connection type %T", conn)
					}
					_, err := rc.Do(gctx, args...)
					return err
				})
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					atomic.AddUint64(&failed, 1)
					once.Do(func() { firstErr = err })
					continue
				}
				atomic.AddUint64(&ok, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		once.Do(func() { firstErr = err })
	}

	return workloadResult{
		OK:       atomic.LoadUint64(&ok),
		Failed:   atomic.LoadUint64(&failed),
		Elapsed:  time.Since(start),
		FirstErr: firstErr,
	}
}

func commandArgs(command string) []any {
	fields := strings.Fields(command)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return args
}
