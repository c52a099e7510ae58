package pool

import "github.com/bdrosen96/aioredis/lib/metrics"

// Pool metrics. Gauges are fed as deltas so several pools in one process
// add up.
var (
	PoolConnectionsFree = metrics.NewGauge(
		"redispool_connections_free",
		"Number of idle connections",
	)
	PoolConnectionsLeased = metrics.NewGauge(
		"redispool_connections_leased",
		"Number of connections held by callers",
	)
	PoolConnectionsPending = metrics.NewGauge(
		"redispool_connections_pending",
		"Number of connections being created",
	)
	PoolAcquireTotal = metrics.NewCounter(
		"redispool_acquire_total",
		"Total number of acquire calls",
	)
	PoolAcquireWaitTotal = metrics.NewCounter(
		"redispool_acquire_wait_total",
		"Total number of acquire calls that had to wait for a connection",
	)
	PoolReleaseTotal = metrics.NewCounter(
		"redispool_release_total",
		"Total number of successful releases",
	)
	PoolCreatedTotal = metrics.NewCounter(
		"redispool_created_total",
		"Total number of connections created",
	)
	PoolCreateFailedTotal = metrics.NewCounter(
		"redispool_create_failed_total",
		"Total number of failed connection creations",
	)
	PoolClosedTotal = metrics.NewCounter(
		"redispool_closed_total",
		"Total number of connections closed by the pool",
	)
	PoolRecycleAnomaliesTotal = metrics.NewCounter(
		"redispool_recycle_anomalies_total",
		"Total number of released connections unfit for reuse",
	)
	PoolAcquireLatency = metrics.NewHistogram(
		"redispool_acquire_duration_seconds",
		"Time spent acquiring a connection from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// gaugeState is what a pool last reported to the gauges.
type gaugeState struct {
	free, leased, pending int
}

// publishLocked pushes the difference between the current state and the
// last published state to the gauges. Caller must hold the guard.
func (p *Pool) publishLocked() {
	now := gaugeState{
		free:    p.free.len(),
		leased:  len(p.leased),
		pending: p.pending,
	}
	PoolConnectionsFree.Add(int64(now.free - p.published.free))
	PoolConnectionsLeased.Add(int64(now.leased - p.published.leased))
	PoolConnectionsPending.Add(int64(now.pending - p.published.pending))
	p.published = now
}
