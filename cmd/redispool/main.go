// redispool drives a Redis connection pool with a configurable workload
// and reports pool statistics.
//
// Usage:
//
//	redispool [flags]
//
// Flags:
//
//	-config string
//	    Path to configuration file (default "redispool.toml")
//	-addr string
//	    Redis address, host:port or unix socket path (overrides config)
//	-db int
//	    Database index (overrides config)
//	-min int
//	    Minimum pool size (overrides config)
//	-max int
//	    Maximum pool size (overrides config)
//	-workers int
//	    Concurrent workers (overrides config)
//	-requests int
//	    Requests per worker (overrides config)
//	-rate float
//	    Requests per second across all workers (overrides config)
//	-metrics string
//	    Serve metrics on this address (overrides config)
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdrosen96/aioredis/lib/config"
	"github.com/bdrosen96/aioredis/lib/metrics"
	"github.com/bdrosen96/aioredis/lib/pool"
	"github.com/bdrosen96/aioredis/lib/redisconn"
	"github.com/bdrosen96/aioredis/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command-line flags
	configPath := flag.String("config", "redispool.toml", "Path to configuration file")
	addr := flag.String("addr", "", "Redis address, host:port or unix socket path (overrides config)")
	db := flag.Int("db", 0, "Database index (overrides config)")
	minSize := flag.Int("min", 0, "Minimum pool size (overrides config)")
	maxSize := flag.Int("max", 0, "Maximum pool size (overrides config)")
	workers := flag.Int("workers", 0, "Concurrent workers (overrides config)")
	requests := flag.Int("requests", 0, "Requests per worker (overrides config)")
	reqRate := flag.Float64("rate", 0, "Requests per second across all workers, 0 for unlimited (overrides config)")
	metricsAddr := flag.String("metrics", "", "Serve metrics on this address (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "redispool - Redis connection pool load driver\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  redispool [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("redispool version %s (%s)\n", version.Full(), version.Runtime())
		return 0
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	// Apply command-line overrides, only for flags given explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Pool.Address = *addr
		case "db":
			cfg.Pool.DB = *db
		case "min":
			cfg.Pool.MinSize = *minSize
		case "max":
			cfg.Pool.MaxSize = *maxSize
		case "workers":
			cfg.Workload.Workers = *workers
		case "requests":
			cfg.Workload.Requests = *requests
		case "rate":
			cfg.Workload.Rate = *reqRate
		case "metrics":
			cfg.Metrics.Enabled = *metricsAddr != ""
			cfg.Metrics.Listen = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	poolCfg, err := cfg.Pool.ToPool()
	if err != nil {
		logger.Error("invalid pool configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pool.New(ctx, redisconn.Dial, poolCfg)
	if err != nil {
		logger.Error("failed to create pool", "address", poolCfg.Address, "error", err)
		return 1
	}
	logger.Info("pool ready",
		"address", p.Address(),
		"db", p.DB(),
		"min", p.MinSize(),
		"max", p.MaxSize(),
		"version", version.Version)

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = startMetricsServer(cfg.Metrics.Listen, p, logger)
	}

	result := runWorkload(ctx, p, cfg.Workload)
	logger.Info("workload finished",
		"ok", result.OK,
		"failed", result.Failed,
		"elapsed", result.Elapsed.Round(time.Millisecond),
		"rate", fmt.Sprintf("%.0f/s", result.Rate()))
	if result.FirstErr != nil {
		logger.Warn("first request error", "error", result.FirstErr)
	}

	printStats(p.Stats())

	// Keep serving metrics until interrupted.
	if srv != nil {
		logger.Info("serving metrics, press Ctrl-C to exit", "listen", cfg.Metrics.Listen)
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Workload.ShutdownTimeoutDuration())
	defer cancel()

	exit := 0
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
			exit = 1
		}
	}
	if err := p.Close(shutdownCtx); err != nil {
		logger.Error("pool shutdown error", "error", err)
		exit = 1
	}
	if result.Failed > 0 {
		exit = 1
	}
	logger.Info("redispool stopped")
	return exit
}

func startMetricsServer(listen string, p *pool.Pool, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.Stats())
	})

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func printStats(s pool.Stats) {
	fmt.Printf("Pool %s (db %d)\n", s.Address, s.DB)
	fmt.Printf("  size:     %d (min %d, max %d)\n", s.Size, s.MinSize, s.MaxSize)
	fmt.Printf("  free:     %d\n", s.Free)
	fmt.Printf("  leased:   %d\n", s.Leased)
	fmt.Printf("  created:  %d (%d failed)\n", s.Created, s.CreateFailed)
	fmt.Printf("  closed:   %d\n", s.Closed)
	fmt.Printf("  acquires: %d (%d waited)\n", s.AcquireCount, s.AcquireWaits)
	fmt.Printf("  releases: %d\n", s.ReleaseCount)
	if s.RecycleAnomalies > 0 {
		fmt.Printf("  anomalies: %d\n", s.RecycleAnomalies)
	}
}
