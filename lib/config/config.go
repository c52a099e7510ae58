// Package config loads the redispool configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/bdrosen96/aioredis/lib/errors"
	"github.com/bdrosen96/aioredis/lib/pool"
	"github.com/bdrosen96/aioredis/lib/validation"
)

// Default configuration values
const (
	DefaultAddress         = "127.0.0.1:6379"
	DefaultWorkers         = 4
	DefaultRequests        = 100
	DefaultCommand         = "PING"
	DefaultShutdownTimeout = "5s"
	DefaultMetricsListen   = "127.0.0.1:9121"
)

// Config holds all configuration for redispool.
type Config struct {
	Pool     PoolConfig     `toml:"pool"`
	Workload WorkloadConfig `toml:"workload"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// Address is host:port or a unix socket path
	Address string `toml:"address"`
	// DB is the logical database index
	DB int `toml:"db"`
	// Password is sent with AUTH when set
	Password string `toml:"password,omitempty"`
	// Encoding decodes replies to text (utf-8, ascii, latin-1); empty keeps bytes
	Encoding string `toml:"encoding,omitempty"`
	// MinSize is the number of connections kept open
	MinSize int `toml:"min_size"`
	// MaxSize caps the pool; 0 means never grow past MinSize
	MaxSize int `toml:"max_size"`
	// AcquireTimeout bounds each acquire, e.g. "500ms"; empty waits forever
	AcquireTimeout string `toml:"acquire_timeout,omitempty"`
}

// WorkloadConfig describes the load the CLI generates.
type WorkloadConfig struct {
	// Workers is the number of concurrent clients
	Workers int `toml:"workers"`
	// Requests is the number of commands each worker sends
	Requests int `toml:"requests"`
	// Command is the command line each request sends
	Command string `toml:"command"`
	// Rate caps requests per second across all workers; 0 is unlimited
	Rate float64 `toml:"rate"`
	// ShutdownTimeout bounds draining the pool on exit
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// MetricsConfig contains metrics endpoint settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics server is started
	Enabled bool `toml:"enabled"`
	// Listen is the address to bind the metrics server to
	Listen string `toml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Address: DefaultAddress,
			MinSize: pool.DefaultMinSize,
			MaxSize: pool.DefaultMaxSize,
		},
		Workload: WorkloadConfig{
			Workers:         DefaultWorkers,
			Requests:        DefaultRequests,
			Command:         DefaultCommand,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Metrics: MetricsConfig{
			Listen: DefaultMetricsListen,
		},
	}
}

// Load reads configuration from a TOML file. Keys missing from the file
// keep their defaults. If the file doesn't exist, it returns the default
// configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w: %w", apperrors.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file may hold a password.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs validation.Errors

	errs.Add(validation.Address("pool.address", c.Pool.Address))
	errs.Add(validation.DBIndex("pool.db", c.Pool.DB))
	errs.Add(validation.Password("pool.password", c.Pool.Password))
	errs.Add(validation.Encoding("pool.encoding", c.Pool.Encoding))
	errs.Add(validation.PoolBounds("pool.min_size", c.Pool.MinSize, "pool.max_size", c.Pool.MaxSize))
	_, err := validation.Duration("pool.acquire_timeout", c.Pool.AcquireTimeout)
	errs.Add(err)

	errs.Add(validation.IntRange("workload.workers", c.Workload.Workers, 1, 10000))
	errs.Add(validation.NonNegative("workload.requests", c.Workload.Requests))
	errs.Add(validation.Required("workload.command", c.Workload.Command))
	if c.Workload.Rate < 0 {
		errs.Add(validation.NewResult("workload.rate", "must be non-negative", validation.ErrOutOfRange))
	}
	_, err = validation.Duration("workload.shutdown_timeout", c.Workload.ShutdownTimeout)
	errs.Add(err)

	if c.Metrics.Enabled {
		errs.Add(validation.Address("metrics.listen", c.Metrics.Listen))
	}

	if errs.HasErrors() {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, errs)
	}
	return nil
}

// ToPool converts the pool section to a pool.Config.
func (p PoolConfig) ToPool() (pool.Config, error) {
	timeout, err := validation.Duration("pool.acquire_timeout", p.AcquireTimeout)
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Address:        p.Address,
		DB:             p.DB,
		Password:       p.Password,
		Encoding:       p.Encoding,
		MinSize:        p.MinSize,
		MaxSize:        p.MaxSize,
		AcquireTimeout: timeout,
	}, nil
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout, falling back
// to the default when unset.
func (w WorkloadConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := validation.Duration("workload.shutdown_timeout", w.ShutdownTimeout)
	if err != nil || d == 0 {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}
