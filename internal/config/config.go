// Package config holds the engine's runtime configuration, parsed from
// environment variables prefixed with MATVIEW_.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// BackendKind names a pluggable upsert state store (internal/upsert).
type BackendKind string

const (
	BackendNoop    BackendKind = "noop"
	BackendHashMap BackendKind = "hashmap"
	BackendBTree   BackendKind = "btree"
	BackendLSM     BackendKind = "lsm"
)

// Config holds the configuration for a single dataflow worker process.
// Environment variables are parsed from the MATVIEW_ prefix, e.g.
// MATVIEW_WORKERS, MATVIEW_UPSERT_BACKEND.
type Config struct {
	// Workers is the number of cooperative single-threaded workers.
	Workers int `envconfig:"WORKERS" default:"1"`

	// YieldWorkItems bounds the join core's per-activation work before it
	// must flush and return control to the scheduler.
	YieldWorkItems int `envconfig:"YIELD_WORK_ITEMS" default:"1000"`

	// YieldDuration is loaded from the environment, but nothing in this
	// repository reads it: the yield predicate passed to join's Activate
	// sees only the work count, so activations are not bounded by wall
	// time.
	YieldDuration time.Duration `envconfig:"YIELD_DURATION" default:"1ms"`

	// UpsertBackend selects the state store behind the UPSERT operator.
	UpsertBackend BackendKind `envconfig:"UPSERT_BACKEND" default:"hashmap"`

	// UpsertDataDir is where the lsm backend keeps its on-disk files.
	// Ignored by all other backends.
	UpsertDataDir string `envconfig:"UPSERT_DATA_DIR" default:""`

	// UpsertDisableWAL skips the LSM backend's write-ahead log for
	// workloads that don't need durability across process restarts.
	UpsertDisableWAL bool `envconfig:"UPSERT_DISABLE_WAL" default:"false"`

	// LetRecDefaultMaxIters bounds recursive bindings that don't specify
	// their own limit.
	LetRecDefaultMaxIters uint64 `envconfig:"LETREC_DEFAULT_MAX_ITERS" default:"100"`

	// AdminAddr, when non-empty, serves the frontier/lag introspection
	// endpoint (internal/admin HTTP surface).
	AdminAddr string `envconfig:"ADMIN_ADDR" default:""`
}

// ResolveDefaults validates UpsertBackend and derives UpsertDataDir when
// the lsm backend is selected without an explicit directory.
func (c *Config) ResolveDefaults() error {
	switch c.UpsertBackend {
	case BackendNoop, BackendHashMap, BackendBTree, BackendLSM:
	default:
		return fmt.Errorf("unsupported UPSERT_BACKEND: %s", c.UpsertBackend)
	}

	if c.UpsertBackend == BackendLSM && c.UpsertDataDir == "" {
		c.UpsertDataDir = "./matview-data"
	}

	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}

	return nil
}

// New parses Config from the environment and resolves its defaults.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MATVIEW", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Int("workers", cfg.Workers).
		Str("upsert_backend", string(cfg.UpsertBackend)).
		Str("upsert_data_dir", cfg.UpsertDataDir).
		Uint64("letrec_default_max_iters", cfg.LetRecDefaultMaxIters).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config suitable for unit and integration tests:
// a single worker against the in-memory hashmap backend.
func NewForTesting() *Config {
	cfg := &Config{
		Workers:               1,
		YieldWorkItems:        1000,
		YieldDuration:         time.Millisecond,
		UpsertBackend:         BackendHashMap,
		LetRecDefaultMaxIters: 100,
	}
	return cfg
}
