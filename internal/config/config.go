// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values for every optional setting
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting
//
// Sections:
//   - Storage: artifact root, execution environment, path patterns
//   - StudyDB: SQLite metadata store tuning (contention, retries)
//   - Checkpoint: retention policy and cleanup behavior
//   - Backup: remote mirror root, retries, rate limit, excludes
//   - Selection: benchmark aggregation strategy and cache tiers
//   - Watcher: filesystem watch and periodic sync/sweep intervals
//   - Server: operational HTTP endpoint (health, metrics, status)
//   - Logging: level and output format
//
// Thread safety: Config is immutable after Load and safe for concurrent
// read access from multiple goroutines.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	StudyDB    StudyDBConfig    `koanf:"studydb"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Backup     BackupConfig     `koanf:"backup"`
	Selection  SelectionConfig  `koanf:"selection"`
	Watcher    WatcherConfig    `koanf:"watcher"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StorageConfig locates the artifact tree.
//
// Environment variables:
//   - STUDY_ROOT: root directory of the artifact tree (required)
//   - ENVIRONMENT: execution environment segment, e.g. "dev", "prod" (required)
//
// Patterns overrides the per-process-type path templates; keys are
// process types (hpo_trial, hpo_refit, final_training) and values are
// templates over {environment}, {model}, {study8}, {trial8}, {fold_idx}.
// Only a YAML file can set Patterns; an empty map keeps the defaults.
type StorageConfig struct {
	Root        string            `koanf:"root"`
	Environment string            `koanf:"environment"`
	Patterns    map[string]string `koanf:"patterns"`
}

// StudyDBConfig tunes access to the per-study SQLite metadata store.
// Concurrent trial processes share one study.db; writers queue on SQLite
// locking with the busy timeout, and read-modify-write sequences retry
// with backoff on transient contention.
type StudyDBConfig struct {
	BusyTimeout    time.Duration `koanf:"busy_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
}

// CheckpointConfig controls checkpoint retention.
//
// RetainBest is the number of best-ranked checkpoints kept during a
// running study (1 keeps only the current best). KeepRecent additionally
// protects checkpoints younger than the given age, and MinCount keeps at
// least that many checkpoints regardless of rank or age; zero disables
// either guard. FinalCleanup removes all non-best checkpoints once a
// study finishes. DryRun logs deletions without performing them.
type CheckpointConfig struct {
	RetainBest   int           `koanf:"retain_best"`
	KeepRecent   time.Duration `koanf:"keep_recent"`
	MinCount     int           `koanf:"min_count"`
	FinalCleanup bool          `koanf:"final_cleanup"`
	DryRun       bool          `koanf:"dry_run"`
}

// BackupConfig controls mirroring of artifacts to a remote root.
// Backup is best-effort: failures are retried with backoff, surfaced as
// warnings, and never fail the pipeline.
type BackupConfig struct {
	Enabled       bool          `koanf:"enabled"`
	RemoteRoot    string        `koanf:"remote_root"`
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	Timeout       time.Duration `koanf:"timeout"`

	// RateLimitMBps caps upload bandwidth in megabytes per second.
	// Zero means unlimited.
	RateLimitMBps float64 `koanf:"rate_limit_mbps"`

	// Exclude lists glob patterns (matched against base names) that are
	// never synced, e.g. "*.tmp".
	Exclude []string `koanf:"exclude"`
}

// SelectionConfig controls benchmark aggregation and the selection cache.
//
// Aggregation is one of "latest", "median", "mean". "min" is not
// accepted: picking the fastest observed run rewards measurement noise.
type SelectionConfig struct {
	Aggregation string        `koanf:"aggregation"`
	CacheTTL    time.Duration `koanf:"cache_ttl"`

	// CacheDir is the directory of the persistent cache tier. Empty
	// disables persistence and keeps the cache in memory only.
	CacheDir string `koanf:"cache_dir"`
}

// WatcherConfig controls the daemon's background loops: the filesystem
// watcher on trial metadata, the periodic backup sync, and the retention
// sweep.
type WatcherConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Debounce      time.Duration `koanf:"debounce"`
	SyncInterval  time.Duration `koanf:"sync_interval"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// ServerConfig configures the operational HTTP endpoint.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
