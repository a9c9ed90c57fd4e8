// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/archivarius/config.yaml",
	"/etc/archivarius/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:        "",  // Required, no safe default
			Environment: "",  // Required, no safe default
			Patterns:    nil, // nil selects the built-in templates
		},
		StudyDB: StudyDBConfig{
			BusyTimeout:    5 * time.Second,
			MaxRetries:     5,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Checkpoint: CheckpointConfig{
			RetainBest:   1, // Keep only the current best while running
			KeepRecent:   0, // No age-based protection by default
			MinCount:     0,
			FinalCleanup: true,
			DryRun:       false,
		},
		Backup: BackupConfig{
			Enabled:       false, // Opt-in: requires a remote root
			RemoteRoot:    "",
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
			Timeout:       5 * time.Minute,
			RateLimitMBps: 0, // Unlimited
			Exclude:       []string{"*.tmp", "*.lock"},
		},
		Selection: SelectionConfig{
			Aggregation: "median",
			CacheTTL:    1 * time.Hour,
			CacheDir:    "", // Memory-only cache by default
		},
		Watcher: WatcherConfig{
			Enabled:       true,
			Debounce:      2 * time.Second,
			SyncInterval:  5 * time.Minute,
			SweepInterval: 1 * time.Hour,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1", // Internal ops endpoint, not public
			Port:            8777,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load assembles the configuration from three koanf layers, lowest
// precedence first: built-in defaults, an optional YAML file from the
// default search paths, then environment variables. The merged result
// is validated before being returned.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFrom loads configuration like Load but reads the YAML file at
// path instead of searching the default locations. The file must exist;
// environment variables still override its values.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Env wins over everything below it.
	// STUDY_ROOT -> storage.root, BACKUP_REMOTE_ROOT -> backup.remote_root
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Env values for slice fields arrive as one comma-separated string.
	if err := expandSliceFields(k); err != nil {
		return nil, fmt.Errorf("expand slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing candidate: the
// ConfigPathEnvVar override when set, then DefaultConfigPaths in order.
func findConfigFile() string {
	candidates := DefaultConfigPaths
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		candidates = append([]string{envPath}, candidates...)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive from environment variables.
var sliceConfigPaths = []string{
	"backup.exclude",
}

// expandSliceFields rewrites comma-separated string values at the known
// slice paths into real slices. YAML and default layers already arrive
// typed and are left alone.
func expandSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := splitCSV(raw)
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// splitCSV splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings is the allowlist of environment variables the daemon
// reads, keyed by lowercased name. Anything not listed is ignored, so
// unrelated process environment cannot leak into the configuration.
var envMappings = map[string]string{
	// Storage
	"study_root":  "storage.root",
	"environment": "storage.environment",

	// Study metadata store
	"studydb_busy_timeout": "studydb.busy_timeout",
	"studydb_max_retries":  "studydb.max_retries",
	"studydb_retry_delay":  "studydb.retry_base_delay",

	// Checkpoint retention
	"checkpoint_retain_best":   "checkpoint.retain_best",
	"checkpoint_keep_recent":   "checkpoint.keep_recent",
	"checkpoint_min_count":     "checkpoint.min_count",
	"checkpoint_final_cleanup": "checkpoint.final_cleanup",
	"checkpoint_dry_run":       "checkpoint.dry_run",

	// Backup
	"backup_enabled":         "backup.enabled",
	"backup_remote_root":     "backup.remote_root",
	"backup_retry_attempts":  "backup.retry_attempts",
	"backup_retry_delay":     "backup.retry_delay",
	"backup_timeout":         "backup.timeout",
	"backup_rate_limit_mbps": "backup.rate_limit_mbps",
	"backup_exclude":         "backup.exclude",

	// Selection
	"selection_aggregation": "selection.aggregation",
	"selection_cache_ttl":   "selection.cache_ttl",
	"selection_cache_dir":   "selection.cache_dir",

	// Watcher
	"watcher_enabled":        "watcher.enabled",
	"watcher_debounce":       "watcher.debounce",
	"watcher_sync_interval":  "watcher.sync_interval",
	"watcher_sweep_interval": "watcher.sweep_interval",

	// Ops server
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"http_enabled":        "server.enabled",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc resolves an environment variable name to its koanf
// path. Unknown names map to the empty string, which koanf skips.
//
//	STUDY_ROOT             -> storage.root
//	CHECKPOINT_RETAIN_BEST -> checkpoint.retain_best
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile invokes callback whenever the file at path changes.
// Swapping the live configuration on reload is the caller's problem,
// locking included.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
