// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks that required configuration is present and valid.
// Error messages name the environment variable that fixes the problem.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateStudyDB(); err != nil {
		return err
	}

	if err := c.validateCheckpoint(); err != nil {
		return err
	}

	if err := c.validateBackup(); err != nil {
		return err
	}

	if err := c.validateSelection(); err != nil {
		return err
	}

	if err := c.validateWatcher(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("STUDY_ROOT is required")
	}
	if c.Storage.Environment == "" {
		return fmt.Errorf("ENVIRONMENT is required (e.g. dev, staging, prod)")
	}
	if strings.ContainsAny(c.Storage.Environment, `/\`) {
		return fmt.Errorf("ENVIRONMENT must be a single path segment, got %q", c.Storage.Environment)
	}
	for processType, tmpl := range c.Storage.Patterns {
		if strings.TrimSpace(tmpl) == "" {
			return fmt.Errorf("storage.patterns[%s] must not be empty", processType)
		}
	}
	return nil
}

func (c *Config) validateStudyDB() error {
	if c.StudyDB.BusyTimeout <= 0 {
		return fmt.Errorf("STUDYDB_BUSY_TIMEOUT must be positive, got %s", c.StudyDB.BusyTimeout)
	}
	if c.StudyDB.MaxRetries < 0 {
		return fmt.Errorf("STUDYDB_MAX_RETRIES must not be negative, got %d", c.StudyDB.MaxRetries)
	}
	if c.StudyDB.RetryBaseDelay <= 0 {
		return fmt.Errorf("STUDYDB_RETRY_DELAY must be positive, got %s", c.StudyDB.RetryBaseDelay)
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	if c.Checkpoint.RetainBest < 1 {
		return fmt.Errorf("CHECKPOINT_RETAIN_BEST must be at least 1 (the best checkpoint is always kept), got %d",
			c.Checkpoint.RetainBest)
	}
	if c.Checkpoint.KeepRecent < 0 {
		return fmt.Errorf("CHECKPOINT_KEEP_RECENT must not be negative, got %s", c.Checkpoint.KeepRecent)
	}
	if c.Checkpoint.MinCount < 0 {
		return fmt.Errorf("CHECKPOINT_MIN_COUNT must not be negative, got %d", c.Checkpoint.MinCount)
	}
	return nil
}

func (c *Config) validateBackup() error {
	if !c.Backup.Enabled {
		return nil
	}

	if c.Backup.RemoteRoot == "" {
		return fmt.Errorf("BACKUP_REMOTE_ROOT is required when BACKUP_ENABLED=true")
	}
	if !filepath.IsAbs(c.Backup.RemoteRoot) {
		return fmt.Errorf("BACKUP_REMOTE_ROOT must be an absolute path, got %q", c.Backup.RemoteRoot)
	}
	if c.Backup.RetryAttempts < 0 {
		return fmt.Errorf("BACKUP_RETRY_ATTEMPTS must not be negative, got %d", c.Backup.RetryAttempts)
	}
	if c.Backup.RetryDelay <= 0 {
		return fmt.Errorf("BACKUP_RETRY_DELAY must be positive, got %s", c.Backup.RetryDelay)
	}
	if c.Backup.Timeout <= 0 {
		return fmt.Errorf("BACKUP_TIMEOUT must be positive, got %s", c.Backup.Timeout)
	}
	if c.Backup.RateLimitMBps < 0 {
		return fmt.Errorf("BACKUP_RATE_LIMIT_MBPS must not be negative, got %g", c.Backup.RateLimitMBps)
	}
	for _, pattern := range c.Backup.Exclude {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("BACKUP_EXCLUDE pattern %q is invalid: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateSelection() error {
	switch c.Selection.Aggregation {
	case "latest", "median", "mean":
	case "min", "minimum":
		// Selecting the single fastest observed run rewards noise
		// outliers over genuinely faster configurations.
		return fmt.Errorf("SELECTION_AGGREGATION=%q is not supported: minimum-latency selection biases toward measurement noise; use latest, median, or mean",
			c.Selection.Aggregation)
	default:
		return fmt.Errorf("SELECTION_AGGREGATION must be one of: latest, median, mean (got %q)",
			c.Selection.Aggregation)
	}

	if c.Selection.CacheTTL <= 0 {
		return fmt.Errorf("SELECTION_CACHE_TTL must be positive, got %s", c.Selection.CacheTTL)
	}
	return nil
}

func (c *Config) validateWatcher() error {
	if !c.Watcher.Enabled {
		return nil
	}

	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("WATCHER_DEBOUNCE must be positive, got %s", c.Watcher.Debounce)
	}
	if c.Watcher.SyncInterval <= 0 {
		return fmt.Errorf("WATCHER_SYNC_INTERVAL must be positive, got %s", c.Watcher.SyncInterval)
	}
	if c.Watcher.SweepInterval <= 0 {
		return fmt.Errorf("WATCHER_SWEEP_INTERVAL must be positive, got %s", c.Watcher.SweepInterval)
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("HTTP_HOST must not be empty when the server is enabled")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Server.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal (got %q)",
			c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Logging.Format)
	}
	return nil
}
