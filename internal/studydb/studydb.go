// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
)

var (
	// ErrStudyNotFound indicates the study hash has no row in this store.
	ErrStudyNotFound = errors.New("study not found")

	// ErrTrialNotFound indicates the trial hash has no row in this store.
	ErrTrialNotFound = errors.New("trial not found")

	// ErrNoTrials indicates no trial satisfies the query, e.g. a best-trial
	// lookup on a study with no completed objective values yet.
	ErrNoTrials = errors.New("no matching trials")
)

// Config tunes contention handling. Zero values select the defaults.
type Config struct {
	// BusyTimeout is handed to SQLite; the engine queues on the file lock
	// for up to this long before reporting busy.
	BusyTimeout time.Duration

	// MaxRetries bounds the retry loop around busy errors that survive
	// the busy timeout.
	MaxRetries int

	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	return c
}

// Store is one open study.db. Safe for concurrent use; writes serialize
// on a single connection.
type Store struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Open opens or creates the study metadata store at path. The schema is
// created if missing; opening an existing file is a no-op upgrade-wise
// within a schema generation.
func Open(ctx context.Context, path string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	// _txlock=immediate makes write transactions take the reserved lock
	// at BEGIN, so lock conflicts surface inside the busy timeout window
	// instead of at the first write statement.
	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open study db %s: %w", path, err)
	}

	// A single connection keeps every pragma below in effect for all
	// statements. Cross-process concurrency is SQLite's job, not the
	// pool's.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			closeQuietly(db)
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, cfg: cfg}
	if err := s.initSchema(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS studies (
			study_hash   TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			model        TEXT NOT NULL,
			objective    TEXT NOT NULL,
			direction    TEXT NOT NULL,
			search_space TEXT NOT NULL,
			dataset      TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trials (
			trial_hash      TEXT PRIMARY KEY,
			study_hash      TEXT NOT NULL REFERENCES studies(study_hash),
			number          INTEGER NOT NULL,
			state           TEXT NOT NULL,
			objective       REAL,
			params          TEXT NOT NULL,
			fold            INTEGER,
			checkpoint_path TEXT NOT NULL DEFAULT '',
			is_best         INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			completed_at    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trials_study ON trials(study_hash);
		CREATE INDEX IF NOT EXISTS idx_trials_best ON trials(study_hash, is_best);

		CREATE TABLE IF NOT EXISTS benchmarks (
			id          TEXT PRIMARY KEY,
			study_hash  TEXT NOT NULL,
			trial_hash  TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			config      TEXT NOT NULL,
			latencies   TEXT NOT NULL,
			status      TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bench_group ON benchmarks(study_hash, trial_hash, config_hash);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize study db schema: %w", err)
	}
	return nil
}

// withRetry runs op, retrying on lock contention with exponential
// backoff. Contention that outlives the busy timeout is expected when
// many trial processes finish at once; it resolves within a few
// attempts or not at all.
func (s *Store) withRetry(ctx context.Context, operation string, op func() error) error {
	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !isBusy(err) || attempt >= s.cfg.MaxRetries {
			break
		}

		metrics.RecordStudyDBRetry()
		delay := calculateBackoff(s.cfg.RetryBaseDelay, attempt)
		logging.Debug().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Study db busy, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			metrics.RecordStudyDBQuery(operation, time.Since(start), ctx.Err())
			return ctx.Err()
		}
	}

	metrics.RecordStudyDBQuery(operation, time.Since(start), err)
	return err
}

// calculateBackoff returns base * 2^attempt capped at 5 seconds, which
// keeps worst-case stalls short: the busy timeout already absorbed the
// long wait.
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	const maxBackoff = 5 * time.Second

	if attempt > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}
	return backoff
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// inTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// closeQuietly closes a resource and explicitly ignores any error.
// For cleanup in error paths where Close errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
