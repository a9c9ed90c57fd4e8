// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

// InsertBenchmark stores one benchmark measurement. Records are
// append-only: repeated runs of the same configuration add rows, and
// deduplication happens at read time by grouping.
func (s *Store) InsertBenchmark(ctx context.Context, record models.BenchmarkRecord) error {
	if record.StudyHash == "" || record.TrialHash == "" || record.ConfigHash == "" {
		return fmt.Errorf("%w: benchmark record missing identity hashes", hashing.ErrInvalidKey)
	}
	if !record.Status.Valid() {
		return fmt.Errorf("%w: benchmark record has unknown status %q", hashing.ErrInvalidKey, record.Status)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	config, err := json.Marshal(record.Config)
	if err != nil {
		return fmt.Errorf("marshal benchmark config: %w", err)
	}
	latencies, err := json.Marshal(record.LatenciesMS)
	if err != nil {
		return fmt.Errorf("marshal benchmark latencies: %w", err)
	}

	return s.withRetry(ctx, "insert_benchmark", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO benchmarks (id, study_hash, trial_hash, config_hash, config, latencies, status, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				latencies   = excluded.latencies,
				status      = excluded.status,
				recorded_at = excluded.recorded_at`,
			record.ID.String(), record.StudyHash.String(), record.TrialHash.String(),
			record.ConfigHash.String(), string(config), string(latencies),
			string(record.Status), recordedAt.Format(time.RFC3339Nano),
		)
		return err
	})
}

// ListBenchmarks returns all benchmark records for a study, newest last.
func (s *Store) ListBenchmarks(ctx context.Context, studyHash hashing.Hash) ([]models.BenchmarkRecord, error) {
	var records []models.BenchmarkRecord
	err := s.withRetry(ctx, "list_benchmarks", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, study_hash, trial_hash, config_hash, config, latencies, status, recorded_at
			FROM benchmarks WHERE study_hash = ? ORDER BY recorded_at`,
			studyHash.String())
		if err != nil {
			return err
		}
		defer closeQuietly(rows)

		records = records[:0]
		for rows.Next() {
			var (
				record     models.BenchmarkRecord
				id         string
				study      string
				trial      string
				configHash string
				config     string
				latencies  string
				status     string
				recordedAt string
			)
			if err := rows.Scan(&id, &study, &trial, &configHash, &config, &latencies, &status, &recordedAt); err != nil {
				return fmt.Errorf("scan benchmark row: %w", err)
			}

			record.ID, err = uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("parse benchmark id %q: %w", id, err)
			}
			record.StudyHash = hashing.Hash(study)
			record.TrialHash = hashing.Hash(trial)
			record.ConfigHash = hashing.Hash(configHash)
			record.Status = models.BenchmarkStatus(status)
			if err := json.Unmarshal([]byte(config), &record.Config); err != nil {
				return fmt.Errorf("unmarshal benchmark config: %w", err)
			}
			if err := json.Unmarshal([]byte(latencies), &record.LatenciesMS); err != nil {
				return fmt.Errorf("unmarshal benchmark latencies: %w", err)
			}
			record.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
			if err != nil {
				return fmt.Errorf("parse benchmark recorded_at %q: %w", recordedAt, err)
			}

			records = append(records, record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// HasFinishedBenchmark reports whether a finished record exists for the
// exact (trial, config) group. This is the idempotency check for "skip
// if already benchmarked": a pending or failed record does not count,
// and neither does a finished record under a different configuration.
func (s *Store) HasFinishedBenchmark(ctx context.Context, studyHash, trialHash, configHash hashing.Hash) (bool, error) {
	var exists bool
	err := s.withRetry(ctx, "has_finished_benchmark", func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM benchmarks
				WHERE study_hash = ? AND trial_hash = ? AND config_hash = ? AND status = ?
			)`,
			studyHash.String(), trialHash.String(), configHash.String(),
			string(models.BenchmarkFinished))
		return row.Scan(&exists)
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}
