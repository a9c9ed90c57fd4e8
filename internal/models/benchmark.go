// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/archivarius/internal/hashing"
)

// BenchmarkStatus tracks an inference benchmark run for a trial
// configuration.
type BenchmarkStatus string

const (
	BenchmarkPending  BenchmarkStatus = "pending"
	BenchmarkFinished BenchmarkStatus = "finished"
	BenchmarkFailed   BenchmarkStatus = "failed"
)

// Valid reports whether s is a known benchmark status.
func (s BenchmarkStatus) Valid() bool {
	switch s {
	case BenchmarkPending, BenchmarkFinished, BenchmarkFailed:
		return true
	}
	return false
}

// BenchmarkConfig describes the serving configuration a benchmark ran
// under. Two runs with equal configs measure the same thing and are
// deduplicated against each other.
type BenchmarkConfig struct {
	BatchSize      int    `json:"batch_size"`
	SequenceLength int    `json:"sequence_length"`
	Device         string `json:"device"`
	Iterations     int    `json:"iterations"`
}

// Validate checks the config describes a runnable benchmark.
func (c BenchmarkConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: benchmark batch size must be positive", hashing.ErrInvalidKey)
	}
	if c.SequenceLength <= 0 {
		return fmt.Errorf("%w: benchmark sequence length must be positive", hashing.ErrInvalidKey)
	}
	if c.Device == "" {
		return fmt.Errorf("%w: benchmark device is required", hashing.ErrInvalidKey)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: benchmark iterations must be positive", hashing.ErrInvalidKey)
	}
	return nil
}

// Hash returns the canonical content hash of the config.
func (c BenchmarkConfig) Hash() (hashing.Hash, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	return hashing.HashKey(hashing.Fields{
		"batch_size": strconv.Itoa(c.BatchSize),
		"seq_len":    strconv.Itoa(c.SequenceLength),
		"device":     c.Device,
		"iterations": strconv.Itoa(c.Iterations),
	})
}

// BenchmarkRecord is one stored benchmark measurement. LatenciesMS
// holds the raw per-iteration latencies; aggregation over repeated runs
// happens at read time, never at write time.
type BenchmarkRecord struct {
	ID          uuid.UUID       `json:"id"`
	StudyHash   hashing.Hash    `json:"study_hash"`
	TrialHash   hashing.Hash    `json:"trial_hash"`
	ConfigHash  hashing.Hash    `json:"config_hash"`
	Config      BenchmarkConfig `json:"config"`
	LatenciesMS []float64       `json:"latencies_ms"`
	Status      BenchmarkStatus `json:"status"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Usable reports whether the record carries measurements that may
// participate in aggregation.
func (r *BenchmarkRecord) Usable() bool {
	return r.Status == BenchmarkFinished && len(r.LatenciesMS) > 0
}
