// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package selection

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/archivarius/internal/benchmark"
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

// Spec is the selection policy: how repeated benchmark runs aggregate
// and what a candidate must satisfy beyond its objective.
type Spec struct {
	Strategy benchmark.Strategy `json:"strategy"`

	// MaxLatencyMS is the serving-latency ceiling in milliseconds.
	// Zero disables the latency gate.
	MaxLatencyMS float64 `json:"max_latency_ms,omitempty"`

	// Benchmark names the serving configuration the ceiling applies
	// to. Required when MaxLatencyMS is set: a ceiling without a
	// config would compare latencies measured under different loads.
	Benchmark *models.BenchmarkConfig `json:"benchmark,omitempty"`
}

// Validate checks the policy is internally consistent.
func (s Spec) Validate() error {
	if !s.Strategy.Valid() {
		return fmt.Errorf("unknown aggregation strategy %q", s.Strategy)
	}
	if s.MaxLatencyMS < 0 {
		return fmt.Errorf("latency ceiling must not be negative, got %v", s.MaxLatencyMS)
	}
	if s.MaxLatencyMS > 0 && s.Benchmark == nil {
		return errors.New("a latency ceiling needs the benchmark config it applies to")
	}
	if s.Benchmark != nil {
		if err := s.Benchmark.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KeyInputs is the complete identity of one selection computation.
// Every field participates in the cache key, so changing any one of
// them forces a recompute.
type KeyInputs struct {
	Experiment  string       `json:"experiment"`
	StudyHash   hashing.Hash `json:"study_hash"`
	Spec        Spec         `json:"spec"`
	BenchmarkID string       `json:"benchmark_id,omitempty"`
}

// canonical serializes the inputs deterministically: struct fields
// marshal in declaration order and map keys sort, so equal inputs
// always produce equal bytes.
func (in KeyInputs) canonical() ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal selection key inputs: %w", err)
	}
	return data, nil
}

// Digest returns the full SHA-256 hex digest of the canonical inputs.
// It is stored inside each cache entry and compared on every hit.
func (in KeyInputs) Digest() (string, error) {
	data, err := in.canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// CacheKey returns the storage key: a readable prefix, the study token,
// and a truncated digest. The truncation is why entries also carry the
// full digest.
func (in KeyInputs) CacheKey() (string, error) {
	data, err := in.canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("selection:%s:%x", in.StudyHash.Short(hashing.ShortTokenLen), sum[:16]), nil
}
