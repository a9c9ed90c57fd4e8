// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package benchmark deduplicates repeated inference benchmark runs and
// reduces them to one representative latency per (study, trial, config)
// group.
//
// Records are append-only in the study store: a trial benchmarked three
// times contributes three rows. Grouping and aggregation happen at read
// time, so the strategy can change after the fact without touching
// stored measurements.
package benchmark

import (
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/metrics"
	"github.com/tomtom215/archivarius/internal/models"
)

// GroupKey identifies one deduplication group. A changed benchmark
// configuration hashes to a new ConfigHash and therefore a new group;
// runs under different configs never aggregate together.
type GroupKey struct {
	StudyHash  hashing.Hash
	TrialHash  hashing.Hash
	ConfigHash hashing.Hash
}

// KeyOf returns the dedup group a record belongs to.
func KeyOf(r models.BenchmarkRecord) GroupKey {
	return GroupKey{
		StudyHash:  r.StudyHash,
		TrialHash:  r.TrialHash,
		ConfigHash: r.ConfigHash,
	}
}

// String renders the key as short study/trial/config tokens for logs
// and reports.
func (k GroupKey) String() string {
	return k.StudyHash.Short(hashing.ShortTokenLen) + "/" +
		k.TrialHash.Short(hashing.ShortTokenLen) + "/" +
		k.ConfigHash.Short(hashing.ShortTokenLen)
}

// Group buckets records by their (study, trial, config) hash triple.
// All records land in their group regardless of status; filtering by
// usability is the aggregation step's concern.
func Group(records []models.BenchmarkRecord) map[GroupKey][]models.BenchmarkRecord {
	groups := make(map[GroupKey][]models.BenchmarkRecord)
	for _, r := range records {
		key := KeyOf(r)
		groups[key] = append(groups[key], r)
	}
	for _, g := range groups {
		metrics.RecordBenchmarkGroup(len(g))
	}
	return groups
}

// AlreadyBenchmarked reports whether the records contain a finished run
// for the given group. This is the in-memory idempotency check for
// "skip if already benchmarked": a pending or failed run does not
// count, and neither does a finished run under a different
// configuration. The store-side equivalent is
// studydb.HasFinishedBenchmark.
func AlreadyBenchmarked(records []models.BenchmarkRecord, key GroupKey) bool {
	for i := range records {
		if KeyOf(records[i]) == key && records[i].Status == models.BenchmarkFinished {
			return true
		}
	}
	return false
}
