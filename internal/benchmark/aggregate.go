// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package benchmark

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/archivarius/internal/models"
)

// ErrNoSamples means a group holds no finished run with measurements,
// so no representative latency can be computed.
var ErrNoSamples = errors.New("no usable benchmark samples")

// Strategy selects how repeated runs of one group reduce to a single
// latency. A minimum strategy is deliberately absent: the fastest
// observed sample is noise, not signal, and selecting on it rewards
// lucky runs.
type Strategy string

const (
	// StrategyLatest takes the newest finished run and represents it by
	// the median of its own samples.
	StrategyLatest Strategy = "latest"
	// StrategyMedian pools every sample across the group's finished
	// runs and takes the empirical median.
	StrategyMedian Strategy = "median"
	// StrategyMean pools every sample and takes the arithmetic mean.
	StrategyMean Strategy = "mean"

	// DefaultStrategy is the median: robust to stragglers in either
	// direction.
	DefaultStrategy = StrategyMedian
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyLatest, StrategyMedian, StrategyMean:
		return true
	}
	return false
}

// ParseStrategy maps a flag or config value onto a Strategy. The empty
// string selects the default.
func ParseStrategy(raw string) (Strategy, error) {
	if raw == "" {
		return DefaultStrategy, nil
	}
	s := Strategy(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown aggregation strategy %q (valid: latest, median, mean)", raw)
	}
	return s, nil
}

// Aggregate reduces the records of one dedup group to a representative
// latency in milliseconds. Only finished runs with samples participate;
// a group without any yields ErrNoSamples.
func Aggregate(records []models.BenchmarkRecord, strategy Strategy) (float64, error) {
	if !strategy.Valid() {
		return 0, fmt.Errorf("unknown aggregation strategy %q", strategy)
	}

	usable := make([]models.BenchmarkRecord, 0, len(records))
	for i := range records {
		if records[i].Usable() {
			usable = append(usable, records[i])
		}
	}
	if len(usable) == 0 {
		return 0, fmt.Errorf("%w in %d records", ErrNoSamples, len(records))
	}

	switch strategy {
	case StrategyLatest:
		newest := usable[0]
		for _, r := range usable[1:] {
			if !r.RecordedAt.Before(newest.RecordedAt) {
				newest = r
			}
		}
		return medianOf(newest.LatenciesMS), nil

	case StrategyMean:
		return stat.Mean(pool(usable), nil), nil

	default:
		return medianOf(pool(usable)), nil
	}
}

// pool concatenates the samples of all usable records.
func pool(records []models.BenchmarkRecord) []float64 {
	var n int
	for i := range records {
		n += len(records[i].LatenciesMS)
	}
	samples := make([]float64, 0, n)
	for i := range records {
		samples = append(samples, records[i].LatenciesMS...)
	}
	return samples
}

// medianOf returns the empirical median: always an actually observed
// latency, never an interpolation between two samples. The input is
// copied before sorting.
func medianOf(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// GroupAggregate is one row of a deduplicated benchmark report.
type GroupAggregate struct {
	Key       GroupKey               `json:"key"`
	Config    models.BenchmarkConfig `json:"config"`
	Runs      int                    `json:"runs"`
	Usable    int                    `json:"usable"`
	Samples   int                    `json:"samples"`
	LatencyMS float64                `json:"latency_ms"`
}

// Summarize groups the records and aggregates each group under one
// strategy. Groups with no usable run are left out: they have no
// latency to report. Rows come back in a stable (study, trial, config)
// order.
func Summarize(records []models.BenchmarkRecord, strategy Strategy) ([]GroupAggregate, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown aggregation strategy %q", strategy)
	}

	groups := Group(records)
	rows := make([]GroupAggregate, 0, len(groups))
	for key, group := range groups {
		latency, err := Aggregate(group, strategy)
		if errors.Is(err, ErrNoSamples) {
			continue
		}
		if err != nil {
			return nil, err
		}

		usable := 0
		samples := 0
		for i := range group {
			if group[i].Usable() {
				usable++
				samples += len(group[i].LatenciesMS)
			}
		}
		// Configs within a group are identical by construction of the
		// config hash; any member can speak for the group.
		rows = append(rows, GroupAggregate{
			Key:       key,
			Config:    group[0].Config,
			Runs:      len(group),
			Usable:    usable,
			Samples:   samples,
			LatencyMS: latency,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Key, rows[j].Key
		if a.StudyHash != b.StudyHash {
			return a.StudyHash < b.StudyHash
		}
		if a.TrialHash != b.TrialHash {
			return a.TrialHash < b.TrialHash
		}
		return a.ConfigHash < b.ConfigHash
	})
	return rows, nil
}
