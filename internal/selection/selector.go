// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package selection picks the champion trial of a study: the completed
// trial with the best objective value, optionally gated by a benchmark
// latency ceiling. Results are cached keyed by a content hash of every
// input that influences the answer, so a stale cache can never survive
// a policy change.
package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/archivarius/internal/benchmark"
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/studydb"
)

// ErrNoCandidates means no completed trial survived the selection
// filters.
var ErrNoCandidates = errors.New("no selectable trials")

// Candidate is one trial as the selector saw it. Excluded carries the
// human-readable reason a trial was ruled out; the champion's is empty.
type Candidate struct {
	TrialHash      hashing.Hash `json:"trial_hash"`
	Number         int          `json:"number"`
	Objective      float64      `json:"objective"`
	LatencyMS      *float64     `json:"latency_ms,omitempty"`
	CheckpointPath string       `json:"checkpoint_path,omitempty"`
	Excluded       string       `json:"excluded,omitempty"`
}

// Report is the full outcome of one selection run, including the
// trials that lost and why.
type Report struct {
	StudyHash  hashing.Hash       `json:"study_hash"`
	Experiment string             `json:"experiment"`
	Direction  models.Direction   `json:"direction"`
	Strategy   benchmark.Strategy `json:"strategy"`
	Champion   *Candidate         `json:"champion,omitempty"`
	Candidates []Candidate        `json:"candidates"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Selector ranks a study's completed trials against a selection spec.
type Selector struct {
	store *studydb.Store
	cache *Cache
}

// NewSelector builds a selector over the given study store. A nil
// cache is not supported; memory-only caching is the minimal mode.
func NewSelector(store *studydb.Store, cache *Cache) *Selector {
	return &Selector{store: store, cache: cache}
}

// SelectBest returns the champion trial for the study under the given
// spec, computing it if no valid cached result exists.
func (s *Selector) SelectBest(ctx context.Context, study models.Study, spec Spec) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctx = logging.ContextWithStudy(ctx, study.StudyHash)

	inputs := KeyInputs{
		Experiment: study.Name,
		StudyHash:  study.StudyHash,
		Spec:       spec,
	}
	if spec.Benchmark != nil {
		gate, err := spec.Benchmark.Hash()
		if err != nil {
			return nil, err
		}
		inputs.BenchmarkID = gate.String()
	}

	report, cached, err := s.cache.GetOrCompute(ctx, inputs, func(ctx context.Context) (*Report, error) {
		return s.compute(ctx, study, spec)
	})
	if err != nil {
		return nil, err
	}
	if cached {
		logging.CtxDebug(ctx).
			Str("experiment", study.Name).
			Msg("Selection served from cache")
	}
	return report, nil
}

func (s *Selector) compute(ctx context.Context, study models.Study, spec Spec) (*Report, error) {
	trials, err := s.store.ListTrials(ctx, study.StudyHash, studydb.TrialFilter{
		States: []models.TrialState{models.TrialComplete},
	})
	if err != nil {
		return nil, err
	}

	needLatency := spec.MaxLatencyMS > 0
	var latencies map[hashing.Hash]float64
	if needLatency {
		latencies, err = s.aggregateLatencies(ctx, study.StudyHash, spec)
		if err != nil {
			return nil, err
		}
	}

	report := &Report{
		StudyHash:  study.StudyHash,
		Experiment: study.Name,
		Direction:  study.Key.Direction,
		Strategy:   spec.Strategy,
		Candidates: make([]Candidate, 0, len(trials)),
		ComputedAt: time.Now().UTC(),
	}

	// championIdx indexes into report.Candidates; a pointer would go
	// stale as append reallocates.
	championIdx := -1
	var championTrial *models.Trial

	for i := range trials {
		trial := &trials[i]
		cand := Candidate{
			TrialHash:      trial.TrialHash,
			Number:         trial.Number,
			CheckpointPath: trial.CheckpointPath,
		}

		switch {
		case trial.Objective == nil:
			cand.Excluded = "no recorded objective"
		default:
			cand.Objective = *trial.Objective
			if needLatency {
				latency, ok := latencies[trial.TrialHash]
				if !ok {
					cand.Excluded = "not benchmarked under the required config"
					break
				}
				cand.LatencyMS = &latency
				if latency > spec.MaxLatencyMS {
					cand.Excluded = fmt.Sprintf("latency %.1fms exceeds ceiling %.1fms",
						latency, spec.MaxLatencyMS)
				}
			}
		}

		report.Candidates = append(report.Candidates, cand)
		if cand.Excluded != "" {
			continue
		}
		if championTrial == nil || betterTrial(report.Direction, trial, championTrial) {
			championTrial = trial
			championIdx = len(report.Candidates) - 1
		}
	}

	if championIdx < 0 {
		return nil, fmt.Errorf("%w: study %s has %d completed trials, none eligible",
			ErrNoCandidates, study.StudyHash.Short(hashing.ShortTokenLen), len(trials))
	}

	champion := report.Candidates[championIdx]
	report.Champion = &champion

	logging.CtxInfo(ctx).
		Str("trial", champion.TrialHash.Short(hashing.ShortTokenLen)).
		Float64("objective", champion.Objective).
		Int("candidates", len(report.Candidates)).
		Msg("Champion selected")
	return report, nil
}

// betterTrial mirrors the study store's best-by-objective ordering:
// objective per direction, then earlier completion, then lower trial
// number. Equal never beats the incumbent.
func betterTrial(d models.Direction, candidate, incumbent *models.Trial) bool {
	if *candidate.Objective != *incumbent.Objective {
		return d.Better(*candidate.Objective, *incumbent.Objective)
	}
	if ct, it := candidate.CompletedAt, incumbent.CompletedAt; ct != nil && it != nil {
		if !ct.Equal(*it) {
			return ct.Before(*it)
		}
	} else if ct != it {
		return ct != nil
	}
	return candidate.Number < incumbent.Number
}

// aggregateLatencies collapses every benchmark run recorded under the
// spec's gate config into one representative latency per trial.
func (s *Selector) aggregateLatencies(ctx context.Context, studyHash hashing.Hash, spec Spec) (map[hashing.Hash]float64, error) {
	gate, err := spec.Benchmark.Hash()
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListBenchmarks(ctx, studyHash)
	if err != nil {
		return nil, err
	}

	latencies := make(map[hashing.Hash]float64)
	for key, group := range benchmark.Group(records) {
		if key.ConfigHash != gate {
			continue
		}
		latency, err := benchmark.Aggregate(group, spec.Strategy)
		if errors.Is(err, benchmark.ErrNoSamples) {
			continue
		}
		if err != nil {
			return nil, err
		}
		latencies[key.TrialHash] = latency
	}
	return latencies, nil
}
