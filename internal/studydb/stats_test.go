// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"testing"

	"github.com/tomtom215/archivarius/internal/models"
)

func TestStatsEmptyStudy(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	stats, err := store.Stats(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Trials != 0 {
		t.Errorf("Trials = %d, want 0", stats.Trials)
	}
	if stats.ByState == nil {
		t.Error("ByState should be non-nil for an empty study")
	}
	if len(stats.ByState) != 0 {
		t.Errorf("ByState = %v, want empty", stats.ByState)
	}
	if stats.Benchmarks != 0 {
		t.Errorf("Benchmarks = %d, want 0", stats.Benchmarks)
	}
}

func TestStatsCountsByState(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	states := []models.TrialState{
		models.TrialComplete, models.TrialComplete, models.TrialComplete,
		models.TrialRunning,
		models.TrialPruned,
	}
	var firstTrial models.Trial
	for i, state := range states {
		trial := testTrial(t, study, i, 0.001*float64(i+1))
		trial.State = state
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial(%d) error = %v", i, err)
		}
		if i == 0 {
			firstTrial = trial
		}
	}

	for _, batchSize := range []int{8, 16} {
		if err := store.InsertBenchmark(ctx, testBenchmark(t, study, firstTrial, batchSize)); err != nil {
			t.Fatalf("InsertBenchmark(batch=%d) error = %v", batchSize, err)
		}
	}

	stats, err := store.Stats(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Trials != 5 {
		t.Errorf("Trials = %d, want 5", stats.Trials)
	}
	if stats.ByState["complete"] != 3 {
		t.Errorf("ByState[complete] = %d, want 3", stats.ByState["complete"])
	}
	if stats.ByState["running"] != 1 {
		t.Errorf("ByState[running] = %d, want 1", stats.ByState["running"])
	}
	if stats.ByState["pruned"] != 1 {
		t.Errorf("ByState[pruned] = %d, want 1", stats.ByState["pruned"])
	}
	if stats.Benchmarks != 2 {
		t.Errorf("Benchmarks = %d, want 2", stats.Benchmarks)
	}
}

func TestStatsScopedToStudy(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	other := testStudy(t)
	other.Key.Model = "bert-large"
	hash, err := other.Key.Hash()
	if err != nil {
		t.Fatalf("StudyKey.Hash() error = %v", err)
	}
	other.StudyHash = hash
	other.Name = "bert-large-sweep"
	if err := store.EnsureStudy(ctx, other); err != nil {
		t.Fatalf("EnsureStudy() error = %v", err)
	}

	trial := testTrial(t, study, 1, 0.01)
	trial.State = models.TrialComplete
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	stats, err := store.Stats(ctx, other.StudyHash)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Trials != 0 {
		t.Errorf("Trials = %d, want 0 for the other study", stats.Trials)
	}
}
