// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

func testBenchmark(t *testing.T, study models.Study, trial models.Trial, batchSize int) models.BenchmarkRecord {
	t.Helper()

	config := models.BenchmarkConfig{
		BatchSize:      batchSize,
		SequenceLength: 128,
		Device:         "cuda:0",
		Iterations:     100,
	}
	configHash, err := config.Hash()
	if err != nil {
		t.Fatalf("BenchmarkConfig.Hash() error = %v", err)
	}
	return models.BenchmarkRecord{
		StudyHash:   study.StudyHash,
		TrialHash:   trial.TrialHash,
		ConfigHash:  configHash,
		Config:      config,
		LatenciesMS: []float64{12.5, 11.8, 13.1},
		Status:      models.BenchmarkFinished,
		RecordedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestInsertBenchmarkRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)
	trial := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	record := testBenchmark(t, study, trial, 8)
	if err := store.InsertBenchmark(ctx, record); err != nil {
		t.Fatalf("InsertBenchmark() error = %v", err)
	}

	records, err := store.ListBenchmarks(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("ListBenchmarks() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListBenchmarks() returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID == uuid.Nil {
		t.Error("ID should be assigned on insert")
	}
	if got.ConfigHash != record.ConfigHash {
		t.Errorf("ConfigHash = %s, want %s", got.ConfigHash.Short(8), record.ConfigHash.Short(8))
	}
	if got.Config != record.Config {
		t.Errorf("Config = %+v, want %+v", got.Config, record.Config)
	}
	if len(got.LatenciesMS) != 3 || got.LatenciesMS[0] != 12.5 {
		t.Errorf("LatenciesMS = %v, want %v", got.LatenciesMS, record.LatenciesMS)
	}
	if got.Status != models.BenchmarkFinished {
		t.Errorf("Status = %q, want %q", got.Status, models.BenchmarkFinished)
	}
	if !got.RecordedAt.Equal(record.RecordedAt) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, record.RecordedAt)
	}
	if !got.Usable() {
		t.Error("Usable() = false, want true for finished record with latencies")
	}
}

func TestInsertBenchmarkUpdatesByID(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)
	trial := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	// A pending record that later finishes keeps its row.
	record := testBenchmark(t, study, trial, 8)
	record.ID = uuid.New()
	record.Status = models.BenchmarkPending
	record.LatenciesMS = nil
	if err := store.InsertBenchmark(ctx, record); err != nil {
		t.Fatalf("InsertBenchmark(pending) error = %v", err)
	}

	record.Status = models.BenchmarkFinished
	record.LatenciesMS = []float64{10.0, 10.2}
	if err := store.InsertBenchmark(ctx, record); err != nil {
		t.Fatalf("InsertBenchmark(finished) error = %v", err)
	}

	records, err := store.ListBenchmarks(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("ListBenchmarks() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListBenchmarks() returned %d records, want 1 (same id)", len(records))
	}
	if records[0].Status != models.BenchmarkFinished {
		t.Errorf("Status = %q, want %q", records[0].Status, models.BenchmarkFinished)
	}
	if len(records[0].LatenciesMS) != 2 {
		t.Errorf("LatenciesMS = %v, want 2 samples", records[0].LatenciesMS)
	}
}

func TestInsertBenchmarkValidation(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)
	trial := testTrial(t, study, 1, 0.01)

	t.Run("missing hashes", func(t *testing.T) {
		record := testBenchmark(t, study, trial, 8)
		record.ConfigHash = ""
		if err := store.InsertBenchmark(ctx, record); !errors.Is(err, hashing.ErrInvalidKey) {
			t.Errorf("InsertBenchmark() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		record := testBenchmark(t, study, trial, 8)
		record.Status = "vanished"
		if err := store.InsertBenchmark(ctx, record); !errors.Is(err, hashing.ErrInvalidKey) {
			t.Errorf("InsertBenchmark() error = %v, want ErrInvalidKey", err)
		}
	})
}

func TestHasFinishedBenchmark(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)
	trial := testTrial(t, study, 1, 0.01)
	other := testTrial(t, study, 2, 0.02)
	for _, tr := range []models.Trial{trial, other} {
		if err := store.UpsertTrial(ctx, tr); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}
	}

	finished := testBenchmark(t, study, trial, 8)
	if err := store.InsertBenchmark(ctx, finished); err != nil {
		t.Fatalf("InsertBenchmark(finished) error = %v", err)
	}

	pending := testBenchmark(t, study, trial, 16)
	pending.Status = models.BenchmarkPending
	pending.LatenciesMS = nil
	if err := store.InsertBenchmark(ctx, pending); err != nil {
		t.Fatalf("InsertBenchmark(pending) error = %v", err)
	}

	tests := []struct {
		name       string
		trialHash  hashing.Hash
		configHash hashing.Hash
		want       bool
	}{
		{"finished record in group", trial.TrialHash, finished.ConfigHash, true},
		{"pending record does not count", trial.TrialHash, pending.ConfigHash, false},
		{"other trial same config", other.TrialHash, finished.ConfigHash, false},
		{"unknown config", trial.TrialHash, hashing.Hash("0000000000000000"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.HasFinishedBenchmark(ctx, study.StudyHash, tt.trialHash, tt.configHash)
			if err != nil {
				t.Fatalf("HasFinishedBenchmark() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasFinishedBenchmark() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListBenchmarksOrderedByTime(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)
	trial := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	// Inserted newest first; listed oldest first.
	later := testBenchmark(t, study, trial, 8)
	later.RecordedAt = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	earlier := testBenchmark(t, study, trial, 16)
	earlier.RecordedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for _, record := range []models.BenchmarkRecord{later, earlier} {
		if err := store.InsertBenchmark(ctx, record); err != nil {
			t.Fatalf("InsertBenchmark() error = %v", err)
		}
	}

	records, err := store.ListBenchmarks(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("ListBenchmarks() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ListBenchmarks() returned %d records, want 2", len(records))
	}
	if !records[0].RecordedAt.Before(records[1].RecordedAt) {
		t.Errorf("records out of order: %v then %v", records[0].RecordedAt, records[1].RecordedAt)
	}
}
