// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package benchmark

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

var benchBase = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

func benchConfig(batch int) models.BenchmarkConfig {
	return models.BenchmarkConfig{
		BatchSize:      batch,
		SequenceLength: 128,
		Device:         "cuda:0",
		Iterations:     100,
	}
}

func benchRecord(t *testing.T, trial string, cfg models.BenchmarkConfig, status models.BenchmarkStatus, at time.Time, latencies ...float64) models.BenchmarkRecord {
	t.Helper()

	configHash, err := cfg.Hash()
	if err != nil {
		t.Fatalf("BenchmarkConfig.Hash() error = %v", err)
	}
	return models.BenchmarkRecord{
		ID:          uuid.New(),
		StudyHash:   hashing.Hash("study-fixture"),
		TrialHash:   hashing.Hash(trial),
		ConfigHash:  configHash,
		Config:      cfg,
		LatenciesMS: latencies,
		Status:      status,
		RecordedAt:  at,
	}
}

func TestGroupCollectsRepeatedRuns(t *testing.T) {
	cfg := benchConfig(8)
	records := []models.BenchmarkRecord{
		benchRecord(t, "trial-a", cfg, models.BenchmarkFinished, benchBase, 100, 110),
		benchRecord(t, "trial-a", cfg, models.BenchmarkFinished, benchBase.Add(time.Hour), 105),
		benchRecord(t, "trial-a", cfg, models.BenchmarkPending, benchBase.Add(2*time.Hour)),
	}

	groups := Group(records)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	group := groups[KeyOf(records[0])]
	if len(group) != 3 {
		t.Errorf("group size = %d, want 3 (grouping keeps unfinished runs)", len(group))
	}
}

func TestGroupSplitsByConfigChange(t *testing.T) {
	records := []models.BenchmarkRecord{
		benchRecord(t, "trial-a", benchConfig(8), models.BenchmarkFinished, benchBase, 100),
		benchRecord(t, "trial-a", benchConfig(16), models.BenchmarkFinished, benchBase, 100),
	}
	if records[0].ConfigHash == records[1].ConfigHash {
		t.Fatal("config change did not change the config hash")
	}

	groups := Group(records)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 (a changed config is a new group)", len(groups))
	}
	for key, group := range groups {
		if len(group) != 1 {
			t.Errorf("group %s size = %d, want 1", key, len(group))
		}
	}
}

func TestGroupSplitsByTrial(t *testing.T) {
	cfg := benchConfig(8)
	records := []models.BenchmarkRecord{
		benchRecord(t, "trial-a", cfg, models.BenchmarkFinished, benchBase, 100),
		benchRecord(t, "trial-b", cfg, models.BenchmarkFinished, benchBase, 100),
	}

	if got := len(Group(records)); got != 2 {
		t.Errorf("groups = %d, want 2", got)
	}
}

func TestAlreadyBenchmarked(t *testing.T) {
	cfg8 := benchConfig(8)
	cfg16 := benchConfig(16)

	finished := benchRecord(t, "trial-a", cfg8, models.BenchmarkFinished, benchBase, 100)
	pending := benchRecord(t, "trial-a", cfg8, models.BenchmarkPending, benchBase)
	failed := benchRecord(t, "trial-a", cfg8, models.BenchmarkFailed, benchBase)
	otherConfig := benchRecord(t, "trial-a", cfg16, models.BenchmarkFinished, benchBase, 100)

	tests := []struct {
		name    string
		records []models.BenchmarkRecord
		key     GroupKey
		want    bool
	}{
		{"finished run in group", []models.BenchmarkRecord{pending, finished}, KeyOf(finished), true},
		{"only pending", []models.BenchmarkRecord{pending}, KeyOf(pending), false},
		{"only failed", []models.BenchmarkRecord{failed}, KeyOf(failed), false},
		{"finished under different config", []models.BenchmarkRecord{otherConfig}, KeyOf(finished), false},
		{"no records", nil, KeyOf(finished), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlreadyBenchmarked(tt.records, tt.key); got != tt.want {
				t.Errorf("AlreadyBenchmarked() = %v, want %v", got, tt.want)
			}
		})
	}
}
