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

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

// seedStudy inserts the fixture study and returns it.
func seedStudy(t *testing.T, store *Store) models.Study {
	t.Helper()
	study := testStudy(t)
	if err := store.EnsureStudy(context.Background(), study); err != nil {
		t.Fatalf("EnsureStudy() error = %v", err)
	}
	return study
}

func TestUpsertTrialRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	fold := 2
	trial := testTrial(t, study, 7, 0.001)
	trial.Fold = &fold
	trial.CheckpointPath = "/data/hpo/dev/bert-base/study-x/trial-y/checkpoint"

	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	got, err := store.GetTrial(ctx, trial.TrialHash)
	if err != nil {
		t.Fatalf("GetTrial() error = %v", err)
	}
	if got.Number != 7 {
		t.Errorf("Number = %d, want 7", got.Number)
	}
	if got.State != models.TrialRunning {
		t.Errorf("State = %q, want %q", got.State, models.TrialRunning)
	}
	if got.Objective != nil {
		t.Errorf("Objective = %v, want nil for running trial", *got.Objective)
	}
	if got.Fold == nil || *got.Fold != 2 {
		t.Errorf("Fold = %v, want 2", got.Fold)
	}
	if got.CheckpointPath != trial.CheckpointPath {
		t.Errorf("CheckpointPath = %q, want %q", got.CheckpointPath, trial.CheckpointPath)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
	// JSON round trip turns all numbers into float64.
	if got.Params["lr"] != 0.001 {
		t.Errorf("Params[lr] = %v, want 0.001", got.Params["lr"])
	}
	if got.Params["batch_size"] != float64(32) {
		t.Errorf("Params[batch_size] = %v, want 32", got.Params["batch_size"])
	}
}

func TestUpsertTrialResume(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	trial := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}

	// The same trial re-registered after a crash: lifecycle fields move,
	// identity fields stay.
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resumed := trial
	resumed.State = models.TrialComplete
	resumed.Objective = floatPtr(0.42)
	resumed.CheckpointPath = "/data/checkpoints/final"
	resumed.CompletedAt = &completedAt
	resumed.Number = 999 // identity field, must not move on conflict

	if err := store.UpsertTrial(ctx, resumed); err != nil {
		t.Fatalf("UpsertTrial() resume error = %v", err)
	}

	got, err := store.GetTrial(ctx, trial.TrialHash)
	if err != nil {
		t.Fatalf("GetTrial() error = %v", err)
	}
	if got.State != models.TrialComplete {
		t.Errorf("State = %q, want %q", got.State, models.TrialComplete)
	}
	if got.Objective == nil || *got.Objective != 0.42 {
		t.Errorf("Objective = %v, want 0.42", got.Objective)
	}
	if got.CheckpointPath != "/data/checkpoints/final" {
		t.Errorf("CheckpointPath = %q, want updated path", got.CheckpointPath)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completedAt)
	}
	if got.Number != 1 {
		t.Errorf("Number = %d, want original 1 (identity is immutable)", got.Number)
	}
}

func TestUpsertTrialDoesNotClearBestMark(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	trial := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}
	if err := store.SetBestTrial(ctx, study.StudyHash, trial.TrialHash); err != nil {
		t.Fatalf("SetBestTrial() error = %v", err)
	}

	// Re-registering the trial (IsBest defaults to false) must not
	// clobber the mark: is_best is owned by SetBestTrial.
	if err := store.UpsertTrial(ctx, trial); err != nil {
		t.Fatalf("UpsertTrial() second call error = %v", err)
	}

	best, err := store.BestTrial(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("BestTrial() error = %v", err)
	}
	if best.TrialHash != trial.TrialHash {
		t.Errorf("BestTrial = %s, want %s", best.TrialHash.Short(8), trial.TrialHash.Short(8))
	}
}

func TestUpsertTrialValidation(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	t.Run("missing hash", func(t *testing.T) {
		trial := testTrial(t, study, 1, 0.01)
		trial.TrialHash = ""
		if err := store.UpsertTrial(ctx, trial); !errors.Is(err, hashing.ErrInvalidKey) {
			t.Errorf("UpsertTrial() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("unknown state", func(t *testing.T) {
		trial := testTrial(t, study, 1, 0.01)
		trial.State = "exploded"
		if err := store.UpsertTrial(ctx, trial); !errors.Is(err, hashing.ErrInvalidKey) {
			t.Errorf("UpsertTrial() error = %v, want ErrInvalidKey", err)
		}
	})
}

func TestCompleteTrial(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	t.Run("complete records objective", func(t *testing.T) {
		trial := testTrial(t, study, 1, 0.01)
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}

		if err := store.CompleteTrial(ctx, trial.TrialHash, models.TrialComplete, floatPtr(0.37)); err != nil {
			t.Fatalf("CompleteTrial() error = %v", err)
		}

		got, err := store.GetTrial(ctx, trial.TrialHash)
		if err != nil {
			t.Fatalf("GetTrial() error = %v", err)
		}
		if got.State != models.TrialComplete {
			t.Errorf("State = %q, want %q", got.State, models.TrialComplete)
		}
		if got.Objective == nil || *got.Objective != 0.37 {
			t.Errorf("Objective = %v, want 0.37", got.Objective)
		}
		if got.CompletedAt == nil {
			t.Error("CompletedAt should be set")
		}
		if !got.HasObjective() {
			t.Error("HasObjective() = false, want true")
		}
	})

	t.Run("pruned clears objective", func(t *testing.T) {
		trial := testTrial(t, study, 2, 0.02)
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}

		// An objective handed in alongside a pruned state is a caller
		// bug; the store must not record it.
		if err := store.CompleteTrial(ctx, trial.TrialHash, models.TrialPruned, floatPtr(0.1)); err != nil {
			t.Fatalf("CompleteTrial() error = %v", err)
		}

		got, err := store.GetTrial(ctx, trial.TrialHash)
		if err != nil {
			t.Fatalf("GetTrial() error = %v", err)
		}
		if got.State != models.TrialPruned {
			t.Errorf("State = %q, want %q", got.State, models.TrialPruned)
		}
		if got.Objective != nil {
			t.Errorf("Objective = %v, want nil for pruned trial", *got.Objective)
		}
	})

	t.Run("non-terminal state rejected", func(t *testing.T) {
		trial := testTrial(t, study, 3, 0.03)
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}

		err := store.CompleteTrial(ctx, trial.TrialHash, models.TrialRunning, nil)
		if !errors.Is(err, hashing.ErrInvalidKey) {
			t.Errorf("CompleteTrial(running) error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("unknown trial", func(t *testing.T) {
		err := store.CompleteTrial(ctx, hashing.Hash("deadbeefdeadbeef"), models.TrialFailed, nil)
		if !errors.Is(err, ErrTrialNotFound) {
			t.Errorf("CompleteTrial() error = %v, want ErrTrialNotFound", err)
		}
	})
}

func TestGetTrialNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTrial(context.Background(), hashing.Hash("deadbeef"))
	if !errors.Is(err, ErrTrialNotFound) {
		t.Errorf("GetTrial() error = %v, want ErrTrialNotFound", err)
	}
}

func TestListTrials(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	// Three trials in mixed states, inserted out of number order.
	rates := []struct {
		number int
		lr     float64
		state  models.TrialState
	}{
		{3, 0.03, models.TrialRunning},
		{1, 0.01, models.TrialComplete},
		{2, 0.02, models.TrialPruned},
	}
	for _, r := range rates {
		trial := testTrial(t, study, r.number, r.lr)
		trial.State = r.state
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial(#%d) error = %v", r.number, err)
		}
	}

	t.Run("all ordered by number", func(t *testing.T) {
		trials, err := store.ListTrials(ctx, study.StudyHash, TrialFilter{})
		if err != nil {
			t.Fatalf("ListTrials() error = %v", err)
		}
		if len(trials) != 3 {
			t.Fatalf("ListTrials() returned %d trials, want 3", len(trials))
		}
		for i, trial := range trials {
			if trial.Number != i+1 {
				t.Errorf("trials[%d].Number = %d, want %d", i, trial.Number, i+1)
			}
		}
	})

	t.Run("state filter", func(t *testing.T) {
		trials, err := store.ListTrials(ctx, study.StudyHash, TrialFilter{
			States: []models.TrialState{models.TrialComplete, models.TrialPruned},
		})
		if err != nil {
			t.Fatalf("ListTrials() error = %v", err)
		}
		if len(trials) != 2 {
			t.Fatalf("ListTrials() returned %d trials, want 2", len(trials))
		}
		for _, trial := range trials {
			if trial.State == models.TrialRunning {
				t.Errorf("running trial %s leaked through the filter", trial.TrialHash.Short(8))
			}
		}
	})

	t.Run("other study empty", func(t *testing.T) {
		trials, err := store.ListTrials(ctx, hashing.Hash("0000000000000000"), TrialFilter{})
		if err != nil {
			t.Fatalf("ListTrials() error = %v", err)
		}
		if len(trials) != 0 {
			t.Errorf("ListTrials() returned %d trials, want 0", len(trials))
		}
	})
}

func TestSetBestTrialSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	first := testTrial(t, study, 1, 0.01)
	second := testTrial(t, study, 2, 0.02)
	for _, trial := range []models.Trial{first, second} {
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}
	}

	if err := store.SetBestTrial(ctx, study.StudyHash, first.TrialHash); err != nil {
		t.Fatalf("SetBestTrial(first) error = %v", err)
	}
	if err := store.SetBestTrial(ctx, study.StudyHash, second.TrialHash); err != nil {
		t.Fatalf("SetBestTrial(second) error = %v", err)
	}

	// Exactly one trial carries the mark after the handover.
	trials, err := store.ListTrials(ctx, study.StudyHash, TrialFilter{})
	if err != nil {
		t.Fatalf("ListTrials() error = %v", err)
	}
	marked := 0
	for _, trial := range trials {
		if trial.IsBest {
			marked++
			if trial.TrialHash != second.TrialHash {
				t.Errorf("best mark on %s, want %s", trial.TrialHash.Short(8), second.TrialHash.Short(8))
			}
		}
	}
	if marked != 1 {
		t.Errorf("%d trials marked best, want exactly 1", marked)
	}
}

func TestSetBestTrialUnknownTrial(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	existing := testTrial(t, study, 1, 0.01)
	if err := store.UpsertTrial(ctx, existing); err != nil {
		t.Fatalf("UpsertTrial() error = %v", err)
	}
	if err := store.SetBestTrial(ctx, study.StudyHash, existing.TrialHash); err != nil {
		t.Fatalf("SetBestTrial() error = %v", err)
	}

	err := store.SetBestTrial(ctx, study.StudyHash, hashing.Hash("deadbeefdeadbeef"))
	if !errors.Is(err, ErrTrialNotFound) {
		t.Fatalf("SetBestTrial(unknown) error = %v, want ErrTrialNotFound", err)
	}

	// The failed handover rolled back: the previous mark survives.
	best, err := store.BestTrial(ctx, study.StudyHash)
	if err != nil {
		t.Fatalf("BestTrial() error = %v", err)
	}
	if best.TrialHash != existing.TrialHash {
		t.Errorf("best mark on %s after rollback, want %s",
			best.TrialHash.Short(8), existing.TrialHash.Short(8))
	}
}

func TestBestTrialNoneMarked(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	_, err := store.BestTrial(ctx, study.StudyHash)
	if !errors.Is(err, ErrNoTrials) {
		t.Errorf("BestTrial() error = %v, want ErrNoTrials", err)
	}
}

func TestBestByObjective(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	completed := func(number int, lr, objective float64, at time.Time) models.Trial {
		trial := testTrial(t, study, number, lr)
		trial.State = models.TrialComplete
		trial.Objective = &objective
		trial.CompletedAt = &at
		return trial
	}

	t10 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t11 := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	t12 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	trials := []models.Trial{
		completed(1, 0.01, 0.5, t10),
		completed(2, 0.02, 0.3, t11),
		completed(3, 0.03, 0.7, t12),
	}
	running := testTrial(t, study, 4, 0.04)
	trials = append(trials, running)
	for _, trial := range trials {
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial(#%d) error = %v", trial.Number, err)
		}
	}

	t.Run("minimize", func(t *testing.T) {
		best, err := store.BestByObjective(ctx, study.StudyHash, models.DirectionMinimize)
		if err != nil {
			t.Fatalf("BestByObjective() error = %v", err)
		}
		if best.Number != 2 {
			t.Errorf("best trial number = %d, want 2 (objective 0.3)", best.Number)
		}
	})

	t.Run("maximize", func(t *testing.T) {
		best, err := store.BestByObjective(ctx, study.StudyHash, models.DirectionMaximize)
		if err != nil {
			t.Fatalf("BestByObjective() error = %v", err)
		}
		if best.Number != 3 {
			t.Errorf("best trial number = %d, want 3 (objective 0.7)", best.Number)
		}
	})

	t.Run("tie resolves to earliest completion", func(t *testing.T) {
		tied := completed(5, 0.05, 0.3, t12)
		if err := store.UpsertTrial(ctx, tied); err != nil {
			t.Fatalf("UpsertTrial(#5) error = %v", err)
		}

		// Trial 2 reached 0.3 first; the later equal value must not
		// displace it.
		best, err := store.BestByObjective(ctx, study.StudyHash, models.DirectionMinimize)
		if err != nil {
			t.Fatalf("BestByObjective() error = %v", err)
		}
		if best.Number != 2 {
			t.Errorf("best trial number = %d, want 2 (earliest at tied objective)", best.Number)
		}
	})
}

func TestBestByObjectiveNoCompletedTrials(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	study := seedStudy(t, store)

	// Running and pruned trials never qualify.
	running := testTrial(t, study, 1, 0.01)
	pruned := testTrial(t, study, 2, 0.02)
	pruned.State = models.TrialPruned
	for _, trial := range []models.Trial{running, pruned} {
		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}
	}

	_, err := store.BestByObjective(ctx, study.StudyHash, models.DirectionMinimize)
	if !errors.Is(err, ErrNoTrials) {
		t.Errorf("BestByObjective() error = %v, want ErrNoTrials", err)
	}
}
