// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

/* retention.go - Checkpoint retention sweep and final cleanup

The sweep computes its keep set in full before the first deletion so a
partial failure can never strand the study without its best checkpoint.
Keep reasons, strongest first:

  current_best   the trial marked best in the store
  not_terminal   the trial is still pending or running
  top_ranked     within the top RetainBest by objective
  recent         younger than KeepRecent
  minimum_count  within the newest MinCount

Everything else is eligible for deletion. Deletion is idempotent (a
missing directory is success, another process got there first) and
guarded by a final path comparison against the best checkpoint, which
backs up the keep set in case of a logic error upstream.
*/

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/studydb"
)

type keepReason string

const (
	keepBest    keepReason = "current_best"
	keepRunning keepReason = "not_terminal"
	keepTopRank keepReason = "top_ranked"
	keepRecent  keepReason = "recent"
	keepMinimum keepReason = "minimum_count"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Examined       int
	Kept           int
	Deleted        int
	AlreadyGone    int
	Failed         int
	DryRun         int
	BytesReclaimed int64
}

// Sweep applies the retention policy to every checkpoint the study
// knows about. Returns an error only when the study store itself is
// unreadable; individual deletion failures are counted and logged.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	ctx = logging.ContextWithStudy(ctx, m.study.StudyHash.String())
	var result SweepResult

	trials, err := m.store.ListTrials(ctx, m.study.StudyHash, studydb.TrialFilter{})
	if err != nil {
		metrics.RecordRetentionSweep(err)
		return result, err
	}

	bestPath := ""
	best, err := m.store.BestTrial(ctx, m.study.StudyHash)
	if err != nil && !errors.Is(err, studydb.ErrNoTrials) {
		metrics.RecordRetentionSweep(err)
		return result, err
	}
	if best != nil {
		bestPath = best.CheckpointPath
	}

	keep := m.computeKeepSet(trials, time.Now().UTC())
	for _, trial := range trials {
		if trial.CheckpointPath == "" {
			continue
		}
		result.Examined++
		if _, kept := keep[trial.TrialHash]; kept {
			result.Kept++
			continue
		}
		m.deleteCheckpoint(ctx, &result, trial, bestPath)
	}

	metrics.RecordRetentionSweep(nil)
	return result, nil
}

// FinalCleanup removes every checkpoint except the best trial's once a
// study has finished. The best mark is recomputed from recorded
// objectives first, so a stale mark cannot doom the real winner.
// Retention guards for rank, age, and count do not apply here; only the
// best survives.
func (m *Manager) FinalCleanup(ctx context.Context) (SweepResult, error) {
	ctx = logging.ContextWithStudy(ctx, m.study.StudyHash.String())
	var result SweepResult

	best, err := m.reconcileBest(ctx)
	if errors.Is(err, studydb.ErrNoTrials) {
		logging.CtxInfo(ctx).Msg("Final cleanup skipped, study has no completed trials")
		return result, nil
	}
	if err != nil {
		return result, err
	}

	trials, err := m.store.ListTrials(ctx, m.study.StudyHash, studydb.TrialFilter{})
	if err != nil {
		return result, err
	}

	for _, trial := range trials {
		if trial.CheckpointPath == "" {
			continue
		}
		result.Examined++
		switch {
		case trial.TrialHash == best.TrialHash:
			result.Kept++
		case !trial.State.Terminal():
			// A fold still training can outlive study completion;
			// its checkpoint falls to a later sweep.
			result.Kept++
		default:
			m.deleteCheckpoint(ctx, &result, trial, best.CheckpointPath)
		}
	}

	logging.CtxInfo(ctx).
		Str("best_trial", best.TrialHash.Short(8)).
		Int("deleted", result.Deleted).
		Int("kept", result.Kept).
		Int("failed", result.Failed).
		Int64("bytes_reclaimed", result.BytesReclaimed).
		Msg("Final cleanup finished")
	return result, nil
}

// PreviewEntry describes one checkpoint's fate under the current policy.
type PreviewEntry struct {
	TrialHash hashing.Hash `json:"trial_hash"`
	Number    int          `json:"number"`
	Path      string       `json:"path"`
	Keep      bool         `json:"keep"`
	Reason    string       `json:"reason"`
}

// RetentionPreview reports what a sweep would keep and delete without
// touching the filesystem.
func (m *Manager) RetentionPreview(ctx context.Context) ([]PreviewEntry, error) {
	trials, err := m.store.ListTrials(ctx, m.study.StudyHash, studydb.TrialFilter{})
	if err != nil {
		return nil, err
	}

	keep := m.computeKeepSet(trials, time.Now().UTC())
	var entries []PreviewEntry
	for _, trial := range trials {
		if trial.CheckpointPath == "" {
			continue
		}
		entry := PreviewEntry{
			TrialHash: trial.TrialHash,
			Number:    trial.Number,
			Path:      trial.CheckpointPath,
		}
		if reason, kept := keep[trial.TrialHash]; kept {
			entry.Keep = true
			entry.Reason = string(reason)
		} else {
			entry.Reason = "eligible_for_deletion"
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// computeKeepSet decides which checkpoints survive, before any deletion
// happens. The first reason assigned to a trial wins.
func (m *Manager) computeKeepSet(trials []models.Trial, now time.Time) map[hashing.Hash]keepReason {
	keep := make(map[hashing.Hash]keepReason)
	mark := func(hash hashing.Hash, reason keepReason) {
		if _, ok := keep[hash]; !ok {
			keep[hash] = reason
		}
	}

	var withCheckpoint, ranked []models.Trial
	for _, trial := range trials {
		if trial.CheckpointPath == "" {
			continue
		}
		withCheckpoint = append(withCheckpoint, trial)
		if trial.IsBest {
			mark(trial.TrialHash, keepBest)
		}
		if !trial.State.Terminal() {
			mark(trial.TrialHash, keepRunning)
		}
		if trial.HasObjective() {
			ranked = append(ranked, trial)
		}
	}

	// Rank by objective, ties resolved by completion order so the trial
	// that reached the value first outranks a later equal.
	sort.SliceStable(ranked, func(i, j int) bool {
		return trialFinished(ranked[i]).Before(trialFinished(ranked[j]))
	})
	direction := m.study.Key.Direction
	sort.SliceStable(ranked, func(i, j int) bool {
		return direction.Better(*ranked[i].Objective, *ranked[j].Objective)
	})
	for i := 0; i < len(ranked) && i < m.policy.RetainBest; i++ {
		mark(ranked[i].TrialHash, keepTopRank)
	}

	if m.policy.KeepRecent > 0 {
		cutoff := now.Add(-m.policy.KeepRecent)
		for _, trial := range withCheckpoint {
			if trialFinished(trial).After(cutoff) {
				mark(trial.TrialHash, keepRecent)
			}
		}
	}

	if m.policy.MinCount > 0 {
		newest := append([]models.Trial(nil), withCheckpoint...)
		sort.SliceStable(newest, func(i, j int) bool {
			return trialFinished(newest[i]).After(trialFinished(newest[j]))
		})
		for i := 0; i < len(newest) && i < m.policy.MinCount; i++ {
			mark(newest[i].TrialHash, keepMinimum)
		}
	}

	return keep
}

// deleteCheckpoint removes one trial's checkpoint directory, guarded and
// idempotent. Outcomes land in result and in metrics; errors are logged,
// never returned.
func (m *Manager) deleteCheckpoint(ctx context.Context, result *SweepResult, trial models.Trial, bestPath string) {
	path := trial.CheckpointPath

	// The keep set already protects the best; this comparison is the
	// final authority right before the removal syscall.
	if bestPath != "" && filepath.Clean(path) == filepath.Clean(bestPath) {
		metrics.RecordCheckpointDeletion("skipped_best", 0)
		logging.CtxWarn(ctx).
			Str("trial", trial.TrialHash.Short(8)).
			Str("path", path).
			Msg("Refusing to delete the best checkpoint")
		result.Kept++
		return
	}

	if m.policy.DryRun {
		metrics.RecordCheckpointDeletion("dry_run", 0)
		logging.CtxInfo(ctx).
			Str("trial", trial.TrialHash.Short(8)).
			Str("path", path).
			Msg("Dry run, would delete checkpoint")
		result.DryRun++
		return
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Another process reclaimed it already.
		metrics.RecordCheckpointDeletion("already_gone", 0)
		result.AlreadyGone++
		m.clearCheckpointPath(ctx, trial)
		return
	}

	reclaimed := dirSize(path)
	if err := os.RemoveAll(path); err != nil {
		metrics.RecordCheckpointDeletion("failed", 0)
		result.Failed++
		logging.CtxWarn(ctx).
			Err(fmt.Errorf("%w: %v", ErrCleanup, err)).
			Str("trial", trial.TrialHash.Short(8)).
			Str("path", path).
			Msg("Checkpoint deletion failed")
		return
	}

	metrics.RecordCheckpointDeletion("deleted", reclaimed)
	result.Deleted++
	result.BytesReclaimed += reclaimed
	logging.CtxInfo(ctx).
		Str("trial", trial.TrialHash.Short(8)).
		Str("path", path).
		Int64("bytes", reclaimed).
		Msg("Checkpoint deleted")
	m.clearCheckpointPath(ctx, trial)
}

// clearCheckpointPath drops the stored path after the directory is gone
// so later sweeps skip the trial.
func (m *Manager) clearCheckpointPath(ctx context.Context, trial models.Trial) {
	if err := m.store.SetCheckpointPath(ctx, trial.TrialHash, ""); err != nil {
		logging.CtxWarn(ctx).Err(err).
			Str("trial", trial.TrialHash.Short(8)).
			Msg("Failed to clear checkpoint path after deletion")
	}
}

// trialFinished is the timestamp retention reasons about: completion
// when present, creation otherwise.
func trialFinished(trial models.Trial) time.Time {
	if trial.CompletedAt != nil {
		return *trial.CompletedAt
	}
	return trial.CreatedAt
}

// dirSize sums file sizes under path, best effort.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
