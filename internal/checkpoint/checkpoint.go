// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/studydb"
)

// ErrCleanup marks a checkpoint deletion failure. Deletion is
// best-effort, so callers log it and continue; it never aborts a trial
// or a study.
var ErrCleanup = errors.New("checkpoint cleanup failed")

// Policy controls which non-best checkpoints survive a retention sweep.
type Policy struct {
	// RetainBest keeps the top-N trials by objective. Minimum 1: the
	// current best is kept no matter what.
	RetainBest int

	// KeepRecent protects checkpoints younger than this age. Zero
	// disables the guard.
	KeepRecent time.Duration

	// MinCount keeps at least this many checkpoints regardless of rank
	// or age. Zero disables the guard.
	MinCount int

	// DryRun logs deletions without performing them.
	DryRun bool
}

func (p Policy) withDefaults() Policy {
	if p.RetainBest < 1 {
		p.RetainBest = 1
	}
	return p
}

// Manager applies checkpoint lifecycle decisions for one study. It holds
// no state of its own: every decision reads the durable study store, so
// concurrent trial processes and restarts all converge on the same best
// mark.
type Manager struct {
	store  *studydb.Store
	study  models.Study
	policy Policy
}

// NewManager builds a lifecycle manager for the given study.
func NewManager(store *studydb.Store, study models.Study, policy Policy) *Manager {
	return &Manager{store: store, study: study, policy: policy.withDefaults()}
}

// Policy returns the retention policy in effect.
func (m *Manager) Policy() Policy { return m.policy }

// Register durably records a trial's checkpoint location. Called when
// training writes the checkpoint, before the trial outcome is known.
func (m *Manager) Register(ctx context.Context, trial models.Trial) error {
	if trial.CheckpointPath == "" {
		return fmt.Errorf("%w: trial %s registered without a checkpoint path",
			hashing.ErrInvalidKey, trial.TrialHash.Short(8))
	}
	if err := m.store.UpsertTrial(ctx, trial); err != nil {
		return err
	}

	ctx = logging.ContextWithTrial(ctx, trial.TrialHash.String())
	logging.CtxDebug(ctx).Str("path", trial.CheckpointPath).Msg("Checkpoint registered")
	return nil
}

// HandleTrialCompletion records a finished trial and re-evaluates the
// best mark. Promotion is durable before any deletion: when the new
// trial wins, the mark moves in the store first, and only then does the
// demoted checkpoint become eligible for the retention sweep.
//
// Safe to call again for the same trial after a crash; the whole
// sequence is idempotent.
func (m *Manager) HandleTrialCompletion(ctx context.Context, trial models.Trial) error {
	ctx = logging.ContextWithStudy(ctx, m.study.StudyHash.String())
	ctx = logging.ContextWithTrial(ctx, trial.TrialHash.String())

	if trial.StudyHash != m.study.StudyHash {
		return fmt.Errorf("%w: trial %s belongs to study %s, manager owns %s",
			hashing.ErrInvalidKey, trial.TrialHash.Short(8),
			trial.StudyHash.Short(8), m.study.StudyHash.Short(8))
	}
	if !trial.State.Terminal() {
		return fmt.Errorf("%w: trial %s reported completion in non-terminal state %q",
			hashing.ErrInvalidKey, trial.TrialHash.Short(8), trial.State)
	}
	if trial.CompletedAt == nil {
		now := time.Now().UTC()
		trial.CompletedAt = &now
	}

	if err := m.store.UpsertTrial(ctx, trial); err != nil {
		return err
	}

	if _, err := m.reconcileBest(ctx); err != nil && !errors.Is(err, studydb.ErrNoTrials) {
		return err
	}

	// Retention is best-effort: a failed deletion must not fail the
	// completion that triggered it.
	result, err := m.Sweep(ctx)
	if err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("Retention sweep failed after trial completion")
		return nil
	}
	if result.Deleted > 0 || result.Failed > 0 {
		logging.CtxDebug(ctx).
			Int("deleted", result.Deleted).
			Int("failed", result.Failed).
			Int64("bytes_reclaimed", result.BytesReclaimed).
			Msg("Retention applied after trial completion")
	}
	return nil
}

// InitializeBestFromStudy rebuilds the best mark from recorded objective
// values on resume. The durable objective history is authoritative;
// on-disk checkpoint state may be stale after an interrupted run.
// Returns studydb.ErrNoTrials when no completed trial has an objective
// yet.
func (m *Manager) InitializeBestFromStudy(ctx context.Context) (*models.Trial, error) {
	ctx = logging.ContextWithStudy(ctx, m.study.StudyHash.String())

	winner, err := m.reconcileBest(ctx)
	if errors.Is(err, studydb.ErrNoTrials) {
		logging.CtxDebug(ctx).Msg("No completed trials with objectives, best mark left unset")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	logging.CtxInfo(ctx).
		Str("best_trial", winner.TrialHash.Short(8)).
		Float64("objective", *winner.Objective).
		Msg("Best trial initialized from study records")
	return winner, nil
}

// Best returns the trial currently marked best in the durable store.
func (m *Manager) Best(ctx context.Context) (*models.Trial, error) {
	return m.store.BestTrial(ctx, m.study.StudyHash)
}

// reconcileBest recomputes the winner from recorded objectives and
// repairs the durable mark if it disagrees. Recomputing instead of
// comparing against an in-memory incumbent makes the outcome independent
// of completion order and of which process observed which completion.
func (m *Manager) reconcileBest(ctx context.Context) (*models.Trial, error) {
	winner, err := m.store.BestByObjective(ctx, m.study.StudyHash, m.study.Key.Direction)
	if err != nil {
		return nil, err
	}

	marked, err := m.store.BestTrial(ctx, m.study.StudyHash)
	if err != nil && !errors.Is(err, studydb.ErrNoTrials) {
		return nil, err
	}
	if marked != nil && marked.TrialHash == winner.TrialHash {
		return winner, nil
	}

	if err := m.store.SetBestTrial(ctx, m.study.StudyHash, winner.TrialHash); err != nil {
		return nil, fmt.Errorf("mark best trial %s: %w", winner.TrialHash.Short(8), err)
	}
	winner.IsBest = true
	metrics.RecordBestTransition()

	event := logging.CtxInfo(ctx).
		Str("best_trial", winner.TrialHash.Short(8)).
		Float64("objective", *winner.Objective)
	if marked != nil {
		event = event.Str("previous", marked.TrialHash.Short(8))
	}
	event.Msg("Best trial updated")
	return winner, nil
}
