// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

// UpsertTrial registers or refreshes a trial row. The semantic identity
// (hash, study, params, fold) never changes on conflict; lifecycle
// fields (state, objective, checkpoint path, completion time) do. Safe
// to call again after a crash with the same trial.
func (s *Store) UpsertTrial(ctx context.Context, trial models.Trial) error {
	if trial.TrialHash == "" || trial.StudyHash == "" {
		return fmt.Errorf("%w: trial row missing hash", hashing.ErrInvalidKey)
	}
	if !trial.State.Valid() {
		return fmt.Errorf("%w: trial %s has unknown state %q",
			hashing.ErrInvalidKey, trial.TrialHash.Short(8), trial.State)
	}

	params, err := json.Marshal(trial.Params)
	if err != nil {
		return fmt.Errorf("marshal trial params: %w", err)
	}

	createdAt := trial.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return s.withRetry(ctx, "upsert_trial", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO trials (trial_hash, study_hash, number, state, objective, params, fold,
			                    checkpoint_path, is_best, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trial_hash) DO UPDATE SET
				state           = excluded.state,
				objective       = excluded.objective,
				checkpoint_path = excluded.checkpoint_path,
				completed_at    = excluded.completed_at`,
			trial.TrialHash.String(), trial.StudyHash.String(), trial.Number,
			string(trial.State), nullFloat(trial.Objective), string(params), nullInt(trial.Fold),
			trial.CheckpointPath, boolToInt(trial.IsBest),
			createdAt.Format(time.RFC3339Nano), nullTime(trial.CompletedAt),
		)
		return err
	})
}

// CompleteTrial transitions a trial into a terminal state, recording the
// objective for completed trials. Pruned and failed trials keep a NULL
// objective.
func (s *Store) CompleteTrial(ctx context.Context, trialHash hashing.Hash, state models.TrialState, objective *float64) error {
	if !state.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal state", hashing.ErrInvalidKey, state)
	}
	if state != models.TrialComplete {
		objective = nil
	}

	return s.withRetry(ctx, "complete_trial", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE trials SET state = ?, objective = ?, completed_at = ?
			WHERE trial_hash = ?`,
			string(state), nullFloat(objective),
			time.Now().UTC().Format(time.RFC3339Nano), trialHash.String(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTrialNotFound, trialHash.Short(8))
		}
		return nil
	})
}

// GetTrial loads one trial row.
func (s *Store) GetTrial(ctx context.Context, trialHash hashing.Hash) (*models.Trial, error) {
	var trial *models.Trial
	err := s.withRetry(ctx, "get_trial", func() error {
		row := s.db.QueryRowContext(ctx, selectTrial+`WHERE trial_hash = ?`, trialHash.String())
		loaded, err := scanTrial(row)
		if err != nil {
			return err
		}
		trial = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trial, nil
}

// TrialFilter narrows ListTrials. Zero value lists everything.
type TrialFilter struct {
	States []models.TrialState
}

// ListTrials returns a study's trials ordered by number.
func (s *Store) ListTrials(ctx context.Context, studyHash hashing.Hash, filter TrialFilter) ([]models.Trial, error) {
	query := selectTrial + `WHERE study_hash = ?`
	args := []interface{}{studyHash.String()}

	if len(filter.States) > 0 {
		query += ` AND state IN (?` + repeatPlaceholder(len(filter.States)-1) + `)`
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY number`

	var trials []models.Trial
	err := s.withRetry(ctx, "list_trials", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer closeQuietly(rows)

		trials = trials[:0]
		for rows.Next() {
			trial, err := scanTrial(rows)
			if err != nil {
				return err
			}
			trials = append(trials, *trial)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return trials, nil
}

// SetBestTrial marks trialHash as the study's best, clearing any
// previous mark in the same transaction so exactly one trial is best at
// any time.
func (s *Store) SetBestTrial(ctx context.Context, studyHash, trialHash hashing.Hash) error {
	return s.withRetry(ctx, "set_best_trial", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE trials SET is_best = 0 WHERE study_hash = ? AND is_best = 1`,
				studyHash.String(),
			); err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE trials SET is_best = 1 WHERE trial_hash = ? AND study_hash = ?`,
				trialHash.String(), studyHash.String(),
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", ErrTrialNotFound, trialHash.Short(8))
			}
			return nil
		})
	})
}

// SetCheckpointPath updates only the checkpoint path, e.g. clearing it
// after the checkpoint directory has been reclaimed.
func (s *Store) SetCheckpointPath(ctx context.Context, trialHash hashing.Hash, path string) error {
	return s.withRetry(ctx, "set_checkpoint_path", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE trials SET checkpoint_path = ? WHERE trial_hash = ?`,
			path, trialHash.String(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTrialNotFound, trialHash.Short(8))
		}
		return nil
	})
}

// BestTrial returns the trial currently marked best.
func (s *Store) BestTrial(ctx context.Context, studyHash hashing.Hash) (*models.Trial, error) {
	var trial *models.Trial
	err := s.withRetry(ctx, "best_trial", func() error {
		row := s.db.QueryRowContext(ctx,
			selectTrial+`WHERE study_hash = ? AND is_best = 1`, studyHash.String())
		loaded, err := scanTrial(row)
		if errors.Is(err, ErrTrialNotFound) {
			return fmt.Errorf("%w: study %s has no best trial marked", ErrNoTrials, studyHash.Short(8))
		}
		if err != nil {
			return err
		}
		trial = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trial, nil
}

// BestByObjective recomputes the best trial from recorded objective
// values, ignoring the is_best flags. Ties resolve to the earliest
// completion, so re-running this on resume reproduces the winner that
// was chosen live ("equal never beats the incumbent").
func (s *Store) BestByObjective(ctx context.Context, studyHash hashing.Hash, direction models.Direction) (*models.Trial, error) {
	order := "ASC"
	if direction == models.DirectionMaximize {
		order = "DESC"
	}

	var trial *models.Trial
	err := s.withRetry(ctx, "best_by_objective", func() error {
		row := s.db.QueryRowContext(ctx,
			selectTrial+`WHERE study_hash = ? AND state = ? AND objective IS NOT NULL
			ORDER BY objective `+order+`, completed_at ASC, number ASC LIMIT 1`,
			studyHash.String(), string(models.TrialComplete))
		loaded, err := scanTrial(row)
		if errors.Is(err, ErrTrialNotFound) {
			return fmt.Errorf("%w: study %s has no completed trials with objectives",
				ErrNoTrials, studyHash.Short(8))
		}
		if err != nil {
			return err
		}
		trial = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trial, nil
}

const selectTrial = `
	SELECT trial_hash, study_hash, number, state, objective, params, fold,
	       checkpoint_path, is_best, created_at, completed_at
	FROM trials `

func scanTrial(sc scanner) (*models.Trial, error) {
	var (
		trial       models.Trial
		trialHash   string
		studyHash   string
		state       string
		objective   sql.NullFloat64
		params      string
		fold        sql.NullInt64
		isBest      int
		createdAt   string
		completedAt sql.NullString
	)
	err := sc.Scan(&trialHash, &studyHash, &trial.Number, &state, &objective,
		&params, &fold, &trial.CheckpointPath, &isBest, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trial row: %w", err)
	}

	trial.TrialHash = hashing.Hash(trialHash)
	trial.StudyHash = hashing.Hash(studyHash)
	trial.State = models.TrialState(state)
	trial.IsBest = isBest != 0

	if objective.Valid {
		v := objective.Float64
		trial.Objective = &v
	}
	if fold.Valid {
		v := int(fold.Int64)
		trial.Fold = &v
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &trial.Params); err != nil {
			return nil, fmt.Errorf("unmarshal trial params: %w", err)
		}
	}
	trial.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse trial created_at %q: %w", createdAt, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		parsed, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse trial completed_at %q: %w", completedAt.String, err)
		}
		trial.CompletedAt = &parsed
	}
	return &trial, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
