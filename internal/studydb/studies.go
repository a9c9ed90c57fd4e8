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

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

// EnsureStudy inserts the study row if absent. The semantic key is
// immutable, so an existing row is left untouched; calling this on every
// trial start is the intended usage.
func (s *Store) EnsureStudy(ctx context.Context, study models.Study) error {
	if err := study.Key.Validate(); err != nil {
		return err
	}
	if study.StudyHash == "" {
		return fmt.Errorf("%w: study row missing hash", hashing.ErrInvalidKey)
	}

	createdAt := study.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return s.withRetry(ctx, "ensure_study", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO studies (study_hash, name, model, objective, direction, search_space, dataset, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(study_hash) DO NOTHING`,
			study.StudyHash.String(), study.Name,
			study.Key.Model, study.Key.Objective, string(study.Key.Direction),
			study.Key.SearchSpaceDigest, study.Key.DatasetFingerprint,
			createdAt.Format(time.RFC3339Nano),
		)
		return err
	})
}

// GetStudy loads one study row.
func (s *Store) GetStudy(ctx context.Context, studyHash hashing.Hash) (*models.Study, error) {
	var study *models.Study
	err := s.withRetry(ctx, "get_study", func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT study_hash, name, model, objective, direction, search_space, dataset, created_at
			FROM studies WHERE study_hash = ?`,
			studyHash.String(),
		)
		loaded, err := scanStudy(row)
		if err != nil {
			return err
		}
		study = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

// ListStudies returns all study rows ordered by creation time.
func (s *Store) ListStudies(ctx context.Context) ([]models.Study, error) {
	var studies []models.Study
	err := s.withRetry(ctx, "list_studies", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT study_hash, name, model, objective, direction, search_space, dataset, created_at
			FROM studies ORDER BY created_at`)
		if err != nil {
			return err
		}
		defer closeQuietly(rows)

		studies = studies[:0]
		for rows.Next() {
			study, err := scanStudy(rows)
			if err != nil {
				return err
			}
			studies = append(studies, *study)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return studies, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStudy(sc scanner) (*models.Study, error) {
	var (
		study     models.Study
		hash      string
		direction string
		createdAt string
	)
	err := sc.Scan(&hash, &study.Name,
		&study.Key.Model, &study.Key.Objective, &direction,
		&study.Key.SearchSpaceDigest, &study.Key.DatasetFingerprint, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan study row: %w", err)
	}

	study.StudyHash = hashing.Hash(hash)
	study.Key.Direction = models.Direction(direction)
	study.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse study created_at %q: %w", createdAt, err)
	}
	return &study, nil
}
