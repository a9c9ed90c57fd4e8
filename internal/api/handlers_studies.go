// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

// StudySummary is one element of the study listing: the persisted
// record plus where it lives on disk.
type StudySummary struct {
	models.Study
	Path string `json:"path"`
}

// StudyDetail is the body of GET /api/v1/studies/{hash}.
type StudyDetail struct {
	models.Study
	Path        string         `json:"path"`
	BestTrial   *models.Trial  `json:"best_trial,omitempty"`
	TotalTrials int            `json:"total_trials"`
	TrialCounts map[string]int `json:"trial_counts"`
}

// ListStudies handles GET /api/v1/studies. It walks the artifact root
// and reads every study store it finds. A store that cannot be read is
// logged and skipped so one corrupt study doesn't hide the rest.
func (h *Handler) ListStudies(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	dirs, err := h.discoverStudies()
	if err != nil {
		rw.InternalError(err)
		return
	}

	summaries := make([]StudySummary, 0, len(dirs))
	for _, dir := range dirs {
		studies, err := h.readStudies(ctx, dir)
		if err != nil {
			logging.CtxWarn(ctx).Err(err).
				Str("study_dir", dir).
				Msg("Skipping unreadable study store")
			continue
		}
		for _, study := range studies {
			summaries = append(summaries, StudySummary{Study: study, Path: dir})
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
		}
		return summaries[i].StudyHash < summaries[j].StudyHash
	})

	rw.SuccessWithCount(summaries, len(summaries))
}

// GetStudy handles GET /api/v1/studies/{hash}. The hash must be the
// full 64-character form; short directory tokens are not accepted here.
func (h *Handler) GetStudy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	req := StudyRequest{StudyHash: chi.URLParam(r, "hash")}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr)
		return
	}
	hash, err := hashing.ParseHash(req.StudyHash)
	if err != nil {
		rw.BadRequest("invalid study hash")
		return
	}

	dir, study, err := h.locateStudy(ctx, hash)
	if errors.Is(err, studydb.ErrStudyNotFound) {
		rw.NotFound("study not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}

	detail, err := h.studyDetail(ctx, dir, study)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(detail)
}

// ListTrials handles GET /api/v1/studies/{hash}/trials. An optional
// ?state= query restricts the listing to one lifecycle state.
func (h *Handler) ListTrials(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	req := TrialsRequest{
		StudyHash: chi.URLParam(r, "hash"),
		State:     r.URL.Query().Get("state"),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr)
		return
	}
	hash, err := hashing.ParseHash(req.StudyHash)
	if err != nil {
		rw.BadRequest("invalid study hash")
		return
	}

	dir, _, err := h.locateStudy(ctx, hash)
	if errors.Is(err, studydb.ErrStudyNotFound) {
		rw.NotFound("study not found")
		return
	}
	if err != nil {
		rw.InternalError(err)
		return
	}

	var filter studydb.TrialFilter
	if req.State != "" {
		filter.States = []models.TrialState{models.TrialState(req.State)}
	}

	trials, err := h.readTrials(ctx, dir, hash, filter)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessWithCount(trials, len(trials))
}

func (h *Handler) readStudies(ctx context.Context, studyDir string) ([]models.Study, error) {
	store, err := studydb.Open(ctx, paths.StudyDBPath(studyDir), h.dbCfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.ListStudies(ctx)
}

func (h *Handler) readTrials(ctx context.Context, studyDir string, hash hashing.Hash, filter studydb.TrialFilter) ([]models.Trial, error) {
	store, err := studydb.Open(ctx, paths.StudyDBPath(studyDir), h.dbCfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.ListTrials(ctx, hash, filter)
}

func (h *Handler) studyDetail(ctx context.Context, studyDir string, study *models.Study) (*StudyDetail, error) {
	store, err := studydb.Open(ctx, paths.StudyDBPath(studyDir), h.dbCfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	stats, err := store.Stats(ctx, study.StudyHash)
	if err != nil {
		return nil, err
	}

	detail := &StudyDetail{
		Study:       *study,
		Path:        studyDir,
		TotalTrials: stats.Trials,
		TrialCounts: stats.ByState,
	}

	best, err := store.BestTrial(ctx, study.StudyHash)
	switch {
	case errors.Is(err, studydb.ErrNoTrials):
		// No best marked yet; the detail just omits it.
	case err != nil:
		return nil, err
	default:
		detail.BestTrial = best
	}

	return detail, nil
}
