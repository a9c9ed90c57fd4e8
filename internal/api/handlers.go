// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/daemon"
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/selection"
	"github.com/tomtom215/archivarius/internal/studydb"
	"github.com/tomtom215/archivarius/internal/validation"
)

// Handler processes requests for the operational HTTP surface. Every
// collaborator except the artifact root is optional: a handler wired
// without the watcher or the loops simply reports those subsystems as
// absent, which keeps the API usable when the daemon runs with pieces
// disabled.
type Handler struct {
	root      string
	dbCfg     studydb.Config
	watcher   *daemon.Watcher
	syncLoop  *daemon.SyncLoop
	sweepLoop *daemon.SweepLoop
	cache     *selection.Cache
	startTime time.Time
	version   string
}

// NewHandler creates an API handler over the configured artifact root.
//
// watcher, syncLoop, sweepLoop, and cache may be nil when the
// corresponding subsystem is disabled; affected endpoints degrade
// rather than fail.
func NewHandler(cfg config.Config, watcher *daemon.Watcher, syncLoop *daemon.SyncLoop, sweepLoop *daemon.SweepLoop, cache *selection.Cache, version string) *Handler {
	return &Handler{
		root: cfg.Storage.Root,
		dbCfg: studydb.Config{
			BusyTimeout:    cfg.StudyDB.BusyTimeout,
			MaxRetries:     cfg.StudyDB.MaxRetries,
			RetryBaseDelay: cfg.StudyDB.RetryBaseDelay,
		},
		watcher:   watcher,
		syncLoop:  syncLoop,
		sweepLoop: sweepLoop,
		cache:     cache,
		startTime: time.Now(),
		version:   version,
	}
}

// validateRequest validates a request struct and translates failures
// into the envelope error format.
func validateRequest(v interface{}) *APIError {
	err := validation.ValidateStruct(v)
	if err == nil {
		return nil
	}
	ve := err.ToAPIError()
	return &APIError{Code: ve.Code, Message: ve.Message, Details: ve.Details}
}

// discoverStudies walks the artifact root for study directories.
func (h *Handler) discoverStudies() ([]string, error) {
	return daemon.DiscoverStudies(h.root)
}

// locateStudy resolves a full study hash to its directory and persisted
// record. Directory names carry only the short token, so a name match
// is confirmed against the store before it counts; a short-token
// collision just moves the scan along.
func (h *Handler) locateStudy(ctx context.Context, hash hashing.Hash) (string, *models.Study, error) {
	dirs, err := h.discoverStudies()
	if err != nil {
		return "", nil, err
	}

	name := paths.StudyDirName(hash)
	for _, dir := range dirs {
		if filepath.Base(dir) != name {
			continue
		}
		study, err := h.readStudy(ctx, dir, hash)
		if errors.Is(err, studydb.ErrStudyNotFound) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return dir, study, nil
	}
	return "", nil, studydb.ErrStudyNotFound
}

func (h *Handler) readStudy(ctx context.Context, studyDir string, hash hashing.Hash) (*models.Study, error) {
	store, err := studydb.Open(ctx, paths.StudyDBPath(studyDir), h.dbCfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.GetStudy(ctx, hash)
}
