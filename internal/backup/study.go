// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

// StudySyncResult aggregates the outcome of mirroring one study: the
// metadata store snapshot, every trial's sidecar document, and the best
// trial's checkpoint tree.
type StudySyncResult struct {
	OpID     uuid.UUID     `json:"op_id"`
	StudyDir string        `json:"study_dir"`
	Files    int           `json:"files"`
	Bytes    int64         `json:"bytes"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SyncStudy mirrors a study's durable state to the remote root. The
// metadata store is uploaded as a point-in-time snapshot image so the
// live database and its WAL are never copied mid-write. Sidecar
// documents and the best checkpoint tree go through the usual freshness
// checks, so repeated invocations upload only what changed.
//
// Failures of individual components are logged, counted, and folded
// into one ErrRemoteSync at the end; the parts that could be mirrored
// already were.
func (s *Synchronizer) SyncStudy(ctx context.Context, store *studydb.Store, studyHash hashing.Hash) (StudySyncResult, error) {
	start := time.Now()
	ctx = logging.ContextWithStudy(ctx, studyHash.String())

	studyDir := filepath.Dir(store.Path())
	result := StudySyncResult{OpID: uuid.New(), StudyDir: studyDir}

	if s.IsRemotePath(studyDir) {
		result.Duration = time.Since(start)
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("study_dir", studyDir).
			Msg("Skipping study sync: directory is already under the remote root")
		metrics.RecordSyncSkip("skip_remote")
		return result, nil
	}

	if err := s.syncStudyDB(ctx, store, studyDir, &result); err != nil {
		result.Failed++
		logging.CtxWarn(ctx).Err(err).Msg("Study db snapshot sync failed")
	}
	s.syncTrialMetas(ctx, studyDir, &result)
	s.syncBestCheckpoint(ctx, store, studyHash, &result)

	result.Duration = time.Since(start)
	logging.CtxInfo(ctx).
		Str("op_id", result.OpID.String()).
		Str("study_dir", studyDir).
		Int("files", result.Files).
		Int64("bytes", result.Bytes).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Study sync finished")

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d study components failed", ErrRemoteSync, result.Failed)
	}
	return result, nil
}

// RestoreStudy pulls a study directory back from the remote mirror: the
// metadata store image, trial sidecar documents, and whatever
// checkpoint trees earlier syncs uploaded. Call it before opening the
// study's metadata store; the restored study.db must not race an open
// connection.
func (s *Synchronizer) RestoreStudy(ctx context.Context, studyDir string) (SyncResult, error) {
	return s.RestoreFromRemote(ctx, studyDir)
}

// syncStudyDB snapshots the metadata store and uploads the image over
// the remote study.db. The snapshot is new by construction, so there is
// no freshness probe; the image is the authoritative current state.
func (s *Synchronizer) syncStudyDB(ctx context.Context, store *studydb.Store, studyDir string, result *StudySyncResult) error {
	tmpDir, err := os.MkdirTemp("", "archivarius-snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			logging.CtxDebug(ctx).Err(rmErr).Msg("Could not remove snapshot directory")
		}
	}()

	snapPath := filepath.Join(tmpDir, paths.StudyDBName)
	if err := store.SnapshotTo(ctx, snapPath); err != nil {
		return fmt.Errorf("snapshot study db: %w", err)
	}

	remoteDir, err := s.MapToRemote(studyDir)
	if err != nil {
		return err
	}
	remoteDB := filepath.Join(remoteDir, paths.StudyDBName)

	var bytes int64
	err = s.withRetry(ctx, "upload", func() error {
		n, upErr := s.client.Upload(ctx, snapPath, remoteDB)
		if upErr != nil {
			return upErr
		}
		bytes = n
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: upload study db image: %w", ErrRemoteSync, err)
	}

	result.Files++
	result.Bytes += bytes
	return nil
}

// syncTrialMetas mirrors every trial's sidecar document. A trial folder
// without a sidecar is skipped; the sidecar is written by the trial
// process and may simply not exist yet.
func (s *Synchronizer) syncTrialMetas(ctx context.Context, studyDir string, result *StudySyncResult) {
	entries, err := os.ReadDir(studyDir)
	if err != nil {
		result.Failed++
		logging.CtxWarn(ctx).Err(err).Str("study_dir", studyDir).Msg("Could not list study directory")
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := paths.IsTrialDirName(entry.Name()); !ok {
			continue
		}

		metaPath := paths.TrialMetaPath(filepath.Join(studyDir, entry.Name()))
		if _, err := os.Stat(metaPath); os.IsNotExist(err) {
			continue
		}

		res, err := s.SyncToRemote(ctx, metaPath)
		if err != nil {
			result.Failed++
			logging.CtxWarn(ctx).Err(err).Str("path", metaPath).Msg("Trial metadata sync failed")
			continue
		}
		result.Files += res.Files
		result.Bytes += res.Bytes
	}
}

// syncBestCheckpoint mirrors the current best trial's checkpoint tree.
// A study with no completed trials yet has nothing to mirror.
func (s *Synchronizer) syncBestCheckpoint(ctx context.Context, store *studydb.Store, studyHash hashing.Hash, result *StudySyncResult) {
	best, err := store.BestTrial(ctx, studyHash)
	if errors.Is(err, studydb.ErrNoTrials) {
		logging.CtxDebug(ctx).Msg("No best trial yet, skipping checkpoint sync")
		return
	}
	if err != nil {
		result.Failed++
		logging.CtxWarn(ctx).Err(err).Msg("Could not determine best trial for checkpoint sync")
		return
	}
	if best.CheckpointPath == "" {
		logging.CtxDebug(ctx).
			Str("trial", best.TrialHash.Short(hashing.ShortTokenLen)).
			Msg("Best trial has no checkpoint path, skipping checkpoint sync")
		return
	}

	ctx = logging.ContextWithTrial(ctx, best.TrialHash.String())
	res, err := s.SyncToRemote(ctx, best.CheckpointPath)
	if err != nil {
		result.Failed++
		logging.CtxWarn(ctx).Err(err).Str("path", best.CheckpointPath).Msg("Best checkpoint sync failed")
		return
	}
	result.Files += res.Files
	result.Bytes += res.Bytes
}
