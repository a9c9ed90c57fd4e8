// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/archivarius/internal/backup"
	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

func floatPtr(v float64) *float64 { return &v }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func studyFixture(t *testing.T) models.Study {
	t.Helper()

	key := models.StudyKey{
		Model:              "resnet50",
		Objective:          "val_acc",
		Direction:          models.DirectionMaximize,
		SearchSpaceDigest:  "space-v1",
		DatasetFingerprint: "ds-2026-02",
	}
	hash, err := key.Hash()
	if err != nil {
		t.Fatalf("StudyKey.Hash() error = %v", err)
	}
	return models.Study{
		StudyHash: hash,
		Name:      "resnet-sweep",
		Key:       key,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func trialFixture(t *testing.T, study models.Study, number int, lr float64) models.Trial {
	t.Helper()

	key := models.TrialKey{
		StudyHash: study.StudyHash,
		Params:    map[string]interface{}{"lr": lr, "batch_size": 32},
	}
	hash, err := key.Hash()
	if err != nil {
		t.Fatalf("TrialKey.Hash() error = %v", err)
	}
	return models.Trial{
		TrialHash: hash,
		StudyHash: study.StudyHash,
		Number:    number,
		State:     models.TrialRunning,
		Params:    key.Params,
		CreatedAt: time.Date(2026, 3, 1, 10, number, 0, 0, time.UTC),
	}
}

// trialSpec describes one complete trial to seed into a study.
type trialSpec struct {
	number    int
	lr        float64
	objective float64
	best      bool
}

// seedStudy builds a study directory under parent with one complete
// trial per spec, each carrying a sidecar and a one-file checkpoint.
// The metadata store is closed before returning; the loops open it
// themselves the way they would for any study found on disk.
func seedStudy(t *testing.T, parent string, specs ...trialSpec) (string, []models.Trial) {
	t.Helper()
	ctx := context.Background()

	study := studyFixture(t)
	studyDir := filepath.Join(parent, paths.StudyDirName(study.StudyHash))
	if err := paths.EnsureDir(studyDir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	store, err := studydb.Open(ctx, paths.StudyDBPath(studyDir), studydb.Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.EnsureStudy(ctx, study); err != nil {
		t.Fatalf("EnsureStudy() error = %v", err)
	}

	var trials []models.Trial
	for _, spec := range specs {
		trial := trialFixture(t, study, spec.number, spec.lr)
		trialDir := filepath.Join(studyDir, paths.TrialDirName(trial.TrialHash))
		ckptDir := paths.CheckpointPath(trialDir)

		writeFile(t, paths.TrialMetaPath(trialDir), fmt.Sprintf(`{"trial_number":%d}`, spec.number))
		writeFile(t, filepath.Join(ckptDir, "model.pt"), "weights")

		completedAt := time.Date(2026, 3, 1, 11, spec.number, 0, 0, time.UTC)
		trial.State = models.TrialComplete
		trial.Objective = floatPtr(spec.objective)
		trial.CheckpointPath = ckptDir
		trial.CompletedAt = &completedAt

		if err := store.UpsertTrial(ctx, trial); err != nil {
			t.Fatalf("UpsertTrial() error = %v", err)
		}
		if spec.best {
			if err := store.SetBestTrial(ctx, study.StudyHash, trial.TrialHash); err != nil {
				t.Fatalf("SetBestTrial() error = %v", err)
			}
		}
		trials = append(trials, trial)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return studyDir, trials
}

func newTestSynchronizer(t *testing.T, localRoot, remoteRoot string) *backup.Synchronizer {
	t.Helper()
	s, err := backup.NewMirrorSynchronizer(config.BackupConfig{RemoteRoot: remoteRoot, RetryDelay: time.Millisecond}, localRoot)
	if err != nil {
		t.Fatalf("NewMirrorSynchronizer() error = %v", err)
	}
	return s
}

func TestSyncLoopRunNow(t *testing.T) {
	root := t.TempDir()
	remoteRoot := filepath.Join(t.TempDir(), "mirror")

	studyDir, trials := seedStudy(t, filepath.Join(root, "dev", "resnet50"),
		trialSpec{number: 1, lr: 0.001, objective: 0.91, best: true})

	loop := NewSyncLoop(root, NewStudyQueue(), newTestSynchronizer(t, root, remoteRoot),
		config.Config{Watcher: config.WatcherConfig{SyncInterval: time.Hour}})
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer loop.Stop()

	if err := loop.RunNow(); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}

	rel, err := filepath.Rel(root, studyDir)
	if err != nil {
		t.Fatalf("Rel() error = %v", err)
	}
	remoteStudyDir := filepath.Join(remoteRoot, rel)
	if _, err := os.Stat(paths.StudyDBPath(remoteStudyDir)); err != nil {
		t.Errorf("remote db image missing: %v", err)
	}
	remoteTrialDir := filepath.Join(remoteStudyDir, paths.TrialDirName(trials[0].TrialHash))
	if _, err := os.Stat(paths.TrialMetaPath(remoteTrialDir)); err != nil {
		t.Errorf("remote sidecar missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(remoteTrialDir, paths.CheckpointDir, "model.pt")); err != nil {
		t.Errorf("remote checkpoint missing: %v", err)
	}

	stats := loop.GetStats()
	if stats.LastSynced != 1 {
		t.Errorf("LastSynced = %d, want 1", stats.LastSynced)
	}
	if stats.LastFailed != 0 {
		t.Errorf("LastFailed = %d, want 0", stats.LastFailed)
	}
	if stats.LastRun.IsZero() {
		t.Error("LastRun was not recorded")
	}
}

func TestSyncLoopQueueDriven(t *testing.T) {
	root := t.TempDir()
	remoteRoot := filepath.Join(t.TempDir(), "mirror")

	studyDir, _ := seedStudy(t, filepath.Join(root, "prod", "bert"),
		trialSpec{number: 1, lr: 0.001, objective: 0.88, best: true})

	queue := NewStudyQueue()
	loop := NewSyncLoop(root, queue, newTestSynchronizer(t, root, remoteRoot),
		config.Config{Watcher: config.WatcherConfig{SyncInterval: time.Hour}})
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer loop.Stop()

	queue.Enqueue(studyDir)

	rel, err := filepath.Rel(root, studyDir)
	if err != nil {
		t.Fatalf("Rel() error = %v", err)
	}
	remoteDB := paths.StudyDBPath(filepath.Join(remoteRoot, rel))
	if !waitFor(t, 3*time.Second, func() bool {
		_, err := os.Stat(remoteDB)
		return err == nil
	}) {
		t.Fatal("queued study never reached the mirror")
	}
}

func TestSyncLoopLifecycle(t *testing.T) {
	root := t.TempDir()
	loop := NewSyncLoop(root, NewStudyQueue(),
		newTestSynchronizer(t, root, filepath.Join(t.TempDir(), "mirror")), config.Config{})

	if loop.IsRunning() {
		t.Fatal("new loop reports running")
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !loop.IsRunning() {
		t.Fatal("started loop reports stopped")
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	loop.Stop()
	if loop.IsRunning() {
		t.Fatal("stopped loop reports running")
	}
	loop.Stop()
}

func TestSyncLoopRunNowRequiresStart(t *testing.T) {
	root := t.TempDir()
	loop := NewSyncLoop(root, NewStudyQueue(),
		newTestSynchronizer(t, root, filepath.Join(t.TempDir(), "mirror")), config.Config{})

	if err := loop.RunNow(); err == nil {
		t.Fatal("RunNow() before Start() = nil, want error")
	}
}
