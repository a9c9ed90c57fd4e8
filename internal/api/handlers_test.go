// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

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

func studyFixture(t *testing.T, model, name string) models.Study {
	t.Helper()

	key := models.StudyKey{
		Model:              model,
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
		Name:      name,
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
// trial per spec. The metadata store is closed before returning; the
// handlers open stores themselves per request.
func seedStudy(t *testing.T, parent string, study models.Study, specs ...trialSpec) string {
	t.Helper()
	ctx := context.Background()

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
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return studyDir
}

func newTestHandler(root string) *Handler {
	cfg := config.Config{}
	cfg.Storage.Root = root
	return NewHandler(cfg, nil, nil, nil, nil, "test")
}

func newTestRouter(h *Handler) http.Handler {
	return NewRouter(h, NewMiddleware(config.ServerConfig{})).SetupChi()
}

func doGet(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// testEnvelope mirrors APIResponse with raw data so tests can decode
// the payload into the concrete type under test.
type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal() error = %v, body %q", err, rec.Body.String())
	}
	return env
}
