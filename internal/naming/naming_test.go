// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package naming

import (
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

func testHashes(t *testing.T) (study, trial hashing.Hash) {
	t.Helper()
	study, err := hashing.HashKey(hashing.Fields{"model": "bert-base", "objective": "val_loss"})
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	trial, err = hashing.HashKey(hashing.Fields{"study": study.String(), "param:lr": "0.001"})
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	return study, trial
}

func TestNewTrialContext(t *testing.T) {
	study, trial := testHashes(t)

	ctx, err := NewTrialContext("prod", "bert-base", study, trial, nil)
	if err != nil {
		t.Fatalf("NewTrialContext() error = %v", err)
	}
	if ctx.ProcessType != models.ProcessHPOTrial {
		t.Errorf("ProcessType = %q, want %q", ctx.ProcessType, models.ProcessHPOTrial)
	}
	if got := ctx.StudyToken(); got != study.Short(8) {
		t.Errorf("StudyToken() = %q, want %q", got, study.Short(8))
	}
	if got := ctx.TrialToken(); got != trial.Short(8) {
		t.Errorf("TrialToken() = %q, want %q", got, trial.Short(8))
	}
}

func TestNewTrialContextValidation(t *testing.T) {
	study, trial := testHashes(t)

	tests := []struct {
		name               string
		environment, model string
		study, trial       hashing.Hash
	}{
		{"missing environment", "", "bert-base", study, trial},
		{"missing model", "prod", "", study, trial},
		{"missing study hash", "prod", "bert-base", "", trial},
		{"malformed study hash", "prod", "bert-base", "xyz", trial},
		{"missing trial hash", "prod", "bert-base", study, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrialContext(tt.environment, tt.model, tt.study, tt.trial, nil)
			if !errors.Is(err, hashing.ErrInvalidKey) {
				t.Errorf("NewTrialContext() error = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestNewTrialContextErrorNamesStudy(t *testing.T) {
	study, _ := testHashes(t)

	_, err := NewTrialContext("prod", "bert-base", study, "", nil)
	if err == nil {
		t.Fatal("NewTrialContext() = nil error, want error")
	}
	if !strings.Contains(err.Error(), study.Short(8)) {
		t.Errorf("error %q does not name the study token %q", err, study.Short(8))
	}
}

func TestNewFinalContext(t *testing.T) {
	ctx, err := NewFinalContext("prod", "bert-base")
	if err != nil {
		t.Fatalf("NewFinalContext() error = %v", err)
	}
	if ctx.StudyToken() != "" || ctx.TrialToken() != "" {
		t.Error("final training context should carry no study or trial tokens")
	}

	if _, err := NewFinalContext("", "bert-base"); err == nil {
		t.Error("NewFinalContext() with empty environment = nil error, want error")
	}
}

func TestNewLegacyContext(t *testing.T) {
	ctx, err := NewLegacyContext(models.ProcessHPOTrial, "sweep-2026-01")
	if err != nil {
		t.Fatalf("NewLegacyContext() error = %v", err)
	}
	if ctx.StudyName != "sweep-2026-01" {
		t.Errorf("StudyName = %q, want %q", ctx.StudyName, "sweep-2026-01")
	}

	if _, err := NewLegacyContext(models.ProcessHPOTrial, ""); err == nil {
		t.Error("NewLegacyContext() with empty name = nil error, want error")
	}
	if _, err := NewLegacyContext("batch", "sweep"); err == nil {
		t.Error("NewLegacyContext() with bad process type = nil error, want error")
	}
}

func TestContextTags(t *testing.T) {
	study, trial := testHashes(t)
	fold := 2

	ctx, err := NewTrialContext("staging", "bert-base", study, trial, &fold)
	if err != nil {
		t.Fatalf("NewTrialContext() error = %v", err)
	}

	tags := ctx.Tags()
	want := map[string]string{
		"process_type": "hpo_trial",
		"environment":  "staging",
		"model":        "bert-base",
		"study":        study.Short(8),
		"trial":        trial.Short(8),
		"fold":         "2",
	}
	if len(tags) != len(want) {
		t.Fatalf("Tags() returned %d entries, want %d: %v", len(tags), len(want), tags)
	}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("Tags()[%q] = %q, want %q", k, tags[k], v)
		}
	}
}

func TestContextTagsOmitAbsent(t *testing.T) {
	ctx, err := NewFinalContext("prod", "bert-base")
	if err != nil {
		t.Fatalf("NewFinalContext() error = %v", err)
	}
	tags := ctx.Tags()
	for _, k := range []string{"study", "trial", "fold", "study_name"} {
		if _, ok := tags[k]; ok {
			t.Errorf("Tags() includes %q for a final training context", k)
		}
	}
}
