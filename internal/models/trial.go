// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package models

import (
	"fmt"
	"time"

	"github.com/tomtom215/archivarius/internal/hashing"
)

// TrialState tracks a trial through its lifecycle. Transitions are
// monotonic: pending -> running -> one of the terminal states.
type TrialState string

const (
	TrialPending  TrialState = "pending"
	TrialRunning  TrialState = "running"
	TrialComplete TrialState = "complete"
	TrialPruned   TrialState = "pruned"
	TrialFailed   TrialState = "failed"
)

// Valid reports whether s is a known trial state.
func (s TrialState) Valid() bool {
	switch s {
	case TrialPending, TrialRunning, TrialComplete, TrialPruned, TrialFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state from which a trial cannot
// progress further.
func (s TrialState) Terminal() bool {
	switch s {
	case TrialComplete, TrialPruned, TrialFailed:
		return true
	}
	return false
}

// Study is the persisted record of an optimization study. Name is the
// human-readable label chosen by the operator; identity is always the
// hash of Key.
type Study struct {
	StudyHash hashing.Hash `json:"study_hash"`
	Name      string       `json:"name"`
	Key       StudyKey     `json:"key"`
	CreatedAt time.Time    `json:"created_at"`
}

// Trial is the persisted record of one hyperparameter evaluation within
// a study.
type Trial struct {
	TrialHash      hashing.Hash           `json:"trial_hash"`
	StudyHash      hashing.Hash           `json:"study_hash"`
	Number         int                    `json:"number"`
	State          TrialState             `json:"state"`
	Objective      *float64               `json:"objective,omitempty"`
	Params         map[string]interface{} `json:"params"`
	Fold           *int                   `json:"fold,omitempty"`
	CheckpointPath string                 `json:"checkpoint_path,omitempty"`
	IsBest         bool                   `json:"is_best"`
	CreatedAt      time.Time              `json:"created_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// HasObjective reports whether the trial finished with a usable
// objective value. Pruned and failed trials never carry one.
func (t *Trial) HasObjective() bool {
	return t.State == TrialComplete && t.Objective != nil
}

// TrialMetaSchemaVersion is written into every trial_meta.json sidecar.
// Readers reject documents with a newer major version.
const TrialMetaSchemaVersion = 2

// TrialMeta is the sidecar document written next to each trial's
// checkpoint directory. It carries everything needed to reconstruct the
// trial's identity without the study database: the full study key, the
// parameter assignment, and the outcome.
type TrialMeta struct {
	SchemaVersion int                    `json:"schema_version"`
	StudyHash     hashing.Hash           `json:"study_hash"`
	StudyKey      StudyKey               `json:"study_key"`
	TrialHash     hashing.Hash           `json:"trial_hash"`
	TrialNumber   int                    `json:"trial_number"`
	Params        map[string]interface{} `json:"params"`
	Fold          *int                   `json:"fold,omitempty"`
	State         TrialState             `json:"state"`
	Objective     *float64               `json:"objective,omitempty"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// Validate checks that a decoded sidecar is internally consistent and
// from a schema generation this build understands.
func (m *TrialMeta) Validate() error {
	if m.SchemaVersion <= 0 || m.SchemaVersion > TrialMetaSchemaVersion {
		return fmt.Errorf("unsupported trial meta schema version %d", m.SchemaVersion)
	}
	if err := m.StudyKey.Validate(); err != nil {
		return err
	}
	if !m.State.Valid() {
		return fmt.Errorf("unknown trial state %q", m.State)
	}
	if m.StudyHash == "" || m.TrialHash == "" {
		return fmt.Errorf("trial meta missing study or trial hash")
	}
	return nil
}
