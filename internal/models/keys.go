// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package models

import (
	"fmt"
	"strconv"

	"github.com/tomtom215/archivarius/internal/hashing"
)

// ProcessType classifies what kind of run an artifact belongs to.
type ProcessType string

const (
	// ProcessHPOTrial is a single hyperparameter assignment under evaluation.
	ProcessHPOTrial ProcessType = "hpo_trial"

	// ProcessHPORefit is a follow-up run reusing a trial's winning
	// hyperparameters on the expanded dataset.
	ProcessHPORefit ProcessType = "hpo_refit"

	// ProcessFinalTraining is the final training run outside any study.
	ProcessFinalTraining ProcessType = "final_training"
)

// Valid reports whether p is a known process type.
func (p ProcessType) Valid() bool {
	switch p {
	case ProcessHPOTrial, ProcessHPORefit, ProcessFinalTraining:
		return true
	default:
		return false
	}
}

// Direction is the optimization direction of a study objective.
type Direction string

const (
	DirectionMinimize Direction = "minimize"
	DirectionMaximize Direction = "maximize"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionMinimize || d == DirectionMaximize
}

// Better reports whether candidate beats incumbent under this direction.
// Equal values never beat the incumbent, so the first trial to reach a
// value wins ties regardless of completion order.
func (d Direction) Better(candidate, incumbent float64) bool {
	if d == DirectionMaximize {
		return candidate > incumbent
	}
	return candidate < incumbent
}

// StudyKey is the semantic identity of an HPO study. It is immutable once
// the study starts; its hash addresses the study folder and the study row
// in the metadata store.
type StudyKey struct {
	// Model is the target model name, e.g. "bert-base".
	Model string `json:"model"`

	// Objective is the metric being optimized, e.g. "val_loss".
	Objective string `json:"objective"`

	// Direction is the optimization direction for Objective.
	Direction Direction `json:"direction"`

	// SearchSpaceDigest identifies the hyperparameter search space
	// definition (a digest computed by the optimizer integration).
	SearchSpaceDigest string `json:"search_space_digest"`

	// DatasetFingerprint identifies the training dataset snapshot.
	DatasetFingerprint string `json:"dataset_fingerprint"`
}

// Validate checks that all required semantic fields are present.
func (k StudyKey) Validate() error {
	if k.Model == "" {
		return fmt.Errorf("%w: study key missing model", hashing.ErrInvalidKey)
	}
	if k.Objective == "" {
		return fmt.Errorf("%w: study key missing objective", hashing.ErrInvalidKey)
	}
	if !k.Direction.Valid() {
		return fmt.Errorf("%w: study key has invalid direction %q", hashing.ErrInvalidKey, k.Direction)
	}
	if k.SearchSpaceDigest == "" {
		return fmt.Errorf("%w: study key missing search space digest", hashing.ErrInvalidKey)
	}
	if k.DatasetFingerprint == "" {
		return fmt.Errorf("%w: study key missing dataset fingerprint", hashing.ErrInvalidKey)
	}
	return nil
}

// Hash derives the study address. Stable across process restarts: the hash
// depends only on the semantic fields.
func (k StudyKey) Hash() (hashing.Hash, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	return hashing.HashKey(hashing.Fields{
		"model":        k.Model,
		"objective":    k.Objective,
		"direction":    string(k.Direction),
		"search_space": k.SearchSpaceDigest,
		"dataset":      k.DatasetFingerprint,
	})
}

// TrialKey is the semantic identity of one trial attempt within a study:
// the study hash plus the concrete hyperparameter assignment. Re-running an
// identical assignment reuses the same hash, which is what makes resume
// idempotent.
type TrialKey struct {
	// StudyHash is the full hash of the owning study.
	StudyHash hashing.Hash `json:"study_hash"`

	// Params is the hyperparameter assignment under evaluation.
	Params map[string]interface{} `json:"params"`

	// Fold is the cross-validation fold index, when the trial runs one
	// fold per process. Nil when folds are not split out.
	Fold *int `json:"fold,omitempty"`
}

// Validate checks that all required semantic fields are present.
func (k TrialKey) Validate() error {
	if !k.StudyHash.Valid() {
		return fmt.Errorf("%w: trial key has invalid study hash %q", hashing.ErrInvalidKey, k.StudyHash)
	}
	if len(k.Params) == 0 {
		return fmt.Errorf("%w: trial key has no parameters", hashing.ErrInvalidKey)
	}
	return nil
}

// Hash derives the trial address from the study hash and the canonical
// parameter serialization.
func (k TrialKey) Hash() (hashing.Hash, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}

	// Parameter names are prefixed so an assignment can never collide
	// with the reserved study/fold fields.
	fields := make(hashing.Fields, len(k.Params)+2)
	for name, value := range k.Params {
		s, err := hashing.FieldValue(value)
		if err != nil {
			return "", fmt.Errorf("parameter %q: %w", name, err)
		}
		fields["param:"+name] = s
	}
	fields["study"] = k.StudyHash.String()
	if k.Fold != nil {
		fields["fold"] = strconv.Itoa(*k.Fold)
	}

	return hashing.HashKey(fields)
}
