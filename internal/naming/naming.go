// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package naming builds the immutable identity context that every path
// resolution and tag generation starts from. A Context is assembled once
// per operation from the process type and the semantic hashes; callers
// never mutate one, they build a new one.
package naming

import (
	"fmt"
	"strconv"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
)

// Context captures everything addressing needs to know about the running
// process: what kind of run it is, where it executes, and which study and
// trial it belongs to. The zero value is invalid; use one of the
// constructors.
type Context struct {
	ProcessType models.ProcessType
	Environment string
	Model       string
	StudyHash   hashing.Hash
	TrialHash   hashing.Hash
	Fold        *int

	// StudyName is set only when the caller explicitly requests legacy
	// flat-name addressing. It never participates in hash-based paths.
	StudyName string
}

// NewTrialContext builds the context for a hyperparameter trial run.
func NewTrialContext(environment, model string, studyHash, trialHash hashing.Hash, fold *int) (Context, error) {
	c := Context{
		ProcessType: models.ProcessHPOTrial,
		Environment: environment,
		Model:       model,
		StudyHash:   studyHash,
		TrialHash:   trialHash,
		Fold:        fold,
	}
	return c, c.Validate()
}

// NewRefitContext builds the context for a refit run of a finished trial.
func NewRefitContext(environment, model string, studyHash, trialHash hashing.Hash) (Context, error) {
	c := Context{
		ProcessType: models.ProcessHPORefit,
		Environment: environment,
		Model:       model,
		StudyHash:   studyHash,
		TrialHash:   trialHash,
	}
	return c, c.Validate()
}

// NewFinalContext builds the context for a final training run outside any
// study.
func NewFinalContext(environment, model string) (Context, error) {
	c := Context{
		ProcessType: models.ProcessFinalTraining,
		Environment: environment,
		Model:       model,
	}
	return c, c.Validate()
}

// NewLegacyContext builds a context that addresses by flat study name
// instead of hashes. Only path resolution through the legacy scheme
// accepts it.
func NewLegacyContext(processType models.ProcessType, studyName string) (Context, error) {
	c := Context{
		ProcessType: processType,
		StudyName:   studyName,
	}
	if !processType.Valid() {
		return c, fmt.Errorf("%w: unknown process type %q", hashing.ErrInvalidKey, processType)
	}
	if studyName == "" {
		return c, fmt.Errorf("%w: legacy context requires a study name", hashing.ErrInvalidKey)
	}
	return c, nil
}

// Validate checks the context carries every field its process type needs.
func (c Context) Validate() error {
	if !c.ProcessType.Valid() {
		return fmt.Errorf("%w: unknown process type %q", hashing.ErrInvalidKey, c.ProcessType)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: naming context missing environment", hashing.ErrInvalidKey)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: naming context missing model", hashing.ErrInvalidKey)
	}

	switch c.ProcessType {
	case models.ProcessHPOTrial, models.ProcessHPORefit:
		if !c.StudyHash.Valid() {
			return fmt.Errorf("%w: naming context has invalid study hash %q", hashing.ErrInvalidKey, c.StudyHash)
		}
		if !c.TrialHash.Valid() {
			return fmt.Errorf("%w: naming context has invalid trial hash %q (study %s)",
				hashing.ErrInvalidKey, c.TrialHash, c.StudyToken())
		}
	case models.ProcessFinalTraining:
		// No study or trial identity required.
	}
	return nil
}

// StudyToken returns the short study token used in directory names and
// log fields. Empty when the context has no study hash.
func (c Context) StudyToken() string {
	if c.StudyHash == "" {
		return ""
	}
	return c.StudyHash.Short(hashing.ShortTokenLen)
}

// TrialToken returns the short trial token. Empty when the context has no
// trial hash.
func (c Context) TrialToken() string {
	if c.TrialHash == "" {
		return ""
	}
	return c.TrialHash.Short(hashing.ShortTokenLen)
}

// Tags renders the context as run tags for experiment tracking. Only
// fields present in the context appear; values are stable across resumes
// of the same trial.
func (c Context) Tags() map[string]string {
	tags := map[string]string{
		"process_type": string(c.ProcessType),
	}
	if c.Environment != "" {
		tags["environment"] = c.Environment
	}
	if c.Model != "" {
		tags["model"] = c.Model
	}
	if t := c.StudyToken(); t != "" {
		tags["study"] = t
	}
	if t := c.TrialToken(); t != "" {
		tags["trial"] = t
	}
	if c.Fold != nil {
		tags["fold"] = strconv.Itoa(*c.Fold)
	}
	if c.StudyName != "" {
		tags["study_name"] = c.StudyName
	}
	return tags
}
