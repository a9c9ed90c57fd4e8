// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package paths

import (
	"fmt"

	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/naming"
)

// Hint carries whatever addressing information the caller actually has
// for one resolution attempt. Exactly one scheme's inputs should be
// set; when both are, hash addressing wins. Nothing is ever inferred
// from the filesystem to fill a missing field.
type Hint struct {
	ProcessType models.ProcessType
	Context     *naming.Context // hash addressing
	StudyName   string          // explicit legacy addressing
}

// Strategy resolves hints under one addressing scheme. ok is false when
// the hint does not carry the scheme's inputs, and resolution moves to
// the next strategy. A strategy that applies but cannot build the path
// returns its error, which stops the chain: a broken hash pattern is
// never rescued by the legacy scheme.
type Strategy func(hint Hint) (resolved ResolvedPath, ok bool, err error)

// strategies is the resolver's ordered strategy list. Precedence is
// fixed here and nowhere else: hash addressing first, legacy only when
// the hint names a study explicitly.
func (r *Resolver) strategies() []Strategy {
	return []Strategy{
		r.resolveHash,
		r.resolveLegacy,
	}
}

// Resolve walks the strategy list and returns the first applicable
// strategy's result. A hint that no strategy applies to fails with
// ErrPathResolution.
func (r *Resolver) Resolve(hint Hint) (ResolvedPath, error) {
	for _, strategy := range r.strategies() {
		resolved, ok, err := strategy(hint)
		if err != nil {
			return ResolvedPath{}, err
		}
		if ok {
			return resolved, nil
		}
	}
	return ResolvedPath{}, fmt.Errorf("%w: hint carries neither a naming context nor a legacy study name",
		ErrPathResolution)
}

func (r *Resolver) resolveHash(hint Hint) (ResolvedPath, bool, error) {
	if hint.Context == nil {
		return ResolvedPath{}, false, nil
	}
	resolved, err := r.BuildOutputPath(*hint.Context)
	if err != nil {
		return ResolvedPath{}, false, err
	}
	return resolved, true, nil
}

func (r *Resolver) resolveLegacy(hint Hint) (ResolvedPath, bool, error) {
	if hint.StudyName == "" {
		return ResolvedPath{}, false, nil
	}
	resolved, err := r.BuildLegacyPath(hint.ProcessType, hint.StudyName)
	if err != nil {
		return ResolvedPath{}, false, err
	}
	return resolved, true, nil
}
