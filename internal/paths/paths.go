// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package paths resolves artifact directories from naming contexts. All
// resolution is pure: the same root, context, and pattern set always
// produce the same path, and nothing here touches the filesystem except
// the explicit EnsureDir helper.
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/naming"
)

// ErrPathResolution indicates a missing or invalid pattern configuration.
// It is fatal to the caller: resolution never falls back to the legacy
// scheme on its own.
var ErrPathResolution = errors.New("path resolution failed")

// Scheme identifies which addressing scheme produced a resolved path.
type Scheme string

const (
	// SchemeHash is the hash-addressed layout, current generation.
	SchemeHash Scheme = "v2-hash"

	// SchemeLegacy is the flat study-name layout kept for old studies.
	SchemeLegacy Scheme = "legacy"
)

// ResolvedPath is an absolute artifact path plus the scheme that built
// it. It is derived state: always recomputable, never persisted.
type ResolvedPath struct {
	Path   string
	Scheme Scheme
}

// String returns the filesystem path.
func (p ResolvedPath) String() string { return p.Path }

// Family returns the top-level directory segment grouping runs of the
// given process type. Refit artifacts live inside the trial folder they
// refit, so both HPO process types share one family.
func Family(p models.ProcessType) string {
	switch p {
	case models.ProcessHPOTrial, models.ProcessHPORefit:
		return "hpo"
	case models.ProcessFinalTraining:
		return "final"
	default:
		return string(p)
	}
}

// DefaultPatterns returns the pattern templates for the hash-addressed
// layout. Keys are process types, values are templates over the tokens
// {environment}, {model}, {study8}, {trial8}, and {fold_idx}.
func DefaultPatterns() map[models.ProcessType]string {
	return map[models.ProcessType]string{
		models.ProcessHPOTrial:      "{environment}/{model}/study-{study8}/trial-{trial8}",
		models.ProcessHPORefit:      "{environment}/{model}/study-{study8}/trial-{trial8}",
		models.ProcessFinalTraining: "{environment}/{model}/final",
	}
}

// Resolver turns naming contexts into artifact paths under a fixed root.
type Resolver struct {
	root     string
	patterns map[models.ProcessType]string
}

// NewResolver builds a resolver for root. A nil pattern map selects
// DefaultPatterns; a non-nil map is used exactly as given, so a process
// type it omits fails at resolution time rather than silently falling
// back.
func NewResolver(root string, patterns map[models.ProcessType]string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root directory is required", ErrPathResolution)
	}

	if patterns == nil {
		patterns = DefaultPatterns()
	}
	for pt, tmpl := range patterns {
		if !pt.Valid() {
			return nil, fmt.Errorf("%w: pattern configured for unknown process type %q", ErrPathResolution, pt)
		}
		if strings.TrimSpace(tmpl) == "" {
			return nil, fmt.Errorf("%w: empty pattern for process type %q", ErrPathResolution, pt)
		}
	}

	return &Resolver{root: filepath.Clean(root), patterns: patterns}, nil
}

// Root returns the resolver's root directory.
func (r *Resolver) Root() string { return r.root }

// BuildOutputPath resolves the artifact directory for ctx. Trial contexts
// always resolve to a trial folder even when the template only encodes
// the study folder; refit contexts additionally descend into the fixed
// refit subfolder.
func (r *Resolver) BuildOutputPath(ctx naming.Context) (ResolvedPath, error) {
	if err := ctx.Validate(); err != nil {
		return ResolvedPath{}, fmt.Errorf("%w: %v", ErrPathResolution, err)
	}

	tmpl, ok := r.patterns[ctx.ProcessType]
	if !ok {
		return ResolvedPath{}, fmt.Errorf("%w: no pattern for process type %q (study %s)",
			ErrPathResolution, ctx.ProcessType, ctx.StudyToken())
	}

	expanded, err := expand(tmpl, ctx)
	if err != nil {
		return ResolvedPath{}, err
	}

	switch ctx.ProcessType {
	case models.ProcessHPOTrial, models.ProcessHPORefit:
		// An under-specified template that stops at the study folder
		// would conflate the study root with the trial folder. Append
		// the trial segment whenever the expansion lacks it.
		if !strings.Contains(expanded, ctx.TrialToken()) {
			expanded = expanded + "/" + TrialDirName(ctx.TrialHash)
		}
		if ctx.ProcessType == models.ProcessHPORefit {
			expanded = expanded + "/" + RefitDirName
		}
	}

	return ResolvedPath{
		Path:   filepath.Join(r.root, Family(ctx.ProcessType), filepath.FromSlash(expanded)),
		Scheme: SchemeHash,
	}, nil
}

// BuildStudyPath resolves the study folder for ctx: the directory that
// holds study.db and the trial folders. The template for the context's
// process type must contain the study token.
func (r *Resolver) BuildStudyPath(ctx naming.Context) (ResolvedPath, error) {
	if err := ctx.Validate(); err != nil {
		return ResolvedPath{}, fmt.Errorf("%w: %v", ErrPathResolution, err)
	}

	tmpl, ok := r.patterns[ctx.ProcessType]
	if !ok {
		return ResolvedPath{}, fmt.Errorf("%w: no pattern for process type %q (study %s)",
			ErrPathResolution, ctx.ProcessType, ctx.StudyToken())
	}

	expanded, err := expand(tmpl, ctx)
	if err != nil {
		return ResolvedPath{}, err
	}

	studySeg := StudyDirName(ctx.StudyHash)
	segments := strings.Split(expanded, "/")
	end := -1
	for i, seg := range segments {
		if seg == studySeg {
			end = i
			break
		}
	}
	if end < 0 {
		return ResolvedPath{}, fmt.Errorf("%w: pattern %q has no study segment (study %s)",
			ErrPathResolution, tmpl, ctx.StudyToken())
	}

	rel := strings.Join(segments[:end+1], "/")
	return ResolvedPath{
		Path:   filepath.Join(r.root, Family(ctx.ProcessType), filepath.FromSlash(rel)),
		Scheme: SchemeHash,
	}, nil
}

// BuildLegacyPath resolves the flat name-addressed study folder. Callers
// opt into this explicitly by passing a study name; it is never used as
// a fallback when hash resolution fails.
func (r *Resolver) BuildLegacyPath(processType models.ProcessType, studyName string) (ResolvedPath, error) {
	if !processType.Valid() {
		return ResolvedPath{}, fmt.Errorf("%w: unknown process type %q", ErrPathResolution, processType)
	}
	if studyName == "" {
		return ResolvedPath{}, fmt.Errorf("%w: legacy resolution requires a study name", ErrPathResolution)
	}
	if strings.ContainsAny(studyName, `/\`) || strings.Contains(studyName, "..") {
		return ResolvedPath{}, fmt.Errorf("%w: study name %q must not contain path elements", ErrPathResolution, studyName)
	}

	return ResolvedPath{
		Path:   filepath.Join(r.root, Family(processType), studyName),
		Scheme: SchemeLegacy,
	}, nil
}

// expand substitutes every token in tmpl from ctx. A token that has no
// value in the context, or a token expand does not know, fails loudly.
func expand(tmpl string, ctx naming.Context) (string, error) {
	values := map[string]string{
		"environment": ctx.Environment,
		"model":       ctx.Model,
		"study8":      ctx.StudyToken(),
		"trial8":      ctx.TrialToken(),
		"fold_idx":    "",
	}
	if ctx.Fold != nil {
		values["fold_idx"] = strconv.Itoa(*ctx.Fold)
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			return "", fmt.Errorf("%w: unterminated token in pattern %q", ErrPathResolution, tmpl)
		}

		b.WriteString(rest[:open])
		token := rest[open+1 : open+closing]
		value, ok := values[token]
		if !ok {
			return "", fmt.Errorf("%w: unknown token {%s} in pattern %q", ErrPathResolution, token, tmpl)
		}
		if value == "" {
			return "", fmt.Errorf("%w: token {%s} has no value in this context (study %s)",
				ErrPathResolution, token, ctx.StudyToken())
		}
		b.WriteString(value)
		rest = rest[open+closing+1:]
	}

	return b.String(), nil
}
