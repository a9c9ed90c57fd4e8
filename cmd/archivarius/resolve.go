// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/naming"
	"github.com/tomtom215/archivarius/internal/paths"
)

var (
	resolveProcessType string
	resolveModel       string
	resolveStudyHash   string
	resolveTrialHash   string
	resolveFold        int
	resolveLegacyName  string
	resolveStudyDir    bool
	resolveEnsure      bool
	resolveFormat      string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the artifact output path for a run",
	Long: `Resolve the deterministic artifact path for a training run from its
process type and semantic hashes. Training wrappers capture the printed
path as their output directory; resolution is pure, so every resume of
the same trial lands in the same place.`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveProcessType, "process-type", "",
		"Process type: hpo_trial, hpo_refit, or final_training (required)")
	resolveCmd.Flags().StringVar(&resolveModel, "model", "", "Model identifier, e.g. resnet50")
	resolveCmd.Flags().StringVar(&resolveStudyHash, "study-hash", "", "Full 64-hex study hash")
	resolveCmd.Flags().StringVar(&resolveTrialHash, "trial-hash", "", "Full 64-hex trial hash")
	resolveCmd.Flags().IntVar(&resolveFold, "fold", -1, "Cross-validation fold index (omit for no fold)")
	resolveCmd.Flags().StringVar(&resolveLegacyName, "legacy-study", "",
		"Resolve through the legacy flat-name layout for this study name")
	resolveCmd.Flags().BoolVar(&resolveStudyDir, "study-dir", false,
		"Resolve the study directory instead of the trial directory")
	resolveCmd.Flags().BoolVar(&resolveEnsure, "ensure", false, "Create the resolved directory")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	processType := models.ProcessType(resolveProcessType)
	if !processType.Valid() {
		return fmt.Errorf("--process-type must be one of hpo_trial, hpo_refit, final_training (got %q)",
			resolveProcessType)
	}

	resolver, err := paths.NewResolver(cfg.Storage.Root, resolverPatterns(cfg.Storage.Patterns))
	if err != nil {
		return err
	}

	// The hint carries exactly what the flags gave us; --legacy-study
	// opts into legacy addressing by omitting the naming context, and
	// scheme precedence lives in the resolver's strategy list.
	hint := paths.Hint{ProcessType: processType, StudyName: resolveLegacyName}
	if resolveLegacyName == "" {
		nctx, err := resolveContext(processType, cfg.Storage.Environment)
		if err != nil {
			return err
		}
		hint.Context = &nctx
	}

	var resolved paths.ResolvedPath
	if resolveStudyDir && hint.Context != nil {
		resolved, err = resolver.BuildStudyPath(*hint.Context)
	} else {
		resolved, err = resolver.Resolve(hint)
	}
	if err != nil {
		return err
	}

	if resolveEnsure {
		if err := paths.EnsureDir(resolved.Path); err != nil {
			return err
		}
	}

	return emit(resolveFormat, resolved, func() string {
		// Bare path on stdout so wrappers can capture it directly.
		return resolved.Path + "\n"
	})
}

// resolveContext assembles the naming context from the resolve flags.
func resolveContext(processType models.ProcessType, environment string) (naming.Context, error) {
	switch processType {
	case models.ProcessFinalTraining:
		return naming.NewFinalContext(environment, resolveModel)

	case models.ProcessHPOTrial, models.ProcessHPORefit:
		studyHash, err := hashing.ParseHash(resolveStudyHash)
		if err != nil {
			return naming.Context{}, fmt.Errorf("--study-hash: %w", err)
		}
		trialHash, err := hashing.ParseHash(resolveTrialHash)
		if err != nil {
			return naming.Context{}, fmt.Errorf("--trial-hash: %w", err)
		}
		if processType == models.ProcessHPORefit {
			return naming.NewRefitContext(environment, resolveModel, studyHash, trialHash)
		}
		var fold *int
		if resolveFold >= 0 {
			f := resolveFold
			fold = &f
		}
		return naming.NewTrialContext(environment, resolveModel, studyHash, trialHash, fold)

	default:
		return naming.Context{}, fmt.Errorf("unknown process type %q", processType)
	}
}

// resolverPatterns adapts the configured pattern map to the resolver's
// key type. An empty map selects the built-in templates.
func resolverPatterns(patterns map[string]string) map[models.ProcessType]string {
	if len(patterns) == 0 {
		return nil
	}
	out := make(map[models.ProcessType]string, len(patterns))
	for processType, tmpl := range patterns {
		out[models.ProcessType(processType)] = tmpl
	}
	return out
}
