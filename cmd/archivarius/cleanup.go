// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/checkpoint"
	"github.com/tomtom215/archivarius/internal/hashing"
)

var (
	cleanupFinal  bool
	cleanupDryRun bool
	cleanupFormat string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [study...]",
	Short: "Apply the checkpoint retention policy",
	Long: `Apply the checkpoint retention policy to studies under the artifact
root. A regular cleanup keeps the best-ranked, recent, and minimum-count
checkpoints per the configured policy; --final keeps only the best
trial's checkpoint, for studies that have finished. The recorded best
checkpoint is never deleted. --dry-run reports what would happen
without touching the filesystem.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupFinal, "final", false,
		"Final cleanup: delete every checkpoint except the best trial's")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false,
		"Report planned deletions without performing them")
	cleanupCmd.Flags().StringVar(&cleanupFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(cleanupCmd)
}

// sweepOutcome mirrors a retention pass result for CLI output.
type sweepOutcome struct {
	Examined       int   `json:"examined"`
	Kept           int   `json:"kept"`
	Deleted        int   `json:"deleted"`
	AlreadyGone    int   `json:"already_gone"`
	Failed         int   `json:"failed"`
	DryRun         int   `json:"dry_run"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
}

func outcomeOf(r checkpoint.SweepResult) sweepOutcome {
	return sweepOutcome{
		Examined:       r.Examined,
		Kept:           r.Kept,
		Deleted:        r.Deleted,
		AlreadyGone:    r.AlreadyGone,
		Failed:         r.Failed,
		DryRun:         r.DryRun,
		BytesReclaimed: r.BytesReclaimed,
	}
}

// cleanupStudyReport is one study's share of a cleanup invocation.
type cleanupStudyReport struct {
	Study   string                    `json:"study"`
	Name    string                    `json:"name"`
	Dir     string                    `json:"dir"`
	Outcome sweepOutcome              `json:"outcome"`
	Preview []checkpoint.PreviewEntry `json:"preview,omitempty"`
}

// cleanupReport is the outcome of one cleanup invocation.
type cleanupReport struct {
	Final   bool                 `json:"final"`
	DryRun  bool                 `json:"dry_run"`
	Studies []cleanupStudyReport `json:"studies"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	policy := checkpoint.Policy{
		RetainBest: cfg.Checkpoint.RetainBest,
		KeepRecent: cfg.Checkpoint.KeepRecent,
		MinCount:   cfg.Checkpoint.MinCount,
		DryRun:     cfg.Checkpoint.DryRun || cleanupDryRun,
	}

	ctx := cmd.Context()
	selected, err := selectStudies(ctx, cfg, args)
	if err != nil {
		return err
	}

	report := cleanupReport{Final: cleanupFinal, DryRun: policy.DryRun}
	for _, ref := range selected {
		store, err := openStudyStore(ctx, cfg, ref.Dir)
		if err != nil {
			return err
		}

		mgr := checkpoint.NewManager(store, ref.Study, policy)
		entry := cleanupStudyReport{
			Study: ref.Study.StudyHash.Short(hashing.ShortTokenLen),
			Name:  ref.Study.Name,
			Dir:   ref.Dir,
		}

		var result checkpoint.SweepResult
		var runErr error
		if cleanupFinal {
			result, runErr = mgr.FinalCleanup(ctx)
		} else {
			if policy.DryRun {
				entry.Preview, runErr = mgr.RetentionPreview(ctx)
			}
			if runErr == nil {
				result, runErr = mgr.Sweep(ctx)
			}
		}
		closeErr := store.Close()
		if runErr != nil {
			return fmt.Errorf("cleanup of study %s: %w", entry.Study, runErr)
		}
		if closeErr != nil {
			return closeErr
		}

		entry.Outcome = outcomeOf(result)
		report.Studies = append(report.Studies, entry)
	}

	return emit(cleanupFormat, report, func() string { return formatCleanupHuman(report) })
}

func formatCleanupHuman(report cleanupReport) string {
	var b strings.Builder

	mode := "retention sweep"
	if report.Final {
		mode = "final cleanup"
	}
	if report.DryRun {
		mode += " (dry run)"
	}
	b.WriteString(fmt.Sprintf("Checkpoint %s across %d studies\n\n", mode, len(report.Studies)))

	var totals sweepOutcome
	for _, s := range report.Studies {
		b.WriteString(fmt.Sprintf("%s  %s\n", s.Study, s.Name))
		for _, p := range s.Preview {
			verdict := "delete"
			if p.Keep {
				verdict = "keep(" + p.Reason + ")"
			}
			b.WriteString(fmt.Sprintf("  trial %-4d %-24s %s\n", p.Number, verdict, p.Path))
		}
		b.WriteString(fmt.Sprintf("  examined=%d kept=%d deleted=%d dry_run=%d failed=%d bytes_reclaimed=%d\n",
			s.Outcome.Examined, s.Outcome.Kept, s.Outcome.Deleted,
			s.Outcome.DryRun, s.Outcome.Failed, s.Outcome.BytesReclaimed))

		totals.Examined += s.Outcome.Examined
		totals.Kept += s.Outcome.Kept
		totals.Deleted += s.Outcome.Deleted
		totals.DryRun += s.Outcome.DryRun
		totals.Failed += s.Outcome.Failed
		totals.BytesReclaimed += s.Outcome.BytesReclaimed
	}

	b.WriteString(fmt.Sprintf("\nTotal: examined=%d kept=%d deleted=%d dry_run=%d failed=%d bytes_reclaimed=%d\n",
		totals.Examined, totals.Kept, totals.Deleted, totals.DryRun, totals.Failed, totals.BytesReclaimed))
	return b.String()
}
