// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/benchmark"
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/selection"
	"github.com/tomtom215/archivarius/internal/studydb"
)

var (
	studyFormat string

	bestStrategy     string
	bestMaxLatencyMS float64
	bestBatchSize    int
	bestSeqLen       int
	bestDevice       string
	bestIterations   int
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Inspect studies under the artifact root",
}

var studyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all studies",
	Args:  cobra.NoArgs,
	RunE:  runStudyList,
}

var studyShowCmd = &cobra.Command{
	Use:   "show <study>",
	Short: "Show one study's trials and best mark",
	Long: `Show a study's identity, trial counts by state, and recorded best
trial. The study may be named by full hash, short token, or name.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudyShow,
}

var studyBestCmd = &cobra.Command{
	Use:   "best <study>",
	Short: "Select the champion trial of a study",
	Long: `Select the champion trial: the completed trial with the best recorded
objective, optionally gated by a benchmark latency ceiling. The
selection report lists every candidate and why the losers were
excluded. Results are cached keyed by every selection input.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudyBest,
}

func init() {
	studyCmd.PersistentFlags().StringVar(&studyFormat, "format", "human", "Output format (json, human)")

	studyBestCmd.Flags().StringVar(&bestStrategy, "strategy", "",
		"Latency aggregation strategy: latest, median, or mean (default: configured)")
	studyBestCmd.Flags().Float64Var(&bestMaxLatencyMS, "max-latency-ms", 0,
		"Serving latency ceiling in milliseconds (0 disables the gate)")
	studyBestCmd.Flags().IntVar(&bestBatchSize, "bench-batch-size", 0, "Benchmark gate: batch size")
	studyBestCmd.Flags().IntVar(&bestSeqLen, "bench-seq-len", 0, "Benchmark gate: sequence length")
	studyBestCmd.Flags().StringVar(&bestDevice, "bench-device", "", "Benchmark gate: device, e.g. cpu or cuda:0")
	studyBestCmd.Flags().IntVar(&bestIterations, "bench-iterations", 0, "Benchmark gate: iterations per run")

	studyCmd.AddCommand(studyListCmd)
	studyCmd.AddCommand(studyShowCmd)
	studyCmd.AddCommand(studyBestCmd)
	rootCmd.AddCommand(studyCmd)
}

// studyRow is one line of the study listing.
type studyRow struct {
	Study     string    `json:"study"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Objective string    `json:"objective"`
	Direction string    `json:"direction"`
	Trials    int       `json:"trials"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}

func runStudyList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var rows []studyRow
	err = forEachStudy(ctx, cfg, func(dir string, store *studydb.Store, study models.Study) error {
		stats, err := store.Stats(ctx, study.StudyHash)
		if err != nil {
			return err
		}
		rows = append(rows, studyRow{
			Study:     study.StudyHash.Short(hashing.ShortTokenLen),
			Name:      study.Name,
			Model:     study.Key.Model,
			Objective: study.Key.Objective,
			Direction: string(study.Key.Direction),
			Trials:    stats.Trials,
			Dir:       dir,
			CreatedAt: study.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].Study < rows[j].Study
	})

	return emit(studyFormat, rows, func() string { return formatStudyListHuman(rows) })
}

func formatStudyListHuman(rows []studyRow) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s %-24s %-16s %-10s %-9s %s\n",
		"STUDY", "NAME", "OBJECTIVE", "DIRECTION", "TRIALS", "CREATED"))
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%-10s %-24s %-16s %-10s %-9d %s\n",
			r.Study, r.Name, r.Objective, r.Direction, r.Trials,
			r.CreatedAt.Format("2006-01-02")))
	}
	b.WriteString(fmt.Sprintf("\n%d studies\n", len(rows)))
	return b.String()
}

// studyDetail is the full study view for `study show`.
type studyDetail struct {
	StudyHash   hashing.Hash    `json:"study_hash"`
	Name        string          `json:"name"`
	Key         models.StudyKey `json:"key"`
	Dir         string          `json:"dir"`
	CreatedAt   time.Time       `json:"created_at"`
	TrialCounts map[string]int  `json:"trial_counts"`
	TotalTrials int             `json:"total_trials"`
	BestTrial   *models.Trial   `json:"best_trial,omitempty"`
}

func runStudyShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ref, err := findStudy(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	store, err := openStudyStore(ctx, cfg, ref.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx, ref.Study.StudyHash)
	if err != nil {
		return err
	}

	detail := studyDetail{
		StudyHash:   ref.Study.StudyHash,
		Name:        ref.Study.Name,
		Key:         ref.Study.Key,
		Dir:         ref.Dir,
		CreatedAt:   ref.Study.CreatedAt,
		TrialCounts: stats.ByState,
		TotalTrials: stats.Trials,
	}

	best, err := store.BestTrial(ctx, ref.Study.StudyHash)
	switch {
	case errors.Is(err, studydb.ErrNoTrials):
		// No completed trial yet; the detail just omits the best mark.
	case err != nil:
		return err
	default:
		detail.BestTrial = best
	}

	return emit(studyFormat, detail, func() string { return formatStudyShowHuman(detail) })
}

func formatStudyShowHuman(d studyDetail) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Study %s (%s)\n", d.StudyHash.Short(hashing.ShortTokenLen), d.Name))
	b.WriteString(fmt.Sprintf("  Hash: %s\n", d.StudyHash))
	b.WriteString(fmt.Sprintf("  Dir: %s\n", d.Dir))
	b.WriteString(fmt.Sprintf("  Model: %s  Objective: %s (%s)\n",
		d.Key.Model, d.Key.Objective, d.Key.Direction))
	b.WriteString(fmt.Sprintf("  Search space: %s  Dataset: %s\n",
		d.Key.SearchSpaceDigest, d.Key.DatasetFingerprint))
	b.WriteString(fmt.Sprintf("  Created: %s\n", d.CreatedAt.Format(time.RFC3339)))

	b.WriteString(fmt.Sprintf("\nTrials: %d\n", d.TotalTrials))
	states := make([]string, 0, len(d.TrialCounts))
	for state := range d.TrialCounts {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		b.WriteString(fmt.Sprintf("  %-10s %d\n", state, d.TrialCounts[state]))
	}

	if d.BestTrial != nil {
		b.WriteString(fmt.Sprintf("\nBest trial: #%d (%s)\n",
			d.BestTrial.Number, d.BestTrial.TrialHash.Short(hashing.ShortTokenLen)))
		if d.BestTrial.Objective != nil {
			b.WriteString(fmt.Sprintf("  Objective: %g\n", *d.BestTrial.Objective))
		}
		if d.BestTrial.CheckpointPath != "" {
			b.WriteString(fmt.Sprintf("  Checkpoint: %s\n", d.BestTrial.CheckpointPath))
		}
	} else {
		b.WriteString("\nBest trial: none yet\n")
	}
	return b.String()
}

func runStudyBest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ref, err := findStudy(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	strategyName := bestStrategy
	if strategyName == "" {
		strategyName = cfg.Selection.Aggregation
	}
	strategy, err := benchmark.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	spec := selection.Spec{Strategy: strategy, MaxLatencyMS: bestMaxLatencyMS}
	if bestMaxLatencyMS > 0 {
		spec.Benchmark = &models.BenchmarkConfig{
			BatchSize:      bestBatchSize,
			SequenceLength: bestSeqLen,
			Device:         bestDevice,
			Iterations:     bestIterations,
		}
	}

	store, err := openStudyStore(ctx, cfg, ref.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := selection.NewCache(cfg.Selection)
	if err != nil {
		return err
	}
	defer cache.Close()

	report, err := selection.NewSelector(store, cache).SelectBest(ctx, ref.Study, spec)
	if err != nil {
		return err
	}

	return emit(studyFormat, report, func() string { return formatBestHuman(report) })
}

func formatBestHuman(report *selection.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Champion of %s (%s, %s %s)\n",
		report.StudyHash.Short(hashing.ShortTokenLen), report.Experiment,
		report.Direction, report.Strategy))

	if c := report.Champion; c != nil {
		b.WriteString(fmt.Sprintf("\n  Trial #%d (%s)  objective=%g",
			c.Number, c.TrialHash.Short(hashing.ShortTokenLen), c.Objective))
		if c.LatencyMS != nil {
			b.WriteString(fmt.Sprintf("  latency=%.1fms", *c.LatencyMS))
		}
		b.WriteString("\n")
		if c.CheckpointPath != "" {
			b.WriteString(fmt.Sprintf("  Checkpoint: %s\n", c.CheckpointPath))
		}
	}

	b.WriteString(fmt.Sprintf("\nCandidates: %d\n", len(report.Candidates)))
	for _, cand := range report.Candidates {
		mark := "-"
		note := ""
		switch {
		case report.Champion != nil && cand.TrialHash == report.Champion.TrialHash:
			mark = "*"
		case cand.Excluded != "":
			note = "  (" + cand.Excluded + ")"
		}
		b.WriteString(fmt.Sprintf("  %s #%-4d %s  objective=%g%s\n",
			mark, cand.Number, cand.TrialHash.Short(hashing.ShortTokenLen), cand.Objective, note))
	}
	return b.String()
}
