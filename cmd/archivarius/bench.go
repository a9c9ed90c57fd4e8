// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/benchmark"
	"github.com/tomtom215/archivarius/internal/hashing"
)

var (
	benchStrategy string
	benchFormat   string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Work with inference benchmark records",
}

var benchReportCmd = &cobra.Command{
	Use:   "report [study...]",
	Short: "Aggregate benchmark runs per (study, trial, config) group",
	Long: `Aggregate recorded benchmark runs into one representative latency per
(study, trial, config) group. Repeated runs of the same configuration
pool their samples; a changed configuration starts a new group. The
strategy decides how samples collapse: median (default), mean, or
latest finished run.`,
	RunE: runBenchReport,
}

func init() {
	benchReportCmd.Flags().StringVar(&benchStrategy, "strategy", "",
		"Aggregation strategy: latest, median, or mean (default: configured)")
	benchReportCmd.Flags().StringVar(&benchFormat, "format", "human", "Output format (json, human)")
	benchCmd.AddCommand(benchReportCmd)
	rootCmd.AddCommand(benchCmd)
}

// benchRow is one aggregated group in the report.
type benchRow struct {
	Study     string  `json:"study"`
	Trial     string  `json:"trial"`
	Config    string  `json:"config"`
	BatchSize int     `json:"batch_size"`
	SeqLen    int     `json:"sequence_length"`
	Device    string  `json:"device"`
	Runs      int     `json:"runs"`
	Usable    int     `json:"usable"`
	Samples   int     `json:"samples"`
	LatencyMS float64 `json:"latency_ms"`
}

// benchReport is the output of one report invocation.
type benchReport struct {
	Strategy string     `json:"strategy"`
	Rows     []benchRow `json:"rows"`
}

func runBenchReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	strategyName := benchStrategy
	if strategyName == "" {
		strategyName = cfg.Selection.Aggregation
	}
	strategy, err := benchmark.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	selected, err := selectStudies(ctx, cfg, args)
	if err != nil {
		return err
	}

	report := benchReport{Strategy: string(strategy)}
	for _, ref := range selected {
		store, err := openStudyStore(ctx, cfg, ref.Dir)
		if err != nil {
			return err
		}

		records, listErr := store.ListBenchmarks(ctx, ref.Study.StudyHash)
		var rows []benchmark.GroupAggregate
		if listErr == nil {
			rows, listErr = benchmark.Summarize(records, strategy)
		}
		closeErr := store.Close()
		if listErr != nil {
			return fmt.Errorf("benchmark report for study %s: %w",
				ref.Study.StudyHash.Short(hashing.ShortTokenLen), listErr)
		}
		if closeErr != nil {
			return closeErr
		}

		for _, row := range rows {
			report.Rows = append(report.Rows, benchRow{
				Study:     row.Key.StudyHash.Short(hashing.ShortTokenLen),
				Trial:     row.Key.TrialHash.Short(hashing.ShortTokenLen),
				Config:    row.Key.ConfigHash.Short(hashing.ShortTokenLen),
				BatchSize: row.Config.BatchSize,
				SeqLen:    row.Config.SequenceLength,
				Device:    row.Config.Device,
				Runs:      row.Runs,
				Usable:    row.Usable,
				Samples:   row.Samples,
				LatencyMS: row.LatencyMS,
			})
		}
	}

	return emit(benchFormat, report, func() string { return formatBenchHuman(report) })
}

func formatBenchHuman(report benchReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Benchmark report (%s)\n\n", report.Strategy))
	b.WriteString(fmt.Sprintf("%-10s %-10s %-10s %-7s %-7s %-8s %-6s %-8s %s\n",
		"STUDY", "TRIAL", "CONFIG", "BATCH", "SEQLEN", "DEVICE", "RUNS", "SAMPLES", "LATENCY_MS"))
	for _, r := range report.Rows {
		b.WriteString(fmt.Sprintf("%-10s %-10s %-10s %-7d %-7d %-8s %-6d %-8d %.2f\n",
			r.Study, r.Trial, r.Config, r.BatchSize, r.SeqLen, r.Device, r.Runs, r.Samples, r.LatencyMS))
	}
	b.WriteString(fmt.Sprintf("\n%d groups\n", len(report.Rows)))
	return b.String()
}
