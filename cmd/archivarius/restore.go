// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/backup"
)

var (
	restoreAll    bool
	restoreFormat string
)

var restoreCmd = &cobra.Command{
	Use:   "restore [path...]",
	Short: "Restore artifacts from the remote backup root",
	Long: `Restore local paths from their remote mirror counterparts. Arguments
are local paths under the artifact root, typically study directories;
--all restores the entire root. Files already up to date locally are
skipped. Restore a study before opening its metadata store: the
downloaded study.db must not race an open connection.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreAll, "all", false, "Restore everything under the artifact root")
	restoreCmd.Flags().StringVar(&restoreFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(restoreCmd)
}

// restoreReport is the outcome of one restore invocation.
type restoreReport struct {
	Paths  []backup.SyncResult `json:"paths"`
	Failed int                 `json:"failed"`
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	syncer, err := newSynchronizer(cfg)
	if err != nil {
		return err
	}

	targets := args
	if restoreAll {
		if len(args) > 0 {
			return fmt.Errorf("--all does not take path arguments")
		}
		targets = []string{cfg.Storage.Root}
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to restore: give local paths or --all")
	}

	ctx := cmd.Context()
	report := restoreReport{}
	for _, target := range targets {
		result, restoreErr := syncer.RestoreStudy(ctx, target)
		report.Paths = append(report.Paths, result)
		if restoreErr != nil {
			report.Failed++
		}
	}

	if err := emit(restoreFormat, report, func() string { return formatRestoreHuman(report) }); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d paths failed to restore", report.Failed, len(report.Paths))
	}
	return nil
}

func formatRestoreHuman(report restoreReport) string {
	var b strings.Builder
	for _, r := range report.Paths {
		b.WriteString(fmt.Sprintf("%s  %s files=%d bytes=%d duration=%s\n",
			r.Local, r.Action, r.Files, r.Bytes, r.Duration.Round(time.Millisecond)))
	}
	b.WriteString(fmt.Sprintf("\nRestored %d paths, %d failed\n", len(report.Paths), report.Failed))
	return b.String()
}
