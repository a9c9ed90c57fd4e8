// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/backup"
	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/studydb"
)

var syncFormat string

var syncCmd = &cobra.Command{
	Use:   "sync [study...]",
	Short: "Mirror studies to the remote backup root",
	Long: `Mirror study state to the remote backup root: a point-in-time snapshot
of each study's metadata store, every trial's sidecar document, and the
best trial's checkpoint tree. Without arguments every study under the
artifact root is synced; arguments select studies by hash, short token,
or name. Unchanged files are skipped, so repeated syncs are cheap.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(syncCmd)
}

// syncReport is the outcome of one sync invocation across studies.
type syncReport struct {
	Studies []backup.StudySyncResult `json:"studies"`
	Failed  int                      `json:"failed"`
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	syncer, err := newSynchronizer(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	selected, err := selectStudies(ctx, cfg, args)
	if err != nil {
		return err
	}

	report := syncReport{}
	for _, ref := range selected {
		store, err := openStudyStore(ctx, cfg, ref.Dir)
		if err != nil {
			return err
		}
		result, syncErr := syncer.SyncStudy(ctx, store, ref.Study.StudyHash)
		closeErr := store.Close()

		report.Studies = append(report.Studies, result)
		if syncErr != nil {
			report.Failed++
		}
		if closeErr != nil {
			return closeErr
		}
	}

	if err := emit(syncFormat, report, func() string { return formatSyncHuman(report) }); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d studies failed to sync", report.Failed, len(report.Studies))
	}
	return nil
}

// newSynchronizer assembles the mirror synchronizer, refusing to run
// when backup is not configured.
func newSynchronizer(cfg *config.Config) (*backup.Synchronizer, error) {
	if !cfg.Backup.Enabled || cfg.Backup.RemoteRoot == "" {
		return nil, fmt.Errorf("backup is not configured: set BACKUP_ENABLED and BACKUP_REMOTE_ROOT")
	}
	return backup.NewMirrorSynchronizer(cfg.Backup, cfg.Storage.Root)
}

// selectStudies resolves the positional study arguments, or every study
// under the root when none are given.
func selectStudies(ctx context.Context, cfg *config.Config, args []string) ([]studyRef, error) {
	if len(args) == 0 {
		var refs []studyRef
		err := forEachStudy(ctx, cfg, func(dir string, _ *studydb.Store, study models.Study) error {
			refs = append(refs, studyRef{Dir: dir, Study: study})
			return nil
		})
		return refs, err
	}

	refs := make([]studyRef, 0, len(args))
	for _, arg := range args {
		ref, err := findStudy(ctx, cfg, arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func formatSyncHuman(report syncReport) string {
	var b strings.Builder
	for _, r := range report.Studies {
		status := "ok"
		if r.Failed > 0 {
			status = fmt.Sprintf("%d failed", r.Failed)
		}
		b.WriteString(fmt.Sprintf("%s  files=%d bytes=%d duration=%s  [%s]\n",
			r.StudyDir, r.Files, r.Bytes, r.Duration.Round(time.Millisecond), status))
	}
	b.WriteString(fmt.Sprintf("\nSynced %d studies, %d failed\n", len(report.Studies), report.Failed))
	return b.String()
}
