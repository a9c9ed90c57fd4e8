// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/api"
	"github.com/tomtom215/archivarius/internal/backup"
	"github.com/tomtom215/archivarius/internal/daemon"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/selection"
	"github.com/tomtom215/archivarius/internal/supervisor"
	"github.com/tomtom215/archivarius/internal/supervisor/services"
	"github.com/tomtom215/archivarius/internal/version"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the maintenance daemon",
	Long: `Run the long-lived maintenance daemon under a supervisor tree: the
trial-completion watcher, the periodic backup sync and retention sweep
loops, and the operational HTTP endpoint. Subsystems disabled in the
configuration are simply not started.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.Info().
		Str("version", version.Info()).
		Str("root", cfg.Storage.Root).
		Str("environment", cfg.Storage.Environment).
		Msg("Starting archivarius daemon with supervisor tree")

	if err := paths.EnsureDir(cfg.Storage.Root); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility.
	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	queue := daemon.NewStudyQueue()

	var watcher *daemon.Watcher
	if cfg.Watcher.Enabled {
		watcher = daemon.NewWatcher(cfg.Storage.Root, queue, cfg.Watcher)
		tree.AddStorageService(services.NewWatcherService(watcher))
		logging.Info().Msg("Trial watcher added to supervisor tree")
	} else {
		logging.Info().Msg("Trial watcher disabled")
	}

	var syncLoop *daemon.SyncLoop
	if cfg.Backup.Enabled {
		syncer, err := backup.NewMirrorSynchronizer(cfg.Backup, cfg.Storage.Root)
		if err != nil {
			return err
		}
		syncLoop = daemon.NewSyncLoop(cfg.Storage.Root, queue, syncer, *cfg)
		tree.AddMaintenanceService(services.NewSyncLoopService(syncLoop))
		logging.Info().Str("remote_root", cfg.Backup.RemoteRoot).Msg("Backup sync loop added to supervisor tree")
	} else {
		logging.Info().Msg("Backup disabled - artifacts stay local")
	}

	sweepLoop := daemon.NewSweepLoop(cfg.Storage.Root, *cfg)
	tree.AddMaintenanceService(services.NewSweepLoopService(sweepLoop))

	cache, err := selection.NewCache(cfg.Selection)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing selection cache")
		}
	}()

	if cfg.Server.Enabled {
		handler := api.NewHandler(*cfg, watcher, syncLoop, sweepLoop, cache, version.Info())
		router := api.NewRouter(handler, api.NewMiddleware(cfg.Server))
		server := api.NewServer(cfg.Server, router.SetupChi())
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	} else {
		logging.Info().Msg("Operational HTTP endpoint disabled")
	}

	// Shutdown on SIGINT / SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Daemon stopped gracefully")
	return nil
}
