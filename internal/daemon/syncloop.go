// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tomtom215/archivarius/internal/backup"
	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

const defaultSyncInterval = 5 * time.Minute

// storeConfig maps the study store section of the application config
// onto the store's own tuning knobs.
func storeConfig(cfg config.StudyDBConfig) studydb.Config {
	return studydb.Config{
		BusyTimeout:    cfg.BusyTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}
}

// SyncLoop mirrors study artifacts to the remote backup root. It runs a
// full pass over every study on a fixed interval, and a targeted pass
// whenever the watcher queues studies with fresh trial metadata.
type SyncLoop struct {
	root     string
	queue    *StudyQueue
	syncer   *backup.Synchronizer
	interval time.Duration
	dbCfg    studydb.Config

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool

	// Stats
	lastRun    time.Time
	lastSynced int
	lastFailed int
}

// NewSyncLoop creates the backup sync loop. The synchronizer must be
// non-nil; when backup is disabled the daemon simply does not run this
// loop.
func NewSyncLoop(root string, queue *StudyQueue, syncer *backup.Synchronizer, cfg config.Config) *SyncLoop {
	interval := cfg.Watcher.SyncInterval
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	return &SyncLoop{
		root:     root,
		queue:    queue,
		syncer:   syncer,
		interval: interval,
		dbCfg:    storeConfig(cfg.StudyDB),
	}
}

// Start begins the background sync loop.
func (s *SyncLoop) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	logging.Info().Dur("interval", s.interval).Msg("Sync loop started")
	return nil
}

// Stop gracefully stops the sync loop.
func (s *SyncLoop) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("Sync loop stopped")
}

// IsRunning returns whether the loop is active.
func (s *SyncLoop) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the main loop goroutine.
func (s *SyncLoop) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.syncAll()
		case <-s.queue.Notify():
			s.syncPending()
		}
	}
}

// syncAll mirrors every study under the artifact root.
func (s *SyncLoop) syncAll() {
	// A full pass covers everything; clear the backlog so the same
	// studies aren't synced twice back to back.
	s.queue.Drain()

	dirs, err := DiscoverStudies(s.root)
	if err != nil {
		logging.Error().Err(err).Msg("Study discovery failed")
		return
	}
	s.syncDirs(dirs)
}

// syncPending mirrors only the studies the watcher queued.
func (s *SyncLoop) syncPending() {
	s.syncDirs(s.queue.Drain())
}

func (s *SyncLoop) syncDirs(dirs []string) {
	if len(dirs) == 0 {
		return
	}

	start := time.Now()
	synced, failed := 0, 0

	for _, dir := range dirs {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.syncStudyDir(dir); err != nil {
			failed++
			logging.Warn().Err(err).Str("study_dir", dir).Msg("Study sync failed")
			continue
		}
		synced++
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastSynced = synced
	s.lastFailed = failed
	s.mu.Unlock()

	logging.Info().
		Int("studies", len(dirs)).
		Int("synced", synced).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Sync pass finished")
}

// syncStudyDir mirrors one study directory. Studies without an
// initialized metadata store are skipped; a trial process may create
// the folder before the first study.db write lands.
func (s *SyncLoop) syncStudyDir(dir string) error {
	dbPath := paths.StudyDBPath(dir)
	if _, err := os.Stat(dbPath); err != nil {
		logging.Debug().Str("study_dir", dir).Msg("Skipping study without metadata store")
		return nil
	}

	store, err := studydb.Open(s.ctx, dbPath, s.dbCfg)
	if err != nil {
		return fmt.Errorf("open study store: %w", err)
	}
	defer store.Close()

	studies, err := store.ListStudies(s.ctx)
	if err != nil {
		return err
	}

	for _, study := range studies {
		if _, err := s.syncer.SyncStudy(s.ctx, store, study.StudyHash); err != nil {
			return err
		}
	}
	return nil
}

// RunNow triggers an immediate full sync pass. The loop must be
// started.
func (s *SyncLoop) RunNow() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return errors.New("sync loop is not running")
	}
	s.syncAll()
	return nil
}

// SyncLoopStats contains statistics about the last sync pass.
type SyncLoopStats struct {
	LastRun    time.Time
	LastSynced int
	LastFailed int
}

// GetStats returns sync loop statistics.
func (s *SyncLoop) GetStats() SyncLoopStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SyncLoopStats{
		LastRun:    s.lastRun,
		LastSynced: s.lastSynced,
		LastFailed: s.lastFailed,
	}
}
