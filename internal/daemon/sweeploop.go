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

	"github.com/tomtom215/archivarius/internal/checkpoint"
	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

const defaultSweepInterval = time.Hour

// SweepLoop periodically applies the checkpoint retention policy across
// every study under the artifact root. Checkpoints that fall outside
// the retained set are deleted; the policy itself lives in the
// checkpoint package.
type SweepLoop struct {
	root     string
	policy   checkpoint.Policy
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
	lastRun        time.Time
	lastDeleted    int
	lastFailed     int
	totalReclaimed int64
}

// NewSweepLoop creates the retention sweep loop.
func NewSweepLoop(root string, cfg config.Config) *SweepLoop {
	interval := cfg.Watcher.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &SweepLoop{
		root: root,
		policy: checkpoint.Policy{
			RetainBest: cfg.Checkpoint.RetainBest,
			KeepRecent: cfg.Checkpoint.KeepRecent,
			MinCount:   cfg.Checkpoint.MinCount,
			DryRun:     cfg.Checkpoint.DryRun,
		},
		interval: interval,
		dbCfg:    storeConfig(cfg.StudyDB),
	}
}

// Start begins the background sweep loop.
func (s *SweepLoop) Start(ctx context.Context) error {
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

	logging.Info().Dur("interval", s.interval).Msg("Sweep loop started")
	return nil
}

// Stop gracefully stops the sweep loop.
func (s *SweepLoop) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("Sweep loop stopped")
}

// IsRunning returns whether the loop is active.
func (s *SweepLoop) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the main loop goroutine.
func (s *SweepLoop) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll()
		}
	}
}

// sweepAll applies the retention policy to every study under the root.
func (s *SweepLoop) sweepAll() {
	dirs, err := DiscoverStudies(s.root)
	if err != nil {
		logging.Error().Err(err).Msg("Study discovery failed")
		return
	}

	start := time.Now()
	var examined, deleted, failed int
	var reclaimed int64

	for _, dir := range dirs {
		if s.ctx.Err() != nil {
			return
		}
		result, err := s.sweepStudyDir(dir)
		if err != nil {
			failed++
			logging.Warn().Err(err).Str("study_dir", dir).Msg("Retention sweep failed for study")
			continue
		}
		examined += result.Examined
		deleted += result.Deleted
		failed += result.Failed
		reclaimed += result.BytesReclaimed
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastDeleted = deleted
	s.lastFailed = failed
	s.totalReclaimed += reclaimed
	s.mu.Unlock()

	if deleted > 0 || failed > 0 {
		logging.Info().
			Int("studies", len(dirs)).
			Int("examined", examined).
			Int("deleted", deleted).
			Int("failed", failed).
			Int64("bytes_reclaimed", reclaimed).
			Dur("duration", time.Since(start)).
			Msg("Retention sweep removed checkpoints")
	}
}

// sweepStudyDir applies the policy to one study directory. Studies
// without an initialized metadata store are skipped.
func (s *SweepLoop) sweepStudyDir(dir string) (checkpoint.SweepResult, error) {
	var total checkpoint.SweepResult

	dbPath := paths.StudyDBPath(dir)
	if _, err := os.Stat(dbPath); err != nil {
		return total, nil
	}

	store, err := studydb.Open(s.ctx, dbPath, s.dbCfg)
	if err != nil {
		return total, fmt.Errorf("open study store: %w", err)
	}
	defer store.Close()

	studies, err := store.ListStudies(s.ctx)
	if err != nil {
		return total, err
	}

	for _, study := range studies {
		mgr := checkpoint.NewManager(store, study, s.policy)
		result, err := mgr.Sweep(s.ctx)
		if err != nil {
			return total, err
		}
		total.Examined += result.Examined
		total.Kept += result.Kept
		total.Deleted += result.Deleted
		total.AlreadyGone += result.AlreadyGone
		total.Failed += result.Failed
		total.DryRun += result.DryRun
		total.BytesReclaimed += result.BytesReclaimed
	}

	return total, nil
}

// RunNow triggers an immediate sweep pass. The loop must be started.
func (s *SweepLoop) RunNow() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return errors.New("sweep loop is not running")
	}
	s.sweepAll()
	return nil
}

// SweepLoopStats contains statistics about sweep activity.
type SweepLoopStats struct {
	LastRun             time.Time
	LastDeleted         int
	LastFailed          int
	TotalBytesReclaimed int64
}

// GetStats returns sweep loop statistics.
func (s *SweepLoop) GetStats() SweepLoopStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SweepLoopStats{
		LastRun:             s.lastRun,
		LastDeleted:         s.lastDeleted,
		LastFailed:          s.lastFailed,
		TotalBytesReclaimed: s.totalReclaimed,
	}
}
