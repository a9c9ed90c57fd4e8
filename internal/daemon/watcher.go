// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
	"github.com/tomtom215/archivarius/internal/paths"
)

const defaultDebounce = 2 * time.Second

// Watcher follows the artifact tree and reports studies whose trial
// metadata changed. A trial process finishing its work writes
// trial_meta.json last, so that file landing is the signal that the
// study has fresh durable state worth mirroring.
//
// Watches cover the tree down to the trial folders and stop there:
// checkpoint writes during training would otherwise flood the event
// stream. Events are debounced per study, and quiesced studies land in
// the shared StudyQueue for the sync loop to drain.
type Watcher struct {
	root     string
	queue    *StudyQueue
	debounce *Debouncer

	fsw *fsnotify.Watcher

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool

	// Stats
	eventsSeen    int64
	studiesQueued int64
	lastEvent     time.Time
}

// NewWatcher creates a watcher over the artifact tree rooted at root.
// Quiesced studies are enqueued on queue.
func NewWatcher(root string, queue *StudyQueue, cfg config.WatcherConfig) *Watcher {
	delay := cfg.Debounce
	if delay <= 0 {
		delay = defaultDebounce
	}

	w := &Watcher{
		root:  root,
		queue: queue,
	}
	w.debounce = NewDebouncer(delay, w.flushStudy)
	return w
}

// Start begins watching. The artifact root must exist; a missing root
// is an error so the supervisor can retry with backoff once it appears.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.run()

	logging.Info().Str("root", w.root).Dur("debounce", w.debounce.delay).Msg("Trial watcher started")
	return nil
}

// Stop gracefully stops the watcher. Pending debounced studies are
// dropped; the next interval sync covers anything not yet flushed.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.debounce.Cancel()
	_ = w.fsw.Close()

	logging.Info().Msg("Trial watcher stopped")
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main event loop goroutine.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("Filesystem watcher error")
			metrics.RecordWatcherEvent("error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	w.eventsSeen++
	w.lastEvent = time.Now()
	w.mu.Unlock()

	switch {
	case event.Op.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			w.watchNewDir(event.Name)
			return
		}
		w.maybeTriggerMeta(event.Name)
	case event.Op.Has(fsnotify.Write):
		w.maybeTriggerMeta(event.Name)
	}
}

// watchNewDir extends the watch set when a directory appears, e.g. a
// new study or trial folder created by a training process.
func (w *Watcher) watchNewDir(dir string) {
	metrics.RecordWatcherEvent("dir_create")
	if err := w.addRecursive(dir); err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("Failed to watch new directory")
	}
}

// maybeTriggerMeta debounces the owning study when path is a trial
// sidecar document inside a recognizable trial/study folder pair.
func (w *Watcher) maybeTriggerMeta(path string) {
	if filepath.Base(path) != paths.TrialMetaName {
		return
	}
	studyDir, ok := owningStudyDir(path)
	if !ok {
		return
	}

	metrics.RecordWatcherEvent("trial_meta")
	w.debounce.Trigger(studyDir)
}

// flushStudy moves a quiesced study from the debouncer into the sync
// queue.
func (w *Watcher) flushStudy(studyDir string) {
	w.queue.Enqueue(studyDir)
	metrics.RecordWatcherFlush()

	w.mu.Lock()
	w.studiesQueued++
	w.mu.Unlock()

	logging.Debug().Str("study_dir", studyDir).Msg("Study queued for sync")
}

// addRecursive walks dir, watching every directory down to and
// including the trial folders, without descending into them.
//
// A trial_meta.json that landed before its folder's watch took effect
// is picked up here, closing the race between mkdir and watch.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		if _, ok := paths.IsTrialDirName(d.Name()); ok {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			meta := paths.TrialMetaPath(path)
			if _, statErr := os.Stat(meta); statErr == nil {
				w.maybeTriggerMeta(meta)
			}
			return fs.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// owningStudyDir maps <study>/<trial>/trial_meta.json to the study
// directory, verifying both folder names along the way.
func owningStudyDir(metaPath string) (string, bool) {
	trialDir := filepath.Dir(metaPath)
	if _, ok := paths.IsTrialDirName(filepath.Base(trialDir)); !ok {
		return "", false
	}
	studyDir := filepath.Dir(trialDir)
	if _, ok := paths.IsStudyDirName(filepath.Base(studyDir)); !ok {
		return "", false
	}
	return studyDir, true
}

// WatcherStats contains statistics about watch activity.
type WatcherStats struct {
	EventsSeen    int64
	StudiesQueued int64
	LastEvent     time.Time
}

// GetStats returns watch activity counters.
func (w *Watcher) GetStats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WatcherStats{
		EventsSeen:    w.eventsSeen,
		StudiesQueued: w.studiesQueued,
		LastEvent:     w.lastEvent,
	}
}
