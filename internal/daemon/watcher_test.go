// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/paths"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startTestWatcher(t *testing.T, root string) (*Watcher, *StudyQueue) {
	t.Helper()

	queue := NewStudyQueue()
	w := NewWatcher(root, queue, config.WatcherConfig{Debounce: 50 * time.Millisecond})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w, queue
}

func TestWatcherEnqueuesOnTrialMeta(t *testing.T) {
	root := t.TempDir()
	_, queue := startTestWatcher(t, root)

	studyDir := filepath.Join(root, "dev", "resnet50", "study-1f0c93ab")
	trialDir := filepath.Join(studyDir, "trial-7be301d2")
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	// Watches cascade through create events; retrying the sidecar write
	// keeps the test independent of event timing. Retries are spaced
	// wider than the debounce delay so each write gets a full quiet
	// period in which to flush.
	meta := filepath.Join(trialDir, paths.TrialMetaName)
	queued := false
	for attempt := 0; attempt < 20 && !queued; attempt++ {
		if err := os.WriteFile(meta, []byte(`{"trial_number":1}`), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		queued = waitFor(t, 150*time.Millisecond, func() bool { return queue.Len() > 0 })
	}
	if !queued {
		t.Fatal("trial metadata write never reached the queue")
	}

	got := queue.Drain()
	if len(got) != 1 || got[0] != studyDir {
		t.Errorf("Drain() = %v, want [%s]", got, studyDir)
	}
}

func TestWatcherPicksUpExistingMeta(t *testing.T) {
	root := t.TempDir()

	// The sidecar exists before the watcher starts; the initial walk
	// must find it.
	studyDir := filepath.Join(root, "dev", "resnet50", "study-1f0c93ab")
	trialDir := filepath.Join(studyDir, "trial-7be301d2")
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	meta := filepath.Join(trialDir, paths.TrialMetaName)
	if err := os.WriteFile(meta, []byte(`{"trial_number":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, queue := startTestWatcher(t, root)

	if !waitFor(t, 2*time.Second, func() bool { return queue.Len() > 0 }) {
		t.Fatal("pre-existing trial metadata never reached the queue")
	}
	got := queue.Drain()
	if len(got) != 1 || got[0] != studyDir {
		t.Errorf("Drain() = %v, want [%s]", got, studyDir)
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()

	trialDir := filepath.Join(root, "study-1f0c93ab", "trial-7be301d2")
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	_, queue := startTestWatcher(t, root)

	// A checkpoint artifact in the trial folder and a sidecar name
	// outside a trial folder are both non-events.
	if err := os.WriteFile(filepath.Join(trialDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, paths.TrialMetaName), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := queue.Len(); got != 0 {
		t.Errorf("queue has %d entries, want 0: %v", got, queue.Drain())
	}
}

func TestWatcherLifecycle(t *testing.T) {
	root := t.TempDir()
	queue := NewStudyQueue()
	w := NewWatcher(root, queue, config.WatcherConfig{Debounce: 10 * time.Millisecond})

	if w.IsRunning() {
		t.Error("watcher should not run before Start")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Error("watcher should run after Start")
	}

	// Second start is a no-op.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	w.Stop()
	if w.IsRunning() {
		t.Error("watcher should not run after Stop")
	}

	// Second stop is a no-op.
	w.Stop()
}

func TestWatcherStartMissingRoot(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope"), NewStudyQueue(), config.WatcherConfig{})

	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing artifact root")
	}
}

func TestOwningStudyDir(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{
			name: "valid pair",
			path: "/data/dev/study-1f0c93ab/trial-7be301d2/trial_meta.json",
			want: "/data/dev/study-1f0c93ab",
			ok:   true,
		},
		{
			name: "trial folder without study parent",
			path: "/data/dev/trial-7be301d2/trial_meta.json",
			ok:   false,
		},
		{
			name: "sidecar directly in study folder",
			path: "/data/dev/study-1f0c93ab/trial_meta.json",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := owningStudyDir(tt.path)
			if ok != tt.ok || got != tt.want {
				t.Errorf("owningStudyDir(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}
