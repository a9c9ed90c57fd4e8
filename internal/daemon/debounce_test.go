// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"sync"
	"testing"
	"time"
)

// fireRecorder collects debouncer callbacks for assertions.
type fireRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *fireRecorder) fire(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *fireRecorder) fired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func (r *fireRecorder) waitForCount(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.fired()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d callbacks, got %v", n, r.fired())
}

func TestDebouncerFiresAfterQuietPeriod(t *testing.T) {
	rec := &fireRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.fire)

	d.Trigger("study-a")

	rec.waitForCount(t, 1)
	if got := rec.fired(); got[0] != "study-a" {
		t.Errorf("fired key = %q, want study-a", got[0])
	}
	if got := d.PendingCount(); got != 0 {
		t.Errorf("PendingCount() after fire = %d, want 0", got)
	}
}

func TestDebouncerCoalescesRetriggers(t *testing.T) {
	rec := &fireRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.fire)

	// A burst of triggers for the same key collapses into one callback.
	d.Trigger("study-a")
	d.Trigger("study-a")
	d.Trigger("study-a")

	rec.waitForCount(t, 1)
	time.Sleep(50 * time.Millisecond)

	if got := rec.fired(); len(got) != 1 {
		t.Errorf("fired %d times, want 1: %v", len(got), got)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	rec := &fireRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.fire)

	d.Trigger("study-a")
	d.Trigger("study-b")

	if got := d.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}

	rec.waitForCount(t, 2)

	seen := map[string]bool{}
	for _, key := range rec.fired() {
		seen[key] = true
	}
	if !seen["study-a"] || !seen["study-b"] {
		t.Errorf("fired keys = %v, want both study-a and study-b", rec.fired())
	}
}

func TestDebouncerFlush(t *testing.T) {
	rec := &fireRecorder{}
	d := NewDebouncer(time.Hour, rec.fire)

	d.Trigger("study-b")
	d.Trigger("study-a")
	d.Flush()

	got := rec.fired()
	if len(got) != 2 || got[0] != "study-a" || got[1] != "study-b" {
		t.Errorf("Flush() fired %v, want [study-a study-b]", got)
	}
	if d.PendingCount() != 0 {
		t.Errorf("PendingCount() after flush = %d, want 0", d.PendingCount())
	}
}

func TestDebouncerCancel(t *testing.T) {
	rec := &fireRecorder{}
	d := NewDebouncer(10*time.Millisecond, rec.fire)

	d.Trigger("study-a")
	d.Cancel()

	time.Sleep(40 * time.Millisecond)
	if got := rec.fired(); len(got) != 0 {
		t.Errorf("canceled debouncer fired %v", got)
	}
}
