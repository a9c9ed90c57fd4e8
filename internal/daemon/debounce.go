// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"sort"
	"sync"
	"time"
)

// Debouncer delays a per-key callback until a quiet period has passed.
// Each key runs its own timer; triggering a key again before its delay
// expires resets the countdown. The watcher uses study directories as
// keys, so a burst of trial metadata writes inside one study collapses
// into a single flush once the study goes quiet.
type Debouncer struct {
	delay  time.Duration
	fire   func(key string)
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates a debouncer that calls fire for each key after
// the key has been quiet for delay.
func NewDebouncer(delay time.Duration, fire func(key string)) *Debouncer {
	return &Debouncer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger schedules or reschedules the callback for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()

		d.fire(key)
	})
}

// Flush fires every pending key immediately, in sorted order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.timers))
	for key, t := range d.timers {
		t.Stop()
		keys = append(keys, key)
	}
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		d.fire(key)
	}
}

// Cancel drops every pending key without firing.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = make(map[string]*time.Timer)
}

// PendingCount returns the number of keys awaiting their quiet period.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
