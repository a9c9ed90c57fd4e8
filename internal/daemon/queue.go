// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"sort"
	"sync"
)

// StudyQueue is a coalescing set of study directories awaiting backup
// sync. Enqueueing the same study again before it is drained collapses
// into a single pending entry, so a burst of trial completions in one
// study triggers one sync, not many.
type StudyQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	notify  chan struct{}
}

// NewStudyQueue creates an empty queue.
func NewStudyQueue() *StudyQueue {
	return &StudyQueue{
		pending: make(map[string]struct{}),
		// Buffered by one: a wakeup is either already waiting or sent,
		// never lost and never stacked.
		notify: make(chan struct{}, 1),
	}
}

// Enqueue marks a study directory as needing sync and wakes the
// draining side if it is blocked.
func (q *StudyQueue) Enqueue(studyDir string) {
	q.mu.Lock()
	q.pending[studyDir] = struct{}{}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns all pending study directories, sorted for
// deterministic processing order. Returns nil when nothing is pending.
func (q *StudyQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	dirs := make([]string, 0, len(q.pending))
	for dir := range q.pending {
		dirs = append(dirs, dir)
	}
	q.pending = make(map[string]struct{})

	sort.Strings(dirs)
	return dirs
}

// Len returns the number of studies currently waiting.
func (q *StudyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Notify returns the wakeup channel. It carries at most one pending
// signal; receivers must Drain after each wakeup to pick up everything
// enqueued since the last drain.
func (q *StudyQueue) Notify() <-chan struct{} {
	return q.notify
}
