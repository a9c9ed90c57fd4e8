// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"net/http"
	"time"
)

// StatusResponse is the body of GET /api/v1/status: one snapshot of
// everything the daemon is doing. Sections for subsystems that were
// never wired are omitted entirely, so consumers can tell "disabled"
// from "idle".
type StatusResponse struct {
	Version       string         `json:"version"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Root          string         `json:"root"`
	Studies       int            `json:"studies"`
	Watcher       *WatcherStatus `json:"watcher,omitempty"`
	Sync          *SyncStatus    `json:"sync,omitempty"`
	Sweep         *SweepStatus   `json:"sweep,omitempty"`
	Cache         *CacheStatus   `json:"cache,omitempty"`
}

// WatcherStatus reports filesystem watch activity.
type WatcherStatus struct {
	Running       bool       `json:"running"`
	EventsSeen    int64      `json:"events_seen"`
	StudiesQueued int64      `json:"studies_queued"`
	LastEvent     *time.Time `json:"last_event,omitempty"`
}

// SyncStatus reports the backup sync loop's most recent pass.
type SyncStatus struct {
	Running    bool       `json:"running"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastSynced int        `json:"last_synced"`
	LastFailed int        `json:"last_failed"`
}

// SweepStatus reports the retention sweep loop's most recent pass plus
// the bytes reclaimed over the loop's lifetime.
type SweepStatus struct {
	Running        bool       `json:"running"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	LastDeleted    int        `json:"last_deleted"`
	LastFailed     int        `json:"last_failed"`
	BytesReclaimed int64      `json:"bytes_reclaimed"`
}

// CacheStatus reports selection cache counters.
type CacheStatus struct {
	Hits        int64      `json:"hits"`
	Misses      int64      `json:"misses"`
	Evictions   int64      `json:"evictions"`
	Mismatches  int64      `json:"mismatches"`
	TotalKeys   int64      `json:"total_keys"`
	LastCleanup *time.Time `json:"last_cleanup,omitempty"`
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	resp := StatusResponse{
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Root:          h.root,
	}

	// A transient walk failure leaves the count at zero rather than
	// failing the whole snapshot; the study endpoints surface walk
	// errors properly.
	if dirs, err := h.discoverStudies(); err == nil {
		resp.Studies = len(dirs)
	}

	if h.watcher != nil {
		stats := h.watcher.GetStats()
		resp.Watcher = &WatcherStatus{
			Running:       h.watcher.IsRunning(),
			EventsSeen:    stats.EventsSeen,
			StudiesQueued: stats.StudiesQueued,
			LastEvent:     timePtr(stats.LastEvent),
		}
	}
	if h.syncLoop != nil {
		stats := h.syncLoop.GetStats()
		resp.Sync = &SyncStatus{
			Running:    h.syncLoop.IsRunning(),
			LastRun:    timePtr(stats.LastRun),
			LastSynced: stats.LastSynced,
			LastFailed: stats.LastFailed,
		}
	}
	if h.sweepLoop != nil {
		stats := h.sweepLoop.GetStats()
		resp.Sweep = &SweepStatus{
			Running:        h.sweepLoop.IsRunning(),
			LastRun:        timePtr(stats.LastRun),
			LastDeleted:    stats.LastDeleted,
			LastFailed:     stats.LastFailed,
			BytesReclaimed: stats.TotalBytesReclaimed,
		}
	}
	if h.cache != nil {
		stats := h.cache.GetStats()
		resp.Cache = &CacheStatus{
			Hits:        stats.Hits,
			Misses:      stats.Misses,
			Evictions:   stats.Evictions,
			Mismatches:  stats.Mismatches,
			TotalKeys:   stats.TotalKeys,
			LastCleanup: timePtr(stats.LastCleanup),
		}
	}

	rw.Success(resp)
}

// timePtr maps the zero time to nil so "never happened" serializes as
// an absent field instead of 0001-01-01.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
