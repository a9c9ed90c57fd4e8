// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package api

import (
	"net/http"
	"os"
	"time"
)

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 whenever the process is alive, regardless of whether the
// artifact root or any background loop is healthy.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Ready means the artifact root is reachable and every wired background
// loop is actually running; subsystems that were never wired don't
// count against readiness. Returns 503 with the per-check results when
// not ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rootOK := h.rootAccessible()
	ready := rootOK

	checks := map[string]interface{}{
		"root_accessible": rootOK,
	}
	if h.watcher != nil {
		running := h.watcher.IsRunning()
		checks["watcher_running"] = running
		ready = ready && running
	}
	if h.syncLoop != nil {
		running := h.syncLoop.IsRunning()
		checks["sync_loop_running"] = running
		ready = ready && running
	}
	if h.sweepLoop != nil {
		running := h.sweepLoop.IsRunning()
		checks["sweep_loop_running"] = running
		ready = ready && running
	}
	checks["ready_to_serve"] = ready
	checks["uptime_seconds"] = time.Since(h.startTime).Seconds()

	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, CodeServiceUnavailable, "not ready", checks)
		return
	}
	rw.Success(checks)
}

func (h *Handler) rootAccessible() bool {
	info, err := os.Stat(h.root)
	return err == nil && info.IsDir()
}
