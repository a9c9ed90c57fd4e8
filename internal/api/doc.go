// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package api serves the daemon's operational HTTP surface: liveness
// and readiness probes, Prometheus metrics, and a small read-only JSON
// API over the study tree (daemon status, study listings, trial
// listings). Routes are grouped with chi; every group carries its own
// rate limiter and all responses share one envelope shape.
//
// The API is read-only on purpose. Training runs own their studies
// through the filesystem and the per-study databases; the HTTP layer
// only reports on what the daemon can see.
package api
