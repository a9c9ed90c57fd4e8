// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package metrics provides Prometheus instrumentation for the artifact
// store. All collectors register on the default registry via promauto at
// package load; the ops server exposes them on /metrics.
//
// Metric families:
//
//   - studydb_*: metadata store query durations, errors, and busy
//     retries. Busy retries rising faster than queries indicates lock
//     contention between concurrent trial processes.
//
//   - checkpoint_*: deletion outcomes (deleted, skipped_best, dry_run,
//     failed), bytes reclaimed, and best-trial transitions. The
//     skipped_best outcome counts the guard refusing to delete the
//     current best checkpoint.
//
//   - backup_*: sync operations by kind and outcome, bytes copied,
//     durations, bounded-retry attempts, and the circuit breaker state
//     (0 closed, 1 half-open, 2 open).
//
//   - selection_*: benchmark dedup group sizes, cache hits/misses per
//     tier, and cache invalidations (entries discarded because the
//     stored input digest no longer matched).
//
//   - watcher_*: filesystem events seen and debounced flushes executed.
//
//   - api_*: ops endpoint request durations and in-flight requests.
//
// Helper functions (RecordSync, RecordCheckpointDeletion, ...) keep
// label cardinality bounded: error labels are truncated, and free-form
// strings never become label values.
package metrics
