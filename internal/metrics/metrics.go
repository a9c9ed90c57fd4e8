// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Study metadata store metrics
	StudyDBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studydb_query_duration_seconds",
			Help:    "Duration of study metadata store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StudyDBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studydb_query_errors_total",
			Help: "Total number of study metadata store query errors",
		},
		[]string{"operation", "error_type"},
	)

	StudyDBBusyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studydb_busy_retries_total",
			Help: "Total number of retries caused by metadata store lock contention",
		},
	)

	// Checkpoint lifecycle metrics
	CheckpointDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_deletions_total",
			Help: "Total number of checkpoint deletion attempts by outcome",
		},
		[]string{"outcome"}, // "deleted", "skipped_best", "dry_run", "failed", "already_gone"
	)

	CheckpointBytesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoint_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by checkpoint deletions",
		},
	)

	CheckpointBestTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoint_best_transitions_total",
			Help: "Total number of best-trial changes within studies",
		},
	)

	RetentionSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_retention_sweeps_total",
			Help: "Total number of retention sweeps by outcome",
		},
		[]string{"outcome"}, // "completed", "failed"
	)

	// Backup metrics
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_sync_operations_total",
			Help: "Total number of backup operations by kind and outcome",
		},
		[]string{"operation", "outcome"}, // operation: "upload", "download", "skip_remote", "skip_fresh", "skip_absent"
	)

	SyncBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_sync_bytes_total",
			Help: "Total bytes copied by backup operations",
		},
		[]string{"operation"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_sync_duration_seconds",
			Help:    "Duration of backup sync operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"operation"},
	)

	SyncRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backup_sync_retries_total",
			Help: "Total number of backup retry attempts after transient failures",
		},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_breaker_state",
			Help: "Circuit breaker state of the remote storage client (0 closed, 1 half-open, 2 open)",
		},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	// Benchmark selection metrics
	BenchmarkGroupSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "selection_benchmark_group_size",
			Help:    "Number of benchmark records per (study, trial, config) group",
			Buckets: []float64{1, 2, 3, 5, 10, 20},
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selection_cache_hits_total",
			Help: "Total number of selection cache hits by tier",
		},
		[]string{"tier"}, // "memory", "disk"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selection_cache_misses_total",
			Help: "Total number of selection cache misses",
		},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selection_cache_invalidations_total",
			Help: "Total number of cache entries discarded due to input digest mismatch",
		},
	)

	// Watcher metrics
	WatcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_events_total",
			Help: "Total number of filesystem events observed by kind",
		},
		[]string{"kind"},
	)

	WatcherFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_debounced_flushes_total",
			Help: "Total number of debounced event batches processed",
		},
	)

	// Operational API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of ops endpoint requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight ops endpoint requests",
		},
	)
)

// maxErrorLabelLen bounds error label cardinality.
const maxErrorLabelLen = 50

// RecordStudyDBQuery records a metadata store query with its outcome.
func RecordStudyDBQuery(operation string, duration time.Duration, err error) {
	StudyDBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StudyDBQueryErrors.WithLabelValues(operation, truncateError(err)).Inc()
	}
}

// RecordStudyDBRetry records one retry caused by lock contention.
func RecordStudyDBRetry() {
	StudyDBBusyRetries.Inc()
}

// RecordCheckpointDeletion records a deletion attempt and, when bytes
// were reclaimed, the reclaimed volume.
func RecordCheckpointDeletion(outcome string, bytes int64) {
	CheckpointDeletions.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		CheckpointBytesReclaimed.Add(float64(bytes))
	}
}

// RecordBestTransition records a change of a study's best trial.
func RecordBestTransition() {
	CheckpointBestTransitions.Inc()
}

// RecordRetentionSweep records a completed or failed retention sweep.
func RecordRetentionSweep(err error) {
	if err != nil {
		RetentionSweeps.WithLabelValues("failed").Inc()
		return
	}
	RetentionSweeps.WithLabelValues("completed").Inc()
}

// RecordSync records one backup operation.
func RecordSync(operation string, bytes int64, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SyncOperations.WithLabelValues(operation, outcome).Inc()
	SyncDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if bytes > 0 {
		SyncBytes.WithLabelValues(operation).Add(float64(bytes))
	}
}

// RecordSyncSkip records a sync invocation that found nothing to do.
func RecordSyncSkip(reason string) {
	SyncOperations.WithLabelValues(reason, "ok").Inc()
}

// RecordSyncRetry records a retry attempt after a transient failure.
func RecordSyncRetry() {
	SyncRetries.Inc()
}

// RecordCacheHit records a selection cache hit on the given tier.
func RecordCacheHit(tier string) {
	CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a selection cache miss.
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// RecordCacheInvalidation records a discarded cache entry.
func RecordCacheInvalidation() {
	CacheInvalidations.Inc()
}

// RecordBenchmarkGroup records the size of a dedup group.
func RecordBenchmarkGroup(size int) {
	BenchmarkGroupSize.Observe(float64(size))
}

// RecordWatcherEvent records one observed filesystem event.
func RecordWatcherEvent(kind string) {
	WatcherEvents.WithLabelValues(kind).Inc()
}

// RecordWatcherFlush records one debounced batch flush.
func RecordWatcherFlush() {
	WatcherFlushes.Inc()
}

// RecordAPIRequest records an ops endpoint request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight ops endpoint requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// truncateError derives a bounded label value from an error.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLabelLen {
		return msg[:maxErrorLabelLen]
	}
	return msg
}
