// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramData reads a histogram's protobuf payload. testutil.ToFloat64
// only handles counters and gauges, so sample counts and sums come from
// the wire type directly.
func histogramData(t *testing.T, h prometheus.Histogram) *io_prometheus_client.Histogram {
	t.Helper()

	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetHistogram()
}

func TestRecordStudyDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		duration  time.Duration
		err       error
	}{
		{"fast select", "select_trial", 2 * time.Millisecond, nil},
		{"slow upsert", "upsert_trial", 800 * time.Millisecond, nil},
		{"failed query", "set_best", 5 * time.Millisecond, errors.New("database is locked")},
	}

	child := StudyDBQueryDuration.WithLabelValues("select_trial").(prometheus.Histogram)
	before := histogramData(t, child).GetSampleCount()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordStudyDBQuery(tt.operation, tt.duration, tt.err)
		})
	}

	if got := histogramData(t, child).GetSampleCount(); got != before+1 {
		t.Errorf("select_trial samples = %d, want %d", got, before+1)
	}
}

func TestRecordStudyDBRetry(t *testing.T) {
	before := testutil.ToFloat64(StudyDBBusyRetries)
	RecordStudyDBRetry()
	RecordStudyDBRetry()
	if got := testutil.ToFloat64(StudyDBBusyRetries); got != before+2 {
		t.Errorf("StudyDBBusyRetries = %v, want %v", got, before+2)
	}
}

func TestRecordCheckpointDeletion(t *testing.T) {
	bytesBefore := testutil.ToFloat64(CheckpointBytesReclaimed)

	RecordCheckpointDeletion("deleted", 4096)
	RecordCheckpointDeletion("skipped_best", 0)
	RecordCheckpointDeletion("failed", 0)

	if got := testutil.ToFloat64(CheckpointBytesReclaimed); got != bytesBefore+4096 {
		t.Errorf("CheckpointBytesReclaimed = %v, want %v", got, bytesBefore+4096)
	}
	if got := testutil.ToFloat64(CheckpointDeletions.WithLabelValues("skipped_best")); got < 1 {
		t.Errorf("CheckpointDeletions[skipped_best] = %v, want at least 1", got)
	}
}

func TestRecordSync(t *testing.T) {
	before := testutil.ToFloat64(SyncOperations.WithLabelValues("upload", "ok"))

	RecordSync("upload", 1<<20, 120*time.Millisecond, nil)
	RecordSync("upload", 0, 10*time.Millisecond, errors.New("remote unavailable"))
	RecordSync("download", 2048, 40*time.Millisecond, nil)
	RecordSyncSkip("skip_remote")
	RecordSyncSkip("skip_fresh")
	RecordSyncRetry()

	if got := testutil.ToFloat64(SyncOperations.WithLabelValues("upload", "ok")); got != before+1 {
		t.Errorf("SyncOperations[upload,ok] = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(SyncBytes.WithLabelValues("upload")); got < 1<<20 {
		t.Errorf("SyncBytes[upload] = %v, want at least %v", got, 1<<20)
	}
}

func TestBreakerMetrics(t *testing.T) {
	BreakerState.Set(2)
	if got := testutil.ToFloat64(BreakerState); got != 2 {
		t.Errorf("BreakerState = %v, want 2", got)
	}
	BreakerState.Set(0)
	BreakerTransitions.WithLabelValues("open", "half-open").Inc()
}

func TestCacheMetrics(t *testing.T) {
	missesBefore := testutil.ToFloat64(CacheMisses)
	invalidationsBefore := testutil.ToFloat64(CacheInvalidations)

	RecordCacheHit("memory")
	RecordCacheHit("disk")
	RecordCacheMiss()
	RecordCacheInvalidation()

	if got := testutil.ToFloat64(CacheMisses); got != missesBefore+1 {
		t.Errorf("CacheMisses = %v, want %v", got, missesBefore+1)
	}
	if got := testutil.ToFloat64(CacheInvalidations); got != invalidationsBefore+1 {
		t.Errorf("CacheInvalidations = %v, want %v", got, invalidationsBefore+1)
	}
}

func TestRecordBenchmarkGroup(t *testing.T) {
	before := histogramData(t, BenchmarkGroupSize)

	for _, size := range []int{1, 3, 12} {
		RecordBenchmarkGroup(size)
	}

	after := histogramData(t, BenchmarkGroupSize)
	if got := after.GetSampleCount() - before.GetSampleCount(); got != 3 {
		t.Errorf("group samples recorded = %d, want 3", got)
	}
	if got := after.GetSampleSum() - before.GetSampleSum(); got != 16 {
		t.Errorf("group size sum delta = %v, want 16", got)
	}
}

func TestWatcherMetrics(t *testing.T) {
	flushesBefore := testutil.ToFloat64(WatcherFlushes)

	RecordWatcherEvent("create")
	RecordWatcherEvent("write")
	RecordWatcherFlush()

	if got := testutil.ToFloat64(WatcherFlushes); got != flushesBefore+1 {
		t.Errorf("WatcherFlushes = %v, want %v", got, flushesBefore+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("APIActiveRequests = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("APIActiveRequests = %v, want %v", got, before)
	}
}

func TestErrorLabelTruncation(t *testing.T) {
	long := errors.New(strings.Repeat("x", 200))
	if got := truncateError(long); len(got) != maxErrorLabelLen {
		t.Errorf("truncateError() length = %d, want %d", len(got), maxErrorLabelLen)
	}
	short := errors.New("err")
	if got := truncateError(short); got != "err" {
		t.Errorf("truncateError() = %q, want %q", got, "err")
	}

	RecordStudyDBQuery("select_trial", time.Millisecond, long)
}

// Lint the whole registry for metric consistency problems.
func TestMetricGathering(t *testing.T) {
	RecordStudyDBQuery("lint_probe", time.Millisecond, nil)
	RecordAPIRequest("GET", "/healthz", "200", time.Millisecond)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Logf("metric lint problem: %s", p.Text)
	}
}
