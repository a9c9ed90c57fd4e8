// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package backup

import (
	"context"
	"errors"
	"io/fs"
	"reflect"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// stubClient is a canned Client for breaker tests. Setting err makes
// every call fail; statErr overrides only Stat.
type stubClient struct {
	statInfo FileInfo
	statErr  error
	err      error
	files    []string
	copyN    int64
	calls    int
}

func (c *stubClient) Exists(context.Context, string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return true, nil
}

func (c *stubClient) Stat(context.Context, string) (FileInfo, error) {
	c.calls++
	if c.statErr != nil {
		return FileInfo{}, c.statErr
	}
	if c.err != nil {
		return FileInfo{}, c.err
	}
	return c.statInfo, nil
}

func (c *stubClient) Upload(context.Context, string, string) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.copyN, nil
}

func (c *stubClient) Download(context.Context, string, string) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.copyN, nil
}

func (c *stubClient) MkdirAll(context.Context, string) error {
	c.calls++
	return c.err
}

func (c *stubClient) List(context.Context, string) ([]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.files, nil
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	stub := &stubClient{err: errors.New("mount gone")}
	breaker := NewBreakerClient(stub)
	ctx := context.Background()

	// Thresholds: minimum 10 requests, 60% failure rate. Twelve
	// consecutive failures clear both with room for the trip check
	// landing on the request after the threshold.
	for i := 0; i < 12; i++ {
		_, _ = breaker.Exists(ctx, "/remote/x")
	}

	if state := breaker.State(); state != gobreaker.StateOpen {
		t.Fatalf("state after 12 failures = %v, want Open", state)
	}

	before := stub.calls
	_, err := breaker.Exists(ctx, "/remote/x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("call with open circuit = %v, want ErrOpenState", err)
	}
	if stub.calls != before {
		t.Errorf("open circuit still invoked the client: %d calls, want %d", stub.calls, before)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	stub := &stubClient{}
	breaker := NewBreakerClient(stub)
	ctx := context.Background()

	// 5 failures out of 10 requests: 50% is below the 60% trip ratio.
	for i := 0; i < 10; i++ {
		if i < 5 {
			stub.err = errors.New("mount gone")
		} else {
			stub.err = nil
		}
		_, _ = breaker.Exists(ctx, "/remote/x")
	}

	if state := breaker.State(); state != gobreaker.StateClosed {
		t.Errorf("state at 50%% failure rate = %v, want Closed", state)
	}
}

func TestBreakerIgnoresMissingFiles(t *testing.T) {
	stub := &stubClient{statErr: fs.ErrNotExist}
	breaker := NewBreakerClient(stub)
	ctx := context.Background()

	// Freshness probes of never-synced files report fs.ErrNotExist on
	// every call; a fresh sync of a large tree must not trip the
	// breaker.
	for i := 0; i < 15; i++ {
		_, err := breaker.Stat(ctx, "/remote/new-file")
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Stat = %v, want fs.ErrNotExist", err)
		}
	}

	if state := breaker.State(); state != gobreaker.StateClosed {
		t.Errorf("state after missing-file probes = %v, want Closed", state)
	}
}

func TestBreakerPassesResultsThrough(t *testing.T) {
	modTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stub := &stubClient{
		statInfo: FileInfo{Size: 42, ModTime: modTime},
		files:    []string{"a.txt", "sub/b.txt"},
		copyN:    7,
	}
	breaker := NewBreakerClient(stub)
	ctx := context.Background()

	info, err := breaker.Stat(ctx, "/remote/x")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 42 || !info.ModTime.Equal(modTime) {
		t.Errorf("Stat = %+v, want size 42 at %v", info, modTime)
	}

	files, err := breaker.List(ctx, "/remote")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(files, stub.files) {
		t.Errorf("List = %v, want %v", files, stub.files)
	}

	ok, err := breaker.Exists(ctx, "/remote/x")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true, nil", ok, err)
	}

	n, err := breaker.Upload(ctx, "/local/x", "/remote/x")
	if err != nil || n != 7 {
		t.Errorf("Upload = %d, %v, want 7, nil", n, err)
	}

	n, err = breaker.Download(ctx, "/remote/x", "/local/x")
	if err != nil || n != 7 {
		t.Errorf("Download = %d, %v, want 7, nil", n, err)
	}

	if err := breaker.MkdirAll(ctx, "/remote/dir"); err != nil {
		t.Errorf("MkdirAll: %v", err)
	}
}

func TestCastResult(t *testing.T) {
	want := FileInfo{Size: 1}
	got, err := castResult[FileInfo](&want, nil)
	if err != nil {
		t.Fatalf("castResult: %v", err)
	}
	if got.Size != 1 {
		t.Errorf("castResult = %+v, want %+v", got, want)
	}

	if _, err := castResult[FileInfo]("not a FileInfo", nil); err == nil {
		t.Error("castResult accepted a mismatched type")
	}

	boom := errors.New("boom")
	if _, err := castResult[FileInfo](nil, boom); !errors.Is(err, boom) {
		t.Errorf("castResult error passthrough = %v, want %v", err, boom)
	}
}

func TestBreakerStateConversions(t *testing.T) {
	if got := stateToFloat(gobreaker.StateClosed); got != 0 {
		t.Errorf("stateToFloat(closed) = %v, want 0", got)
	}
	if got := stateToFloat(gobreaker.StateHalfOpen); got != 1 {
		t.Errorf("stateToFloat(half-open) = %v, want 1", got)
	}
	if got := stateToFloat(gobreaker.StateOpen); got != 2 {
		t.Errorf("stateToFloat(open) = %v, want 2", got)
	}
	if got := stateToString(gobreaker.StateHalfOpen); got != "half-open" {
		t.Errorf("stateToString(half-open) = %q", got)
	}
}
