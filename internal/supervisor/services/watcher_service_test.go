// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// stubLoop is a test double for the Start/Stop lifecycle wrappers.
// It satisfies both TrialWatcher and MaintenanceLoop.
type stubLoop struct {
	startErr   error
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (s *stubLoop) Start(ctx context.Context) error {
	s.startCount.Add(1)
	return s.startErr
}

func (s *stubLoop) Stop() {
	s.stopCount.Add(1)
}

func TestWatcherService_Interface(t *testing.T) {
	// Verify WatcherService implements suture.Service
	var _ suture.Service = (*WatcherService)(nil)
}

func TestWatcherService_Serve(t *testing.T) {
	t.Run("stops watcher on context cancellation", func(t *testing.T) {
		loop := &stubLoop{}
		svc := NewWatcherService(loop)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after context cancellation")
		}

		if got := loop.startCount.Load(); got != 1 {
			t.Errorf("expected 1 Start call, got %d", got)
		}
		if got := loop.stopCount.Load(); got != 1 {
			t.Errorf("expected 1 Stop call, got %d", got)
		}
	})

	t.Run("returns error when start fails", func(t *testing.T) {
		startErr := errors.New("artifact root does not exist")
		loop := &stubLoop{startErr: startErr}
		svc := NewWatcherService(loop)

		err := svc.Serve(context.Background())
		if !errors.Is(err, startErr) {
			t.Errorf("expected start error, got %v", err)
		}
		if got := loop.stopCount.Load(); got != 0 {
			t.Errorf("Stop should not be called after failed Start, got %d calls", got)
		}
	})
}

func TestWatcherService_String(t *testing.T) {
	svc := NewWatcherService(&stubLoop{})

	if svc.String() != "trial-watcher" {
		t.Errorf("expected 'trial-watcher', got %q", svc.String())
	}
}
