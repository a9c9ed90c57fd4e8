// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package services

import (
	"context"
	"fmt"
)

// TrialWatcher interface matches the daemon watcher's lifecycle.
//
// This interface allows the wrapper to work with the watcher without
// importing the daemon package, avoiding circular dependencies.
//
// Satisfied by *daemon.Watcher.
type TrialWatcher interface {
	Start(ctx context.Context) error
	Stop()
}

// WatcherService wraps the filesystem watcher as a supervised service.
//
// The watcher follows trial metadata landing in the artifact tree and
// enqueues the owning study for backup sync.
//
// It adapts the Start/Stop lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx) to begin watching
//  2. Waits for context cancellation
//  3. Calls Stop() for graceful shutdown (waits for goroutines via WaitGroup)
//
// Example usage:
//
//	watcher, _ := daemon.NewWatcher(root, queue, cfg)
//	svc := services.NewWatcherService(watcher)
//	tree.AddStorageService(svc)
type WatcherService struct {
	watcher TrialWatcher
	name    string
}

// NewWatcherService creates a new watcher service wrapper.
func NewWatcherService(watcher TrialWatcher) *WatcherService {
	return &WatcherService{
		watcher: watcher,
		name:    "trial-watcher",
	}
}

// Serve implements suture.Service.
//
// If Start() fails (for example because the artifact root does not
// exist), the error is returned immediately, causing suture to restart
// the service according to its backoff policy.
func (s *WatcherService) Serve(ctx context.Context) error {
	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("trial watcher start failed: %w", err)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Stop blocks until the watch goroutine exits
	s.watcher.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *WatcherService) String() string {
	return s.name
}
