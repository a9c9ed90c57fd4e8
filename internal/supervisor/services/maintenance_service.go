// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package services

import (
	"context"
	"fmt"
)

// MaintenanceLoop interface matches the daemon's periodic loop lifecycle.
//
// This interface allows the wrappers to work with the sync and sweep
// loops without importing the daemon package, avoiding circular
// dependencies.
//
// Satisfied by:
//   - *daemon.SyncLoop
//   - *daemon.SweepLoop
type MaintenanceLoop interface {
	Start(ctx context.Context) error
	Stop()
}

// SyncLoopService wraps the backup sync loop as a supervised service.
//
// The sync loop mirrors study artifacts to the remote backup root,
// both on a fixed interval and when the watcher reports fresh trial
// metadata.
//
// It adapts the Start/Stop lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx) to begin the loop
//  2. Waits for context cancellation
//  3. Calls Stop() for graceful shutdown (waits for goroutines via WaitGroup)
//
// Example usage:
//
//	syncLoop := daemon.NewSyncLoop(root, queue, cfg)
//	svc := services.NewSyncLoopService(syncLoop)
//	tree.AddMaintenanceService(svc)
type SyncLoopService struct {
	loop MaintenanceLoop
	name string
}

// NewSyncLoopService creates a new sync loop service wrapper.
func NewSyncLoopService(loop MaintenanceLoop) *SyncLoopService {
	return &SyncLoopService{
		loop: loop,
		name: "sync-loop",
	}
}

// Serve implements suture.Service.
//
// If Start() fails, the error is returned immediately, causing suture
// to restart the service according to its backoff policy.
func (s *SyncLoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("sync loop start failed: %w", err)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Stop blocks until the loop goroutine exits
	s.loop.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *SyncLoopService) String() string {
	return s.name
}

// SweepLoopService wraps the retention sweep loop as a supervised service.
//
// The sweep loop periodically applies the checkpoint retention policy
// across every study under the artifact root, deleting checkpoints
// that fall outside the retained set.
//
// It adapts the Start/Stop lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx) to begin the loop
//  2. Waits for context cancellation
//  3. Calls Stop() for graceful shutdown (waits for goroutines via WaitGroup)
//
// Example usage:
//
//	sweepLoop := daemon.NewSweepLoop(root, cfg)
//	svc := services.NewSweepLoopService(sweepLoop)
//	tree.AddMaintenanceService(svc)
type SweepLoopService struct {
	loop MaintenanceLoop
	name string
}

// NewSweepLoopService creates a new sweep loop service wrapper.
func NewSweepLoopService(loop MaintenanceLoop) *SweepLoopService {
	return &SweepLoopService{
		loop: loop,
		name: "sweep-loop",
	}
}

// Serve implements suture.Service.
//
// If Start() fails, the error is returned immediately, causing suture
// to restart the service according to its backoff policy.
func (s *SweepLoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("sweep loop start failed: %w", err)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Stop blocks until the loop goroutine exits
	s.loop.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *SweepLoopService) String() string {
	return s.name
}
