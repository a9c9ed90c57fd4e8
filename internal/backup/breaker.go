// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a dead or
// flapping mount stops consuming sync attempts. While the circuit is
// open every call fails immediately with gobreaker.ErrOpenState; the
// synchronizer treats that as non-retryable and moves on.
//
// The breaker uses real time for its interval and timeout windows. That
// timing governs recovery, not data integrity; tests exercise the
// wrapped client directly when they need determinism.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps inner with a circuit breaker.
// Breaker configuration:
//   - Max 3 concurrent probes in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
//
// A missing remote file reported by Stat is a normal probe outcome
// during freshness checks and never counts as a failure.
func NewBreakerClient(inner Client) *BreakerClient {
	metrics.BreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "remote-mirror",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening remote storage circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(_ string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("Remote storage circuit state transition")
			metrics.BreakerState.Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(fromStr, toStr).Inc()
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Absent files and caller cancellation say nothing about
			// the health of the mount.
			return errors.Is(err, fs.ErrNotExist) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &BreakerClient{inner: inner, cb: cb}
}

// State returns the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

// execute runs fn under the breaker and logs rejections.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("Remote storage request rejected by circuit breaker")
		}
		return nil, err
	}
	return result, nil
}

// castResult safely type-casts a breaker result with error checking.
func castResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Exists reports remote existence with circuit breaker protection.
func (b *BreakerClient) Exists(ctx context.Context, path string) (bool, error) {
	result, err := b.execute(func() (any, error) {
		ok, err := b.inner.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

// Stat returns remote file details with circuit breaker protection.
func (b *BreakerClient) Stat(ctx context.Context, path string) (FileInfo, error) {
	typed, err := castResult[FileInfo](b.execute(func() (any, error) {
		info, err := b.inner.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
		return &info, nil
	}))
	if err != nil {
		return FileInfo{}, err
	}
	return *typed, nil
}

// Upload copies a local file to the remote with circuit breaker
// protection.
func (b *BreakerClient) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	result, err := b.execute(func() (any, error) {
		n, err := b.inner.Upload(ctx, localPath, remotePath)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int64)
	return n, nil
}

// Download copies a remote file to the local side with circuit breaker
// protection.
func (b *BreakerClient) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	result, err := b.execute(func() (any, error) {
		n, err := b.inner.Download(ctx, remotePath, localPath)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int64)
	return n, nil
}

// MkdirAll creates a remote directory with circuit breaker protection.
func (b *BreakerClient) MkdirAll(ctx context.Context, dir string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.MkdirAll(ctx, dir)
	})
	return err
}

// List enumerates remote files with circuit breaker protection.
func (b *BreakerClient) List(ctx context.Context, dir string) ([]string, error) {
	typed, err := castResult[[]string](b.execute(func() (any, error) {
		files, err := b.inner.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		return &files, nil
	}))
	if err != nil {
		return nil, err
	}
	return *typed, nil
}
