// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// defaultShutdownTimeout bounds the drain window when the caller passes
// no explicit timeout.
const defaultShutdownTimeout = 10 * time.Second

// HTTPServer is the slice of *http.Server the wrapper needs. Tests
// substitute a double; production hands in the real server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts the ops API server's blocking
// ListenAndServe to suture's run-until-context-cancel contract. When
// the serve context ends, in-flight requests get a bounded drain window
// before the service reports back to the supervisor.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server for supervision. A non-positive
// shutdownTimeout falls back to defaultShutdownTimeout.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. A crash or failed bind comes back as
// an error so the supervisor restarts the service; a context-driven
// shutdown returns ctx.Err() so it does not.
func (s *HTTPServerService) Serve(ctx context.Context) error {
	// Buffered so the listener goroutine can always deliver its result
	// and exit, even when Serve has already returned.
	closed := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		closed <- err
	}()

	select {
	case err := <-closed:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		// Closed without Shutdown being asked for; treat as clean.
		return nil
	case <-ctx.Done():
	}

	if err := s.drain(); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	<-closed
	return ctx.Err()
}

// drain runs the graceful shutdown on a fresh context; the serve
// context is already cancelled and would abort Shutdown immediately.
func (s *HTTPServerService) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// String names the service in supervisor event logs.
func (s *HTTPServerService) String() string { return "ops-api" }
