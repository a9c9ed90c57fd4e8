// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behavior for every supervisor in the tree.
// All four supervisors share the same parameters; zero fields fall back
// to the values reported by DefaultTreeConfig.
type TreeConfig struct {
	FailureThreshold float64       // restarts tolerated before backoff kicks in
	FailureDecay     float64       // seconds for the failure count to halve
	FailureBackoff   time.Duration // pause once the threshold is crossed
	ShutdownTimeout  time.Duration // grace period per service on stop
}

// DefaultTreeConfig matches suture's documented defaults: five failures,
// a 30 second decay, 15 seconds of backoff, a 10 second stop budget.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	def := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = def.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = def.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// spec renders the config as a suture.Spec. The event hook belongs on
// the root supervisor only; children pass nil and inherit it when they
// are added underneath.
func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the daemon's root supervisor plus one child
// supervisor per layer:
//
//	storage     - the filesystem watcher on the artifact tree
//	maintenance - the periodic backup sync and retention sweep loops
//	api         - the operational HTTP endpoint
//
// Layers isolate failures from each other: a crashing sweep loop is
// restarted inside maintenance-layer without disturbing the watcher,
// and the health endpoint keeps answering either way.
type SupervisorTree struct {
	root        *suture.Supervisor
	storage     *suture.Supervisor
	maintenance *suture.Supervisor
	api         *suture.Supervisor
	config      TreeConfig
}

// NewSupervisorTree builds the three-layer tree. Supervisor events
// (starts, crashes, backoff) are reported through logger via sutureslog.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// MustHook has a pointer receiver, hence the address-of.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{
		root:        suture.New("archivarius", config.spec(hook)),
		storage:     suture.New("storage-layer", config.spec(nil)),
		maintenance: suture.New("maintenance-layer", config.spec(nil)),
		api:         suture.New("api-layer", config.spec(nil)),
		config:      config,
	}
	for _, layer := range []*suture.Supervisor{t.storage, t.maintenance, t.api} {
		t.root.Add(layer)
	}
	return t, nil
}

// Root exposes the root supervisor for callers that need suture
// operations the tree does not wrap.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddStorageService places svc under the storage layer. The trial
// metadata watcher lives here.
func (t *SupervisorTree) AddStorageService(svc suture.Service) suture.ServiceToken {
	return t.storage.Add(svc)
}

// AddMaintenanceService places svc under the maintenance layer. The
// sync and sweep loops live here.
func (t *SupervisorTree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// AddAPIService places svc under the API layer. The operational HTTP
// server lives here.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine. The returned
// channel delivers Serve's result exactly once.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services still running after shutdown
// exceeded ShutdownTimeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
