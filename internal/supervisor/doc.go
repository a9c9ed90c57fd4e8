// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

/*
Package supervisor arranges the daemon's long-running services into a
suture v4 supervision tree.

# Layout

Services are grouped into three child supervisors so a failure in one
concern cannot take down the others:

	RootSupervisor ("archivarius")
	├── StorageSupervisor ("storage-layer")
	│   └── WatcherService (filesystem watch on trial metadata)
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── SyncLoopService (periodic backup sync)
	│   └── SweepLoopService (periodic retention sweep)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (health, metrics, status)

A crashing sweep loop keeps trial metadata ingestion alive; a flapping
remote mirror never touches the health endpoint. Each child supervisor
counts failures independently, restarts its own services with suture's
decaying failure counter, and enters backoff when the threshold is
crossed. Supervisor lifecycle events flow through the sutureslog hook
into the zerolog bridge, so restarts land in the same log stream as
everything else.

# Wiring

The daemon command builds the tree once, adds services to their layers,
and blocks on it:

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStorageService(services.NewWatcherService(watcher))
	tree.AddMaintenanceService(services.NewSyncLoopService(syncLoop))
	tree.AddMaintenanceService(services.NewSweepLoopService(sweepLoop))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)

TreeConfig's zero values resolve to suture's defaults (threshold 5,
decay 30s, backoff 15s, shutdown timeout 10s). A service returning an
error is restarted; returning nil or the context's error ends it
cleanly. When shutdown hangs past the timeout,
tree.UnstoppedServiceReport() names the stuck service.

# What is not supervised

The per-study SQLite stores are not services: SQLite is an embedded
library, the loops open a store per pass and close it, and a corrupt
store needs an operator rather than a restart. The selection cache's
badger instance likewise runs its own goroutines and is closed by the
daemon after the tree has stopped.
*/
package supervisor
