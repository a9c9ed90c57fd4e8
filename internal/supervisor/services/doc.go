// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

/*
Package services maps the daemon's components onto suture.Service so
the supervision tree can run them.

Each wrapper declares the narrowest interface it needs (TrialWatcher,
MaintenanceLoop, HTTPServer) rather than importing daemon types, which
keeps dependencies one-way and lets tests substitute tiny fakes.

Two lifecycle shapes get translated. The watcher and the maintenance
loops expose Start/Stop, so their Serve is start, park on ctx.Done(),
stop:

	if err := s.loop.Start(ctx); err != nil {
	    return err
	}
	<-ctx.Done()
	s.loop.Stop()
	return ctx.Err()

The ops API server exposes blocking ListenAndServe, so HTTPServerService
listens in a goroutine and drains in-flight requests on a fresh
bounded context once the serve context ends (see http_service.go).

Return values drive the supervisor: an error restarts the service, nil
or the context's error ends it cleanly. Every wrapper implements
fmt.Stringer so suture's event log names the service, not the type.
Serve is single-shot per instance; the supervisor is the only caller.
*/
package services
