// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package backup mirrors study artifacts to a remote root.
//
// The remote store is modelled as a second directory tree, typically a
// cloud-drive or NAS mount, reached through the Client interface. The
// Synchronizer rebases local paths onto the remote root and copies files
// only when the remote copy is absent, older, or a different size, so
// repeated syncs of unchanged artifacts perform no writes.
//
// Path classification is purely lexical: a path is remote when it lies
// under the remote root prefix. Classification never goes through the
// local-to-remote mapping, because the mapping may already have rewritten
// a local path into a remote-looking one and a no-op mapping would then
// pass for proof of an earlier backup.
//
// Backup is best-effort. Remote failures are retried with exponential
// backoff behind a circuit breaker; once retries are exhausted the
// failure surfaces as ErrRemoteSync, which callers log as a warning and
// continue. Nothing in this package ever deletes a remote file.
package backup
