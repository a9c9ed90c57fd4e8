// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package studydb is the per-study metadata store: one SQLite file
// (study.db) inside each study folder, holding the study row, all trial
// records with objective values, and benchmark measurements.
//
// The file is shared between concurrent trial processes. Writes go
// through immediate transactions so lock acquisition happens up front;
// contention resolves via the SQLite busy timeout plus a bounded retry
// loop with exponential backoff. Readers use the same retry loop, so
// transient "database is locked" conditions surface as delay, not error.
//
// All mutating operations are idempotent upserts keyed by hash, which is
// what makes resume-after-crash safe: re-registering a trial that
// already exists converges to the same row.
package studydb
