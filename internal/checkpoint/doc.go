// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package checkpoint tracks which trial holds a study's best checkpoint
// and reclaims the rest.
//
// The durable study store is the only source of truth: the best mark is
// always recomputed from recorded objective values, never trusted from
// on-disk state, so a crashed or interrupted run resumes to the same
// winner it had live. Deletion is best-effort and idempotent ("already
// gone" counts as success); the guaranteed property is that the best
// checkpoint is present, not that space is reclaimed eagerly. The keep
// set of a retention sweep is computed in full before the first
// deletion, and the current best is in it unconditionally.
package checkpoint
