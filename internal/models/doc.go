// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package models defines the shared domain types of the artifact store:
// semantic study/trial keys, trial lifecycle records, and benchmark
// measurements. Types here are plain values with no I/O; hashing of semantic
// keys delegates to internal/hashing so that every address in the system is
// derived through one canonical serialization.
package models
