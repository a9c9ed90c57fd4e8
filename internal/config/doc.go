// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package config loads and validates the application configuration.
//
// Configuration is layered with Koanf v2: built-in defaults first, then an
// optional YAML file, then environment variables, with later layers
// overriding earlier ones. The loaded Config is immutable and safe for
// concurrent reads.
//
// Environment variables map to nested keys through an explicit table
// (STUDY_ROOT -> storage.root, BACKUP_REMOTE_ROOT -> backup.remote_root);
// unmapped variables are ignored so unrelated process environment never
// leaks into the configuration.
package config
