// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package version provides centralized version information for
// Archivarius. All packages reference a single source of truth for
// version info.
package version

// These variables can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/tomtom215/archivarius/internal/version.Version=1.2.0 \
//	  -X github.com/tomtom215/archivarius/internal/version.Commit=abc123"
var (
	// Version is the semantic version of Archivarius.
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time).
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time).
	BuildDate = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information.
func Full() string {
	return "Archivarius version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
