// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package main is the archivarius command line interface: artifact path
// resolution, study inspection, backup sync and restore, checkpoint
// cleanup, benchmark reporting, and the long-running maintenance
// daemon.
package main

import (
	"os"

	"github.com/tomtom215/archivarius/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
