// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/version"
)

var (
	// Persistent flags, the top layer of the configuration precedence
	// chain: flag > environment variable > config file > default.
	configFlag      string
	rootFlag        string
	environmentFlag string
	logLevelFlag    string
	logFormatFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "archivarius",
	Short: "Archivarius - HPO study artifact storage and lifecycle management",
	Long: `Archivarius manages the artifact tree of hyperparameter optimization
studies: hash-addressed output paths, per-study metadata stores, checkpoint
retention, remote backup mirroring, and champion-trial selection.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("Archivarius version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "",
		"Config file path (default: search config.yaml, /etc/archivarius/)")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Artifact root directory (overrides STUDY_ROOT)")
	rootCmd.PersistentFlags().StringVar(&environmentFlag, "environment", "",
		"Deployment environment, e.g. dev or prod (overrides ENVIRONMENT)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: json or console (overrides LOG_FORMAT)")
}

// loadConfig builds the effective configuration for one command run and
// initializes logging from it.
//
// Flags are pushed into the environment layer before loading, so
// validation sees the effective values and a flag beats a variable the
// caller's shell happens to export.
func loadConfig() (*config.Config, error) {
	flagEnv := map[string]string{
		"STUDY_ROOT":  rootFlag,
		"ENVIRONMENT": environmentFlag,
		"LOG_LEVEL":   logLevelFlag,
		"LOG_FORMAT":  logFormatFlag,
	}
	for name, value := range flagEnv {
		if value != "" {
			os.Setenv(name, value)
		}
	}

	var cfg *config.Config
	var err error
	if configFlag != "" {
		cfg, err = config.LoadFrom(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	return cfg, nil
}
