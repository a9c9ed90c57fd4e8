// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

// Package logging provides centralized zerolog-based structured logging for Archivarius.
//
// The package exposes a process-global logger configured once at startup and a
// set of level accessors mirroring zerolog's fluent API. Production output is
// JSON; development output is the zerolog console writer.
//
// # Quick Start
//
//	import "github.com/tomtom215/archivarius/internal/logging"
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("study", study8).Msg("study registered")
//	logging.Err(err).Str("trial", trial8).Msg("checkpoint sweep failed")
//
// # Semantic keys
//
// Failures must be reproducible from the log line alone, so every message that
// concerns a study or trial carries its short hash. The context helpers make
// that automatic across call chains:
//
//	ctx = logging.ContextWithStudy(ctx, studyHash)
//	ctx = logging.ContextWithTrial(ctx, trialHash)
//	logging.Ctx(ctx).Warn().Msg("remote sync deferred")
//	// {"level":"warn","study":"1f0c93ab","trial":"7be301d2","message":"remote sync deferred"}
//
// # slog bridge
//
// Libraries that require a *slog.Logger (suture's sutureslog event hook) use
// NewSlogLogger, which routes slog records into the global zerolog logger.
//
// Always terminate log chains with .Msg() or .Send(); an unterminated chain is
// never emitted.
package logging
