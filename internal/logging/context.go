// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey keeps this package's context values from colliding with
// other packages'.
type contextKey string

const (
	ctxKeyStudy     contextKey = "study"      // study short hash
	ctxKeyTrial     contextKey = "trial"      // trial short hash
	ctxKeyRequestID contextKey = "request_id" // ops server request ID
	ctxKeyLogger    contextKey = "logger"     // pre-configured logger
)

// shortHashLen is the number of hash characters attached to log events.
// Matches the folder-name token length used by path resolution.
const shortHashLen = 8

// shorten truncates a full key hash to its log token.
func shorten(hash string) string {
	if len(hash) > shortHashLen {
		return hash[:shortHashLen]
	}
	return hash
}

// ctxString reads a string value off the context, empty when absent.
func ctxString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextWithStudy returns a context carrying the study key hash.
// Every log emitted through Ctx with this context includes the study token,
// keeping failures reproducible from the log line alone.
func ContextWithStudy(ctx context.Context, studyHash string) context.Context {
	return context.WithValue(ctx, ctxKeyStudy, shorten(studyHash))
}

// ContextWithTrial returns a context carrying the trial key hash.
func ContextWithTrial(ctx context.Context, trialHash string) context.Context {
	return context.WithValue(ctx, ctxKeyTrial, shorten(trialHash))
}

// StudyFromContext reports the study token, empty when none was attached.
func StudyFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyStudy)
}

// TrialFromContext reports the trial token, empty when none was attached.
func TrialFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyTrial)
}

// GenerateRequestID mints a request ID. A full UUID keeps IDs unique
// across restarts and log aggregation.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID attaches a request ID for the ops server path.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext reports the request ID, empty when none was attached.
func RequestIDFromContext(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRequestID)
}

// ContextWithLogger carries a pre-configured logger across a service
// boundary, overriding the global logger for everything downstream.
//
//nolint:gocritic // hugeParam: zerolog loggers are value types by contract
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// LoggerFromContext resolves the logger for a context, falling back to
// the global one.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(ctxKeyLogger).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger with the context's study/trial tokens and request
// ID attached. This is the recommended way to log inside lifecycle and
// sync operations.
//
//	logging.Ctx(ctx).Info().Msg("checkpoint registered")
//	// {"level":"info","study":"1f0c93ab","trial":"7be301d2","message":"checkpoint registered"}
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := CtxWith(ctx).Logger()
	return &logger
}

// CtxWith returns a logger context builder with study/trial tokens pre-populated.
// Use this when additional fields are needed beyond the semantic keys.
//
//	logger := logging.CtxWith(ctx).Str("path", p).Logger()
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := LoggerFromContext(ctx).With()

	if study := StudyFromContext(ctx); study != "" {
		logCtx = logCtx.Str("study", study)
	}
	if trial := TrialFromContext(ctx); trial != "" {
		logCtx = logCtx.Str("trial", trial)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}

	return logCtx
}

// CtxDebug starts a debug level message with semantic key fields.
func CtxDebug(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Debug()
}

// CtxInfo starts an info level message with semantic key fields.
func CtxInfo(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Info()
}

// CtxWarn starts a warn level message with semantic key fields.
func CtxWarn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}

// CtxErr starts an error level message with semantic key fields and the error.
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	return Ctx(ctx).Err(err)
}

// WithComponent derives a logger tagged with the subsystem name.
//
//	sweepLogger := logging.WithComponent("sweep")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
