// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler routes slog records into a zerolog logger. It exists for
// libraries that speak slog only, sutureslog in particular, so their
// output lands in the same stream as everything else.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr // bound via WithAttrs, keys already qualified
	prefix string      // open WithGroup qualifier, "suture." form
}

// NewSlogHandler wraps the global zerolog logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// NewSlogHandlerWithLogger wraps a specific zerolog logger.
//
//nolint:gocritic // hugeParam: zerolog loggers are value types by contract
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// Enabled reports whether records at level would reach the backend.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= zerologLevel(level)
}

// Handle writes one record through zerolog.
//
//nolint:gocritic // hugeParam: slog.Record comes by value from the interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))

	for _, attr := range h.attrs {
		event = writeAttr(event, attr, "")
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = writeAttr(event, attr, h.prefix)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs binds attrs permanently. Keys are qualified with the open
// group prefix now; later WithGroup calls must not reach back.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(bound, h.attrs)
	for _, a := range attrs {
		bound = append(bound, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}

	return &SlogHandler{logger: h.logger, attrs: bound, prefix: h.prefix}
}

// WithGroup qualifies the keys of all later attributes with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{logger: h.logger, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// writeAttr appends one attribute to the event under prefix, flattening
// nested groups into dotted keys.
func writeAttr(event *zerolog.Event, attr slog.Attr, prefix string) *zerolog.Event {
	if attr.Equal(slog.Attr{}) {
		return event
	}

	val := attr.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		sub := prefix
		if attr.Key != "" {
			sub += attr.Key + "."
		}
		for _, ga := range val.Group() {
			event = writeAttr(event, ga, sub)
		}
		return event
	}

	key := prefix + attr.Key
	switch val.Kind() {
	case slog.KindBool:
		return event.Bool(key, val.Bool())
	case slog.KindDuration:
		return event.Dur(key, val.Duration())
	case slog.KindFloat64:
		return event.Float64(key, val.Float64())
	case slog.KindInt64:
		return event.Int64(key, val.Int64())
	case slog.KindString:
		return event.Str(key, val.String())
	case slog.KindTime:
		return event.Time(key, val.Time())
	case slog.KindUint64:
		return event.Uint64(key, val.Uint64())
	default:
		return event.Interface(key, val.Any())
	}
}

// zerologLevel buckets an slog level into zerolog's scale. slog levels
// are sparse integers, so the mapping goes by range, not equality.
func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewSlogLogger returns an slog.Logger backed by the global zerolog
// logger.
//
//	slogger := logging.NewSlogLogger()
//	hook := (&sutureslog.Handler{Logger: slogger}).MustHook()
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}
