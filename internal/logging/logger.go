// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level that gets emitted. Defaults to info.
	Level string

	// Format selects json or console output. Defaults to json.
	Format string

	// Caller attaches the emitting file:line to every event.
	Caller bool

	// Timestamp attaches an RFC3339 timestamp to every event.
	Timestamp bool

	// Output receives all log writes. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the daemon-oriented defaults: info level, JSON
// output, timestamps on, caller off.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

//nolint:gochecknoinits // lines logged before Init() must still land somewhere
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"
	zerolog.CallerFieldName = "caller"

	apply(DefaultConfig())
}

// Init reconfigures the package logger. Called from main() once config
// is loaded; calling it again simply swaps the configuration.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	apply(cfg)
}

// apply rebuilds the logger from cfg. Callers hold mu.
func apply(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	base := zerolog.New(buildWriter(cfg))
	with := base.With()
	if cfg.Timestamp {
		with = with.Timestamp()
	}
	if cfg.Caller {
		with = with.Caller()
	}
	log = with.Logger()
}

// buildWriter picks the output writer for cfg, wrapping it in a console
// formatter when requested.
func buildWriter(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

// levelNames maps accepted level strings to zerolog levels. Unknown
// names fall back to info rather than failing startup.
var levelNames = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"panic":    zerolog.PanicLevel,
	"disabled": zerolog.Disabled,
}

func parseLevel(level string) zerolog.Level {
	if l, ok := levelNames[strings.ToLower(level)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// global returns the current logger under the read lock.
func global() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Logger returns the package logger for direct zerolog use.
func Logger() zerolog.Logger { return global() }

// SetLogger swaps the package logger wholesale. Tests use this to
// capture output without touching global level state.
//
//nolint:gocritic // zerolog.Logger is passed by value throughout
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With starts a child logger context on the package logger.
//
//	sweep := logging.With().Str("component", "sweep").Logger()
func With() zerolog.Context { return global().With() }

// Debug starts a debug-level event.
func Debug() *zerolog.Event { l := global(); return l.Debug() }

// Info starts an info-level event.
func Info() *zerolog.Event { l := global(); return l.Info() }

// Warn starts a warn-level event.
func Warn() *zerolog.Event { l := global(); return l.Warn() }

// Error starts an error-level event.
func Error() *zerolog.Event { l := global(); return l.Error() }

// Err starts an error-level event carrying err, or info-level when err
// is nil, matching zerolog's Err semantics.
func Err(err error) *zerolog.Event { l := global(); return l.Err(err) }

// GetLevel reports the current global level.
func GetLevel() zerolog.Level { return zerolog.GlobalLevel() }

// SetLevelString changes the global level without rebuilding writers,
// for runtime verbosity flips like the CLI's --verbose flag.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// NewTestLogger returns an independent JSON logger writing to w,
// detached from the package logger and its global level.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewConsoleTestLogger is NewTestLogger with console formatting and
// colors off, for eyeballing output while developing a test.
func NewConsoleTestLogger(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	return zerolog.New(cw).With().Timestamp().Logger()
}
