// Package logging builds the process logger and records timed operations.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to w, or a console logger in development.
// An unknown level falls back to info.
func New(w io.Writer, env, level string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// Operation logs the outcome of a named unit of work started at start.
func Operation(logger zerolog.Logger, name string, start time.Time, err error) {
	evt := logger.Info()
	if err != nil {
		evt = logger.Error().Err(err)
	}
	evt.
		Str("operation", name).
		Dur("latency", time.Since(start)).
		Msg("operation finished")
}
