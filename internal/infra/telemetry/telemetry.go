// Package telemetry provides the structured logger every Lifespan Engine
// component logs through, wrapping zerolog behind a thin constructor so
// call sites stay short (log.Info().Str("task", name).Msg("tick")).
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared structured-logging type. It is just zerolog.Logger
// — there is no abstraction to maintain, only a consistent construction
// path so every component gets the same fields and format.
type Logger = zerolog.Logger

// New builds a human-readable console logger for interactive use
// (CLI commands, `serve` foreground output).
func New(component string) Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, component)
}

// NewJSON builds a structured JSON logger for production daemon output.
func NewJSON(component string) Logger {
	return NewWithWriter(os.Stderr, component)
}

// NewWithWriter builds a logger against an arbitrary writer — used by
// tests that want to capture log output.
func NewWithWriter(w io.Writer, component string) Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}
