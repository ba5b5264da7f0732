// Package telemetry builds the process-wide zerolog.Logger and the
// Prometheus collectors a node exposes: structured logging and
// collector registration for a Raft-shaped service.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the node's root logger. level accepts zerolog's
// textual levels ("debug", "info", "warn", "error"); an unrecognized
// or empty value falls back to "info".
func NewLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(parsed).
		With().
		Timestamp().
		Logger()
}
