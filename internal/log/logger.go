// Package log builds the zerolog logger shared by the server.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New logs to stdout: human-readable on a terminal, JSON lines otherwise.
func New(level string) *zerolog.Logger {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return NewWithWriter(os.Stdout, level)
	}
	return build(os.Stdout, level)
}

// NewWithWriter builds a console logger writing to out.
func NewWithWriter(out io.Writer, level string) *zerolog.Logger {
	return build(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}, level)
}

func build(out io.Writer, level string) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(out).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", "pairchat").
		Logger()
	return &logger
}

// parseLevel accepts zerolog level names in any case plus "warning".
// Unknown or empty values fall back to info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
