// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a logger for the given environment. Development gets a
// human readable console writer; everything else emits JSON lines.
func New(appEnv, level string) zerolog.Logger {
	return newWithWriter(os.Stdout, appEnv, level)
}

func newWithWriter(w io.Writer, appEnv, level string) zerolog.Logger {
	lvl := parseLevel(level, appEnv)

	if appEnv == "development" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "prompt-engine").
		Logger()
}

func parseLevel(level, appEnv string) zerolog.Level {
	if level != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && lvl != zerolog.NoLevel {
			return lvl
		}
	}
	if appEnv == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// OrNop returns l, or a disabled logger when l is nil.
func OrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
