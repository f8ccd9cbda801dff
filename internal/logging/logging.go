// Package logging provides the structured logger used across the service.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog logger at the given level. Pretty enables the
// console writer for local development.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out = os.Stdout
	w := zerolog.New(out)
	if pretty {
		w = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return w.Level(lvl).With().
		Timestamp().
		Str("service", "gemini-chat").
		Logger()
}
