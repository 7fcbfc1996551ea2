// Package logging builds the service's zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ammiranda/orgtree/config"
)

// New returns a logger writing to w, or stdout when w is nil. Development
// output is human readable; every other environment logs JSON. level is a
// zerolog level name and falls back to info when empty or unknown.
func New(env config.Environment, level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if env == config.Development {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "orgtree").Logger()
}
