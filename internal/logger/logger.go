// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error; anything else is info
	Pretty bool
	// Out defaults to stdout.
	Out io.Writer
}

// ParseLevel maps a config level to zerolog, falling back to info for empty or unknown names.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// New creates a structured logger tagged with app=valuesentinel and installs it as the
// global one.
func New(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: cfg.Out != nil}
	}

	l := zerolog.New(out).With().Timestamp().Str("app", "valuesentinel").Logger()
	if cfg.Pretty {
		l = l.With().Caller().Logger()
	}
	log.Logger = l
	return l
}
