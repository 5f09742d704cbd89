package core

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a console logger writing to w (stderr when nil).
// An unparsable level falls back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// ComponentLogger tags a logger with the emitting component.
func ComponentLogger(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LevelFor maps the CLI verbosity flags onto a zerolog level name.
func LevelFor(configured string, verbose, quiet bool) string {
	switch {
	case verbose:
		return zerolog.DebugLevel.String()
	case quiet:
		return zerolog.WarnLevel.String()
	case configured != "":
		return configured
	default:
		return zerolog.InfoLevel.String()
	}
}
