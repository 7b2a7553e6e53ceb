package kernel

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger: JSON in production, a console
// writer otherwise.
func NewLogger(level string, production bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if production {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Caller().Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(lvl).With().Timestamp().Caller().Logger()
}
