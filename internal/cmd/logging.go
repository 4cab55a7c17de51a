package cmd

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newLogger builds the process logger. Logs always go to stderr so that
// stdout carries only command output (safepost scan text --json | jq).
func newLogger(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

func logLevelFor(name string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func setupLogging() {
	zerolog.SetGlobalLevel(logLevelFor(logLevel, verbose))
	log.Logger = newLogger(os.Stderr, logFormat)
}
