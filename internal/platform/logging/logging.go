// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the root logger is constructed.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Pretty switches to a human-readable console writer instead of JSON,
	// intended for local development.
	Pretty bool
	// SampleN, when > 0, logs only 1 in N events at debug/info level via
	// zerolog's basic sampler (errors and above are never sampled).
	SampleN uint32
}

// New builds the root zerolog.Logger for the process.
func New(opts Options) zerolog.Logger {
	var out io.Writer = os.Stdout
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Caller().Logger()
	logger = logger.Level(parseLevel(opts.Level))

	if opts.SampleN > 1 {
		sampler := &zerolog.BasicSampler{N: opts.SampleN}
		logger = logger.Sample(&zerolog.LevelSampler{DebugSampler: sampler, InfoSampler: sampler})
	}

	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
