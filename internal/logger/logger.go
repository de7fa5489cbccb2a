package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide structured logger, configured once by Initialize.
var Log zerolog.Logger

// Initialize configures the global logger. Pretty enables a human-readable
// console writer for local development; otherwise output is unix-timestamp
// JSON suitable for log aggregation in production.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "headlog").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// Ingest returns a logger scoped to the ingestion pipeline.
func Ingest() *zerolog.Logger {
	l := Log.With().Str("component", "ingest").Logger()
	return &l
}

// Sync returns a logger scoped to the upstream sync worker.
func Sync() *zerolog.Logger {
	l := Log.With().Str("component", "sync").Logger()
	return &l
}

// Housekeeping returns a logger scoped to the retention scheduler.
func Housekeeping() *zerolog.Logger {
	l := Log.With().Str("component", "housekeeping").Logger()
	return &l
}

// DBLogger returns a logger scoped to database/migration events.
func DBLogger() *zerolog.Logger {
	l := Log.With().Str("component", "database").Logger()
	return &l
}

// HTTP returns a logger scoped to the HTTP surface.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
