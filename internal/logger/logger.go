package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(service, level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", service).
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// Lifecycle creates a logger for session lifecycle events
func Lifecycle() *zerolog.Logger {
	l := Log.With().Str("component", "lifecycle").Logger()
	return &l
}

// Heartbeat creates a logger for heartbeat broadcaster events
func Heartbeat() *zerolog.Logger {
	l := Log.With().Str("component", "heartbeat").Logger()
	return &l
}

// Reaper creates a logger for inactive session reaper events
func Reaper() *zerolog.Logger {
	l := Log.With().Str("component", "reaper").Logger()
	return &l
}

// Ingress creates a logger for ingress mutation events
func Ingress() *zerolog.Logger {
	l := Log.With().Str("component", "ingress").Logger()
	return &l
}

// Activity creates a logger for activity tracking and persistence events
func Activity() *zerolog.Logger {
	l := Log.With().Str("component", "activity").Logger()
	return &l
}

// Directory creates a logger for LDAP directory events
func Directory() *zerolog.Logger {
	l := Log.With().Str("component", "directory").Logger()
	return &l
}

// HTTP creates a logger for HTTP request events
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
