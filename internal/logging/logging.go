// Package logging configures the zerolog logger shared by the server and
// the terminal client.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It discards output until Init runs.
var Logger = zerolog.Nop()

// Config holds logger configuration.
type Config struct {
	Level  zerolog.Level
	Output io.Writer
	// Pretty enables human-readable console output.
	Pretty bool
}

// Init installs a new global logger and returns it.
func Init(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.Kitchen}
	}

	Logger = zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()
	return Logger
}

// ParseLevel parses a level name (case-insensitive). Unknown names map to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "OFF", "DISABLED":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
