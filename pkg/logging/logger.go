// Package logging configures zerolog for the export service.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug adds per-page fetch events and term parse failures.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs export start and finish.
	LevelInfo LogLevel = "info"

	// LevelWarn logs throttling, cache and upstream failures.
	LevelWarn LogLevel = "warn"

	// LevelError logs aborted exports only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. An empty name is info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForExport derives the logger of one export.
func ForExport(parent zerolog.Logger, exportID, mode string) zerolog.Logger {
	return parent.With().
		Str("export_id", exportID).
		Str("mode", mode).
		Logger()
}

// Context Fields:
//   - export_id: Identifier of one export request
//   - mode: Export mode (single, consensus, moa, paired_*, term_search)
//   - offset: Cursor offset of a page fetch
//   - page: 1-based number of a page fetch
//   - total: Server-reported result size of counted modes
//   - rows: Data lines written
//   - skipped: Items skipped without output
//   - duration: Export or request duration
//   - operation: Upstream GraphQL operation name
//   - status: HTTP status of an upstream response
//   - error_class: Upstream error classification (client, server, graphql, network, decode)
