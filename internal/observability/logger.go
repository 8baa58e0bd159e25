// Package observability provides the structured logger and Prometheus
// metrics shared by the allocator, buffers, workload and sink.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
	// Output is stdout, stderr or discard. Writer, when set, overrides it.
	Output string
	Writer io.Writer
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func outputWriter(config LoggingConfig) io.Writer {
	if config.Writer != nil {
		return config.Writer
	}
	switch strings.ToLower(config.Output) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// NewLogger creates a new structured logger based on configuration.
// The format is json unless text is requested.
func NewLogger(config LoggingConfig) *slog.Logger {
	output := outputWriter(config)
	opts := &slog.HandlerOptions{
		Level: ParseLevel(config.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}
