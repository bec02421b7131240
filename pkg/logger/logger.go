package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls the handler built by New.
type Options struct {
	Level       string
	AddSource   bool
	Environment string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns a JSON logger in prod and a text logger elsewhere. Every record
// carries the environment and the service name.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(opts.Environment) == "prod" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler).With(
		slog.String("service", "domain-proxy"),
		slog.String("environment", opts.Environment),
	)
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
