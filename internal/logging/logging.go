// Package logging builds the slog.Logger every long-lived Dispatch
// component takes at construction, rather than reaching for a
// package-level global.
package logging

import (
	"log/slog"
	"os"
)

// New returns a JSON-handler logger for production binaries, tagged with
// component for every record it emits.
func New(component string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})
	return slog.New(h).With(slog.String("component", component))
}

// NewText returns a text-handler logger, an alternative to New for local
// runs where JSON output is harder to read.
func NewText(component string) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})
	return slog.New(h).With(slog.String("component", component))
}

func levelFromEnv() slog.Level {
	switch os.Getenv("DISPATCH_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
