package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Components receive children of it
// with a component attribute so log lines are attributable.
func New(environment string) *slog.Logger {
	level := slog.LevelInfo
	if environment == "development" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "tally", "env", environment)
}
