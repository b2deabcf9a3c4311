package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger tagged with the service name and configured at the
// provided level. If the level string is invalid it defaults to info.
func New(service, level string) *slog.Logger {
	return newWithWriter(os.Stdout, service, level)
}

func newWithWriter(w io.Writer, service, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
