package logging

import (
	"io"
	"log/slog"
)

// NewWithWriter creates a JSON slog logger on w configured at the provided
// level. The CLI passes stderr, leaving stdout to the balance report. If the
// level string is invalid it defaults to info; verbose forces debug.
func NewWithWriter(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	if verbose {
		lvl.Set(slog.LevelDebug)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// Discard returns a logger that drops all output. Components fall back to it
// when no logger is supplied.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
