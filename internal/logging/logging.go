package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LevelCritical sits above error for failures that abort a run.
const LevelCritical = slog.Level(12)

// New creates a console slog.Logger with provided level string.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a text logger writing to w.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	if disabled(level) {
		return slog.New(slog.DiscardHandler)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelFromString(level),
	})
	return slog.New(handler)
}

// Open returns a logger writing to file when set, otherwise to stderr.
// The returned close function releases the file.
func Open(level, file string) (*slog.Logger, func() error, error) {
	if file == "" || disabled(level) {
		return New(level), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewWithWriter(level, f), f.Close, nil
}

func disabled(level string) bool {
	return strings.EqualFold(strings.TrimSpace(level), "disabled")
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical":
		return LevelCritical
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
