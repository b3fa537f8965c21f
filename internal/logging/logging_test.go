package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		" error ":  slog.LevelError,
		"CRITICAL": LevelCritical,
	}
	for input, want := range cases {
		if got := levelFromString(input); got != want {
			t.Fatalf("level %q: expected %s, got %s", input, want, got)
		}
	}
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter("WARNING", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "component=test") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestDisabledDiscardsEverything(t *testing.T) {
	t.Parallel()

	logger := NewWithWriter("DISABLED", &bytes.Buffer{})
	if logger.Enabled(context.Background(), LevelCritical) {
		t.Fatalf("disabled logger must not be enabled")
	}
}
