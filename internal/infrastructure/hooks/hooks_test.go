package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRunExecutesInOrder(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "trace")
	err := Run(context.Background(), "pre_import", []string{
		"echo one >> " + out,
		"echo two >> " + out,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected hook error: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if string(raw) != "one\ntwo\n" {
		t.Fatalf("unexpected trace: %q", raw)
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "trace")
	err := Run(context.Background(), "pre_import", []string{
		"exit 3",
		"echo never >> " + out,
	}, nil)
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("later hook must not run")
	}
}
