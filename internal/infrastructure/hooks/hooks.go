package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrHookFailed means a hook exited with a non-zero status.
var ErrHookFailed = errors.New("non-zero exit code from hook")

// Run executes commands through the shell in order and stops at the first
// failing one.
func Run(ctx context.Context, stage string, commands []string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hooks", "stage", stage)

	for _, command := range commands {
		var output bytes.Buffer
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdout = &output
		cmd.Stderr = &output

		err := cmd.Run()
		if text := strings.TrimSpace(output.String()); text != "" {
			logger.Info("hook output", "hook", command, "output", text)
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			logger.Error("hook failed", "hook", command, "exit_code", exitErr.ExitCode())
			return fmt.Errorf("%w: %s hook %q exited with %d", ErrHookFailed, stage, command, exitErr.ExitCode())
		case err != nil:
			return fmt.Errorf("run %s hook %q: %w", stage, command, err)
		}
		logger.Debug("hook finished", "hook", command)
	}
	return nil
}
