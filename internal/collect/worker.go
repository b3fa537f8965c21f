package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/service"
)

// WorkerSpec is everything one source worker needs.
type WorkerSpec struct {
	Target     config.ServiceConfig
	Main       config.MainConfig
	Descriptor service.Descriptor
	Secrets    service.Secrets
	Links      *service.Links
	Client     *http.Client
	Logger     *slog.Logger
}

// RunWorker runs one target's adapter to completion, emitting each record
// tagged with its target. Errors, aborts and panics are contained and
// reported as an error completion; the worker never touches the store.
func RunWorker(ctx context.Context, spec WorkerSpec, emit func(domain.Issue)) (completion domain.Completion) {
	target := spec.Target.Target
	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("target", target, "service", spec.Target.Service)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
			completion = domain.Completion{Status: domain.CompletionError, Target: target}
		}
	}()

	count, err := runWorker(ctx, spec, logger, emit)
	if err != nil {
		if errors.Is(err, service.ErrAbort) {
			logger.Error("worker aborted", "error", err)
		} else {
			logger.Error("worker failed", "error", err)
		}
		return domain.Completion{Status: domain.CompletionError, Target: target}
	}

	logger.Debug("worker finished", "issues", count)
	return domain.Completion{Status: domain.CompletionOK, Target: target, Count: count}
}

func runWorker(ctx context.Context, spec WorkerSpec, logger *slog.Logger, emit func(domain.Issue)) (int, error) {
	if spec.Descriptor.New == nil {
		return 0, fmt.Errorf("service %s has no constructor", spec.Target.Service)
	}

	svc, err := spec.Descriptor.New(service.Env{
		Config:  spec.Target,
		Main:    spec.Main,
		Secrets: spec.Secrets,
		Client:  spec.Client,
		Links:   spec.Links,
		Logger:  logger,
	})
	if err != nil {
		return 0, fmt.Errorf("build service: %w", err)
	}

	count := 0
	err = svc.Issues(ctx, func(issue service.Issue) error {
		record, err := BuildRecord(issue, spec.Target)
		if err != nil {
			return fmt.Errorf("build record: %w", err)
		}
		record[domain.FieldTarget] = spec.Target.Target
		emit(record)
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("pull issues: %w", err)
	}
	return count, nil
}
