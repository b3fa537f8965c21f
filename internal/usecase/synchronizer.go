package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

// SynchronizerDeps wires all driven adapters into the synchronization engine.
type SynchronizerDeps struct {
	Store    ports.TaskStore
	Notifier ports.Notifier
	Reporter ports.Reporter
	Logger   *slog.Logger
}

// SyncOptions carries the run configuration the engine reads.
type SyncOptions struct {
	Main          config.MainConfig
	Targets       []config.ServiceConfig
	Schema        domain.KeySchema
	Notifications config.NotificationConfig
	DryRun        bool
}

func (o SyncOptions) notify() bool {
	return o.Notifications.Enabled && !o.DryRun
}

// Synchronizer reconciles the collected issue stream with the task store.
type Synchronizer struct {
	store    ports.TaskStore
	notifier ports.Notifier
	reporter ports.Reporter
	logger   *slog.Logger
}

// NewSynchronizer constructs the engine.
func NewSynchronizer(deps SynchronizerDeps) *Synchronizer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Synchronizer{
		store:    deps.Store,
		notifier: deps.Notifier,
		reporter: reporter,
		logger:   logger,
	}
}

// run holds the state of one Synchronize call.
type run struct {
	opts    SyncOptions
	configs map[string]config.ServiceConfig
	active  []string
	updates *domain.UpdateSet
	seen    map[string]bool
}

// Synchronize drains items, reconciles every deduplicated issue, applies the
// resulting updates and closes tasks no longer present upstream. Only
// structural failures (missing unique key or description, store reads,
// cancellation) abort the run; per-item store writes are logged and skipped.
func (s *Synchronizer) Synchronize(ctx context.Context, items <-chan domain.Item, opts SyncOptions) (*domain.UpdateSet, error) {
	r := &run{
		opts:    opts,
		configs: make(map[string]config.ServiceConfig, len(opts.Targets)),
		updates: &domain.UpdateSet{},
		seen:    map[string]bool{},
	}
	for _, target := range opts.Targets {
		r.configs[target.Target] = target
		r.active = append(r.active, target.Target)
	}

	issues, err := s.collect(ctx, items, r)
	if err != nil {
		return nil, err
	}

	for _, issue := range issues {
		if err := s.reconcile(ctx, r, issue); err != nil {
			return nil, err
		}
	}

	s.applyNew(ctx, r)
	s.applyChanged(ctx, r)

	if err := s.close(ctx, r); err != nil {
		return nil, err
	}

	s.reportDiverged(r)
	s.summarize(ctx, r)
	return r.updates, nil
}

func (s *Synchronizer) collect(ctx context.Context, items <-chan domain.Item, r *run) ([]domain.Issue, error) {
	dedup := NewDeduplicator(r.opts.Schema)
	for item := range items {
		if item.Failed != "" {
			r.removeTarget(item.Failed)
			s.logger.Warn("target failed, its tasks will not be closed", "target", item.Failed)
			continue
		}
		duplicate, err := dedup.Add(item.Issue)
		if err != nil {
			return nil, err
		}
		if duplicate {
			s.logger.Debug("merged duplicate issue", "description", item.Issue.String(domain.FieldDescription))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect issues: %w", err)
	}
	return dedup.Issues(), nil
}

func (r *run) removeTarget(target string) {
	for i, name := range r.active {
		if name == target {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return
		}
	}
}

// activeServices lists the services whose targets all completed
// successfully. A service with any failed target is left out.
func (r *run) activeServices() []string {
	failed := map[string]bool{}
	for name, cfg := range r.configs {
		if !slices.Contains(r.active, name) {
			failed[cfg.Service] = true
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, target := range r.active {
		service := r.configs[target].Service
		if service == "" || seen[service] || failed[service] {
			continue
		}
		seen[service] = true
		out = append(out, service)
	}
	return out
}

func (r *run) dryRunSuffix() string {
	if r.opts.DryRun {
		return " (dry run)"
	}
	return ""
}

func (s *Synchronizer) send(ctx context.Context, n domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "kind", n.Kind, "error", err)
	}
}

type nopReporter struct{}

func (nopReporter) Info(string)                        {}
func (nopReporter) Warn(string)                        {}
func (nopReporter) Error(string)                       {}
func (nopReporter) Hint(string)                        {}
func (nopReporter) Detail(string)                      {}
func (nopReporter) Table(string, []string, [][]string) {}
