package usecase

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"IssueSync/internal/domain"
)

func (s *Synchronizer) applyNew(ctx context.Context, r *run) {
	if len(r.updates.New) > 0 {
		s.reporter.Info(fmt.Sprintf("Adding %d tasks%s", len(r.updates.New), r.dryRunSuffix()))
	}

	for _, issue := range r.updates.New {
		description := issue.String(domain.FieldDescription)
		s.reporter.Detail("+ " + description)
		if r.opts.DryRun {
			continue
		}
		if r.opts.notify() {
			s.send(ctx, taskNotification(domain.NotifyCreated, description, r))
		}

		task, err := s.store.AddTask(ctx, issue)
		if err != nil {
			s.logger.Error("unable to add task", "description", description, "error", err)
			continue
		}
		if task.Get(domain.FieldEnd) != nil {
			if err := s.store.CompleteTask(ctx, task.UUID()); err != nil {
				s.logger.Error("unable to complete new task", "uuid", task.UUID(), "error", err)
			}
		}
		r.seen[task.UUID()] = true
	}
}

func (s *Synchronizer) applyChanged(ctx context.Context, r *run) {
	if len(r.updates.Changed) > 0 {
		s.reporter.Info(fmt.Sprintf("Updating %d tasks%s", len(r.updates.Changed), r.dryRunSuffix()))
	}

	for _, task := range r.updates.Changed {
		s.reporter.Detail(fmt.Sprintf("~ %s: %s", task.String(domain.FieldDescription), describeChanges(task)))
		if r.opts.DryRun {
			continue
		}

		updated, err := s.store.UpdateTask(ctx, task)
		if err != nil {
			s.logger.Error("unable to modify task", "uuid", task.UUID(), "error", err)
			continue
		}
		if updated.Get(domain.FieldEnd) != nil {
			if err := s.store.CompleteTask(ctx, updated.UUID()); err != nil {
				s.logger.Error("unable to complete task", "uuid", updated.UUID(), "error", err)
			}
		}
	}
}

func describeChanges(task *domain.Task) string {
	changes := task.Changes()
	fields := slices.Sorted(maps.Keys(changes))
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		ch := changes[field]
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", field, quote(ch.Old), quote(ch.New)))
	}
	return strings.Join(parts, "; ")
}

func quote(v any) string {
	if v == nil {
		return "None"
	}
	if text, ok := domain.CanonicalValue(v); ok {
		return fmt.Sprintf("%q", text)
	}
	return "''"
}

func taskNotification(kind domain.NotificationKind, description string, r *run) domain.Notification {
	return domain.Notification{
		Kind:    kind,
		Message: fmt.Sprintf("%s task: %s", kind, description),
		Sticky:  r.opts.Notifications.TaskCrudSticky,
	}
}
