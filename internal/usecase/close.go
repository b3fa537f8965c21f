package usecase

import (
	"context"
	"fmt"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

var managedStatuses = []domain.Status{domain.StatusPending, domain.StatusWaiting}

// ManagedTaskUUIDs returns the open tasks carrying every field of any key
// group declared by services, in store order.
func ManagedTaskUUIDs(ctx context.Context, store ports.TaskStore, schema domain.KeySchema, services []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, service := range services {
		for _, group := range schema.GroupsFor(service) {
			tasks, err := store.FilterTasks(ctx, ports.Filter{Present: group, Statuses: managedStatuses})
			if err != nil {
				return nil, fmt.Errorf("filter managed tasks: %w", err)
			}
			for _, task := range tasks {
				if !seen[task.UUID()] {
					seen[task.UUID()] = true
					out = append(out, task.UUID())
				}
			}
		}
	}
	return out, nil
}

// close completes the managed tasks of successful services that no issue
// matched in this run.
func (s *Synchronizer) close(ctx context.Context, r *run) error {
	services := r.activeServices()
	s.logger.Debug("closing tasks for succeeding services", "services", services)

	managed, err := ManagedTaskUUIDs(ctx, s.store, r.opts.Schema, services)
	if err != nil {
		return err
	}
	for _, id := range managed {
		if !r.seen[id] {
			r.updates.Closed = append(r.updates.Closed, id)
		}
	}

	if len(r.updates.Closed) > 0 {
		s.reporter.Info(fmt.Sprintf("Closing %d tasks%s", len(r.updates.Closed), r.dryRunSuffix()))
	}

	for _, id := range r.updates.Closed {
		task, err := s.store.GetTask(ctx, id)
		if err != nil {
			s.logger.Error("unable to load task to close", "uuid", id, "error", err)
			continue
		}
		description := task.String(domain.FieldDescription)
		s.reporter.Detail("- " + description)
		if r.opts.DryRun {
			continue
		}
		if r.opts.notify() {
			s.send(ctx, taskNotification(domain.NotifyCompleted, description, r))
		}
		if err := s.store.CompleteTask(ctx, id); err != nil {
			s.logger.Error("unable to close task", "uuid", id, "error", err)
		}
	}
	return nil
}
