package usecase

import (
	"context"
	"fmt"
	"sort"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

var matchStatuses = []domain.Status{domain.StatusPending, domain.StatusWaiting, domain.StatusCompleted}

// FindTaskUUID returns the uuid of the single local task matching issue on
// any key group it satisfies. It fails with ErrNotFound when nothing matches
// and with a *MultipleMatchesError when the match is ambiguous. Several
// completed tasks sharing the same key collapse to the first one.
func FindTaskUUID(ctx context.Context, store ports.TaskStore, schema domain.KeySchema, issue domain.Issue) (string, error) {
	description := issue.String(domain.FieldDescription)
	if description == "" {
		return "", fmt.Errorf("%w: %v", ErrMissingDescription, issue)
	}

	possibilities := map[string]bool{}
	for _, entry := range schema {
		if !entry.Group.SatisfiedBy(issue) {
			continue
		}

		equal := make(map[string]any, len(entry.Group))
		for _, key := range entry.Group {
			equal[key] = issue[key]
		}
		results, err := store.FilterTasks(ctx, ports.Filter{Equal: equal, Statuses: matchStatuses})
		if err != nil {
			return "", fmt.Errorf("filter tasks: %w", err)
		}

		if len(results) > 1 && allCompleted(results) {
			results = results[:1]
		}
		for _, task := range results {
			possibilities[task.UUID()] = true
		}
	}

	switch len(possibilities) {
	case 0:
		return "", ErrNotFound
	case 1:
		for id := range possibilities {
			return id, nil
		}
	}

	ids := make([]string, 0, len(possibilities))
	for id := range possibilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", &MultipleMatchesError{Description: description, UUIDs: ids}
}

func allCompleted(tasks []*domain.Task) bool {
	for _, task := range tasks {
		if task.Status() != domain.StatusCompleted {
			return false
		}
	}
	return true
}
