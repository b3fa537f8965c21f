package usecase

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"IssueSync/internal/domain"
)

// reconcile sorts one deduplicated issue into the update set.
func (s *Synchronizer) reconcile(ctx context.Context, r *run, issue domain.Issue) error {
	s.decodeBytes(issue)

	if p, ok := issue[domain.FieldPriority].(string); ok && p == "" {
		issue[domain.FieldPriority] = nil
	}

	target := issue.String(domain.FieldTarget)
	delete(issue, domain.FieldTarget)
	cfg := r.configs[target]

	id, err := FindTaskUUID(ctx, s.store, r.opts.Schema, issue)
	var multiple *MultipleMatchesError
	switch {
	case errors.Is(err, ErrNotFound):
		r.updates.New = append(r.updates.New, issue)
		return nil
	case errors.As(err, &multiple):
		s.logger.Warn("multiple matches, leaving tasks untouched", "error", err)
		for _, id := range multiple.UUIDs {
			r.seen[id] = true
		}
		return nil
	case err != nil:
		return err
	}

	r.seen[id] = true
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("load task %s: %w", id, err)
	}

	if task.Status() == domain.StatusCompleted {
		if !r.opts.Main.ReopenCompletedTasks {
			r.updates.Diverged = append(r.updates.Diverged, domain.Divergence{
				UUID:    id,
				Task:    task,
				Issue:   issue,
				Service: cfg.Service,
			})
			return nil
		}
		s.reporter.Detail(fmt.Sprintf("Reopening completed task %s for issue %s", id, issue.String(domain.FieldDescription)))
		task.Set(domain.FieldStatus, domain.StatusPending)
		task.Set(domain.FieldEnd, nil)
	}

	MergeIssue(task, issue, r.opts.Main, cfg)

	if len(task.Changes()) > 0 {
		r.updates.Changed = append(r.updates.Changed, task)
	} else {
		r.updates.Existing = append(r.updates.Existing, task)
	}
	return nil
}

// decodeBytes turns valid UTF-8 byte values into strings; others are kept.
func (s *Synchronizer) decodeBytes(issue domain.Issue) {
	for key, value := range issue {
		raw, ok := value.([]byte)
		if !ok {
			continue
		}
		if !utf8.Valid(raw) {
			s.logger.Warn("failed to interpret field as utf-8", "field", key)
			continue
		}
		issue[key] = string(raw)
	}
}
