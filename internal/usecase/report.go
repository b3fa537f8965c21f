package usecase

import (
	"context"
	"fmt"
	"strings"

	"IssueSync/internal/domain"
)

func (s *Synchronizer) reportDiverged(r *run) {
	if len(r.updates.Diverged) == 0 {
		return
	}

	var (
		services []string
		grouped  = map[string][]domain.Divergence{}
	)
	for _, d := range r.updates.Diverged {
		if _, ok := grouped[d.Service]; !ok {
			services = append(services, d.Service)
		}
		grouped[d.Service] = append(grouped[d.Service], d)
	}

	var rows [][]string
	for _, service := range services {
		for _, d := range grouped[service] {
			s.logger.Warn("task completed locally but still open upstream", "uuid", d.UUID, "service", d.Service)
			description := d.Task.String(domain.FieldDescription)
			if description == "" {
				description = "Unknown"
			}
			rows = append(rows, []string{
				strings.ToUpper(service),
				description,
				divergedID(d),
				divergedURL(d),
			})
		}
	}

	s.reporter.Table("Completed Locally, Still Open Upstream", []string{"Service", "Description", "ID", "URL"}, rows)
	s.reporter.Hint("Close these issues upstream to dismiss this warning")
}

func divergedID(d domain.Divergence) string {
	for _, suffix := range []string{"identifier", "number", "id"} {
		text, ok := domain.CanonicalValue(d.Task.Get(d.Service + suffix))
		if !ok {
			continue
		}
		if suffix == "number" {
			return "#" + text
		}
		return text
	}
	return ""
}

func divergedURL(d domain.Divergence) string {
	candidates := []any{
		d.Task.Get(d.Service + "url"),
		d.Task.Get("url"),
		d.Issue[d.Service+"url"],
		d.Issue["url"],
	}
	for _, candidate := range candidates {
		if text, ok := domain.CanonicalValue(candidate); ok {
			return text
		}
	}
	return fmt.Sprintf("(close in %s)", d.Service)
}

func (s *Synchronizer) summarize(ctx context.Context, r *run) {
	u := r.updates

	var parts []string
	if len(u.New) > 0 {
		parts = append(parts, fmt.Sprintf("+%d new", len(u.New)))
	}
	if len(u.Changed) > 0 {
		parts = append(parts, fmt.Sprintf("~%d updated", len(u.Changed)))
	}
	if len(u.Closed) > 0 {
		parts = append(parts, fmt.Sprintf("-%d closed", len(u.Closed)))
	}
	if len(u.Diverged) > 0 {
		parts = append(parts, fmt.Sprintf("⚠ %d diverged", len(u.Diverged)))
	}

	if len(parts) > 0 {
		s.reporter.Info("Sync complete: " + strings.Join(parts, ", "))
	} else {
		s.reporter.Info("Sync complete: no changes")
	}
	s.logger.Info("sync complete",
		"new", len(u.New), "changed", len(u.Changed), "existing", len(u.Existing),
		"closed", len(u.Closed), "diverged", len(u.Diverged), "dry_run", r.opts.DryRun)

	if !r.opts.notify() {
		return
	}
	if r.opts.Notifications.OnlyOnNewTasks && u.NetChanges() == 0 {
		return
	}

	message := fmt.Sprintf("New: %d, Changed: %d, Completed: %d", len(u.New), len(u.Changed), len(u.Closed))
	if len(u.Diverged) > 0 {
		message += fmt.Sprintf(", Diverged: %d", len(u.Diverged))
	}
	s.send(ctx, domain.Notification{
		Kind:    domain.NotifyFinished,
		Message: message,
		Sticky:  r.opts.Notifications.FinishedQueryingSticky,
	})
}
