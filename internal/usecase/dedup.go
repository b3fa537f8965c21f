package usecase

import (
	"encoding/json"
	"fmt"
	"slices"

	"IssueSync/internal/domain"
)

// UniqueIdentifier serializes the values of the first key group the issue
// fully satisfies. Keys are sorted so equal items always serialize equally.
func UniqueIdentifier(schema domain.KeySchema, issue domain.Issue) (string, error) {
	for _, entry := range schema {
		if !entry.Group.SatisfiedBy(issue) {
			continue
		}
		subset := make(map[string]any, len(entry.Group))
		for _, key := range entry.Group {
			subset[key] = issue[key]
		}
		raw, err := json.Marshal(subset)
		if err != nil {
			return "", fmt.Errorf("encode unique key: %w", err)
		}
		return string(raw), nil
	}
	return "", fmt.Errorf("%w: %s (target %s)", ErrNoUniqueKey,
		issue.String(domain.FieldDescription), issue.String(domain.FieldTarget))
}

// Deduplicator collapses issues that identify the same remote item. The
// first issue seen is kept; later duplicates only contribute their tags.
type Deduplicator struct {
	schema domain.KeySchema
	order  []string
	issues map[string]domain.Issue
}

// NewDeduplicator builds an empty deduplicator for schema.
func NewDeduplicator(schema domain.KeySchema) *Deduplicator {
	return &Deduplicator{schema: schema, issues: map[string]domain.Issue{}}
}

// Add folds one issue in. It reports whether the issue was a duplicate.
func (d *Deduplicator) Add(issue domain.Issue) (bool, error) {
	if _, ok := issue[domain.FieldTags]; !ok {
		issue[domain.FieldTags] = []string{}
	}

	id, err := UniqueIdentifier(d.schema, issue)
	if err != nil {
		return false, err
	}

	first, ok := d.issues[id]
	if !ok {
		d.issues[id] = issue
		d.order = append(d.order, id)
		return false, nil
	}

	tags := first.Strings(domain.FieldTags)
	for _, tag := range issue.Strings(domain.FieldTags) {
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	first[domain.FieldTags] = unique(tags)
	return true, nil
}

// Issues returns the deduplicated issues in first-seen order.
func (d *Deduplicator) Issues() []domain.Issue {
	out := make([]domain.Issue, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.issues[id])
	}
	return out
}

func unique(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
