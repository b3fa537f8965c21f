package collect

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/render"
	"IssueSync/internal/service"
)

// BuildRecord turns an adapter issue into the record stored as a task:
// field templates override adapter values, description falls back to the
// adapter default, and add_tags are rendered and appended.
func BuildRecord(issue service.Issue, cfg config.ServiceConfig) (domain.Issue, error) {
	base := issue.Record()
	if base == nil {
		base = domain.Issue{}
	}

	data := templateContext(issue, base)
	record := base.Clone()

	fields := slices.Collect(maps.Keys(cfg.Templates))
	sort.Strings(fields)
	for _, field := range fields {
		value, err := render.String(cfg.Templates[field], data)
		if err != nil {
			return nil, fmt.Errorf("%s template: %w", field, err)
		}
		record[field] = value
	}
	if _, ok := cfg.Templates[domain.FieldDescription]; !ok {
		record[domain.FieldDescription] = issue.DefaultDescription()
	}

	tags := record.Strings(domain.FieldTags)
	for _, tpl := range cfg.AddTags {
		tag, err := render.String(tpl, data)
		if err != nil {
			return nil, fmt.Errorf("add_tags template: %w", err)
		}
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if tags == nil {
		tags = []string{}
	}
	record[domain.FieldTags] = tags

	if _, ok := record[domain.FieldAnnotations]; !ok {
		record[domain.FieldAnnotations] = []string{}
	}
	return record, nil
}

func templateContext(issue service.Issue, record domain.Issue) map[string]any {
	data := make(map[string]any, len(record)+len(issue.Extra())+1)
	maps.Copy(data, record)
	maps.Copy(data, issue.Extra())
	data[domain.FieldDescription] = issue.DefaultDescription()
	return data
}
