package domain

import "slices"

// Field names every record understands regardless of the originating service.
const (
	FieldUUID        = "uuid"
	FieldStatus      = "status"
	FieldDescription = "description"
	FieldTags        = "tags"
	FieldAnnotations = "annotations"
	FieldPriority    = "priority"
	FieldProject     = "project"
	FieldEntry       = "entry"
	FieldEnd         = "end"
	FieldDue         = "due"
	FieldModified    = "modified"
	FieldTarget      = "target"
)

// Issue is one remote item normalized into a flat field map.
type Issue map[string]any

// Clone returns a copy whose list values can be mutated independently.
func (i Issue) Clone() Issue {
	if i == nil {
		return nil
	}
	out := make(Issue, len(i))
	for k, v := range i {
		out[k] = cloneValue(v)
	}
	return out
}

// Has reports whether the field is present, even with a nil value.
func (i Issue) Has(key string) bool {
	_, ok := i[key]
	return ok
}

// String returns the field as text, or "" when it is absent or not textual.
func (i Issue) String(key string) string {
	switch v := i[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Strings returns list-valued fields as a fresh []string.
func (i Issue) Strings(key string) []string {
	return toStrings(i[key])
}

// KeyGroup is a set of fields that together identify a remote item.
type KeyGroup []string

// SatisfiedBy reports whether every field of the group is present on the issue.
func (g KeyGroup) SatisfiedBy(issue Issue) bool {
	if len(g) == 0 {
		return false
	}
	for _, key := range g {
		if !issue.Has(key) {
			return false
		}
	}
	return true
}

// KeyEntry binds a key group to the service that declared it.
type KeyEntry struct {
	Service string
	Group   KeyGroup
}

// KeySchema is the run-wide ordered list of key groups, in target order.
type KeySchema []KeyEntry

// Services lists the distinct services in declaration order.
func (s KeySchema) Services() []string {
	var out []string
	for _, entry := range s {
		if !slices.Contains(out, entry.Service) {
			out = append(out, entry.Service)
		}
	}
	return out
}

// GroupsFor returns the groups declared by one service.
func (s KeySchema) GroupsFor(service string) []KeyGroup {
	var out []KeyGroup
	for _, entry := range s {
		if entry.Service == service {
			out = append(out, entry.Group)
		}
	}
	return out
}

// UDA describes an extra field a service contributes to the task store schema.
type UDA struct {
	Type  string `json:"type" yaml:"type"`
	Label string `json:"label" yaml:"label"`
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := CanonicalValue(item); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	default:
		return nil
	}
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return slices.Clone(x)
	case []any:
		return slices.Clone(x)
	case []byte:
		return slices.Clone(x)
	default:
		return v
	}
}
