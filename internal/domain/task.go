package domain

import (
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a local task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// Change captures one field difference between the loaded and current task.
type Change struct {
	Old any
	New any
}

// Task is a local task record borrowed from the store. It remembers the
// field values it was loaded with so callers can ask what changed.
type Task struct {
	fields   map[string]any
	original map[string]any
}

// NewTask copies fields into a clean task.
func NewTask(fields map[string]any) *Task {
	t := &Task{fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		t.fields[k] = cloneValue(v)
	}
	t.MarkClean()
	return t
}

// UUID returns the store identifier.
func (t *Task) UUID() string {
	if t == nil {
		return ""
	}
	s, _ := t.fields[FieldUUID].(string)
	return s
}

// Status returns the current status, defaulting to pending.
func (t *Task) Status() Status {
	if t == nil {
		return ""
	}
	switch v := t.fields[FieldStatus].(type) {
	case Status:
		return v
	case string:
		if v != "" {
			return Status(v)
		}
	}
	return StatusPending
}

// Get returns the value of a field or nil.
func (t *Task) Get(key string) any {
	if t == nil {
		return nil
	}
	return t.fields[key]
}

// String returns a textual field or "".
func (t *Task) String(key string) string {
	switch v := t.Get(key).(type) {
	case string:
		return v
	case Status:
		return string(v)
	default:
		return ""
	}
}

// Strings returns a list field as a fresh slice.
func (t *Task) Strings(key string) []string {
	return toStrings(t.Get(key))
}

// Time returns a date field or the zero time.
func (t *Task) Time(key string) time.Time {
	ts, _ := t.Get(key).(time.Time)
	return ts
}

// Set assigns a field; a nil value removes it.
func (t *Task) Set(key string, value any) {
	if value == nil {
		delete(t.fields, key)
		return
	}
	if s, ok := value.(Status); ok {
		value = string(s)
	}
	t.fields[key] = cloneValue(value)
}

// Delete removes a field.
func (t *Task) Delete(key string) {
	delete(t.fields, key)
}

// Update assigns every field of the map.
func (t *Task) Update(fields map[string]any) {
	for k, v := range fields {
		t.Set(k, v)
	}
}

// Fields returns a copy of the current field map.
func (t *Task) Fields() map[string]any {
	out := make(map[string]any, len(t.fields))
	for k, v := range t.fields {
		out[k] = cloneValue(v)
	}
	return out
}

// Changes reports the fields whose canonical value differs from load time.
func (t *Task) Changes() map[string]Change {
	keys := slices.Collect(maps.Keys(t.fields))
	for k := range t.original {
		if _, ok := t.fields[k]; !ok {
			keys = append(keys, k)
		}
	}

	changes := map[string]Change{}
	for _, k := range keys {
		if ValuesEqual(t.original[k], t.fields[k]) {
			continue
		}
		changes[k] = Change{Old: t.original[k], New: t.fields[k]}
	}
	return changes
}

// MarkClean makes the current values the baseline for Changes.
func (t *Task) MarkClean() {
	t.original = make(map[string]any, len(t.fields))
	for k, v := range t.fields {
		t.original[k] = cloneValue(v)
	}
}
