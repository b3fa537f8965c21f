package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

// ErrTaskNotFound is returned for unknown task uuids.
var ErrTaskNotFound = errors.New("task not found")

type taskRecord struct {
	seq    int
	fields map[string]any
}

// MemoryStore keeps tasks in a map. An optional persist hook runs after
// every mutation; when it fails the mutation is rolled back.
type MemoryStore struct {
	mu      sync.Mutex
	tasks   map[string]taskRecord
	udas    map[string]domain.UDA
	nextSeq int
	persist func() error

	now   func() time.Time
	newID func() string
}

var (
	_ ports.TaskStore     = (*MemoryStore)(nil)
	_ ports.UDAConfigurer = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: map[string]taskRecord{},
		udas:  map[string]domain.UDA{},
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// FilterTasks returns matching tasks in creation order.
func (s *MemoryStore) FilterTasks(_ context.Context, filter ports.Filter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]taskRecord, 0)
	for _, rec := range s.tasks {
		if matchFilter(rec.fields, filter) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	out := make([]*domain.Task, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.NewTask(rec.fields))
	}
	return out, nil
}

// GetTask loads one task by uuid.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return domain.NewTask(rec.fields), nil
}

// AddTask creates a pending task with a fresh uuid.
func (s *MemoryStore) AddTask(_ context.Context, fields map[string]any) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := domain.NewTask(fields)
	id := s.newID()
	now := s.now().UTC().Truncate(time.Second)
	task.Set(domain.FieldUUID, id)
	if task.String(domain.FieldStatus) == "" {
		task.Set(domain.FieldStatus, domain.StatusPending)
	}
	if task.Get(domain.FieldEntry) == nil {
		task.Set(domain.FieldEntry, now)
	}
	task.Set(domain.FieldModified, now)

	s.nextSeq++
	if err := s.commit(id, taskRecord{seq: s.nextSeq, fields: task.Fields()}); err != nil {
		return nil, err
	}
	task.MarkClean()
	return task, nil
}

// UpdateTask persists the task's current fields.
func (s *MemoryStore) UpdateTask(_ context.Context, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := task.UUID()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if len(task.Changes()) == 0 {
		return domain.NewTask(rec.fields), nil
	}

	updated := domain.NewTask(task.Fields())
	updated.Set(domain.FieldModified, s.now().UTC().Truncate(time.Second))
	if err := s.commit(id, taskRecord{seq: rec.seq, fields: updated.Fields()}); err != nil {
		return nil, err
	}
	updated.MarkClean()
	return updated, nil
}

// CompleteTask marks a task completed, keeping an existing end date.
func (s *MemoryStore) CompleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	task := domain.NewTask(rec.fields)
	completeFields(task, s.now())
	return s.commit(id, taskRecord{seq: rec.seq, fields: task.Fields()})
}

// ConfigureUDAs records the extra field schema.
func (s *MemoryStore) ConfigureUDAs(_ context.Context, udas map[string]domain.UDA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := maps.Clone(s.udas)
	maps.Copy(s.udas, udas)
	if s.persist == nil {
		return nil
	}
	if err := s.persist(); err != nil {
		s.udas = previous
		return err
	}
	return nil
}

// UDAs returns the recorded extra field schema.
func (s *MemoryStore) UDAs() map[string]domain.UDA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.udas)
}

func (s *MemoryStore) commit(id string, rec taskRecord) error {
	previous, existed := s.tasks[id]
	s.tasks[id] = rec
	if s.persist == nil {
		return nil
	}
	if err := s.persist(); err != nil {
		if existed {
			s.tasks[id] = previous
		} else {
			delete(s.tasks, id)
		}
		return err
	}
	return nil
}

// ordered returns records by creation order; callers hold the lock.
func (s *MemoryStore) ordered() []string {
	ids := slices.Collect(maps.Keys(s.tasks))
	sort.Slice(ids, func(i, j int) bool { return s.tasks[ids[i]].seq < s.tasks[ids[j]].seq })
	return ids
}

func completeFields(task *domain.Task, now time.Time) {
	task.Set(domain.FieldStatus, domain.StatusCompleted)
	if task.Get(domain.FieldEnd) == nil {
		task.Set(domain.FieldEnd, now.UTC().Truncate(time.Second))
	}
	task.Set(domain.FieldModified, now.UTC().Truncate(time.Second))
}

func matchFilter(fields map[string]any, filter ports.Filter) bool {
	if len(filter.Statuses) > 0 {
		status := domain.NewTask(fields).Status()
		if !slices.Contains(filter.Statuses, status) {
			return false
		}
	}
	for name, want := range filter.Equal {
		if !domain.ValuesEqual(fields[name], want) {
			return false
		}
	}
	for _, name := range filter.Present {
		if _, ok := domain.CanonicalValue(fields[name]); !ok {
			return false
		}
	}
	return true
}
