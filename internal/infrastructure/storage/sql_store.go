package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		uuid TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		seq BIGINT NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS task_fields (
		uuid TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (uuid, name)
	)`,
	`CREATE INDEX IF NOT EXISTS task_fields_lookup ON task_fields (name, value)`,
	`CREATE TABLE IF NOT EXISTS task_udas (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		label TEXT NOT NULL
	)`,
}

// SQLStore persists tasks in Postgres or SQLite. Every field is mirrored in
// task_fields in canonical text form so filters run in SQL.
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType

	now   func() time.Time
	newID func() string
}

var (
	_ ports.TaskStore     = (*SQLStore)(nil)
	_ ports.UDAConfigurer = (*SQLStore)(nil)
)

// NewSQLStore wires a sql.DB; placeholders follow the driver dialect.
func NewSQLStore(db *sql.DB, placeholders sq.PlaceholderFormat) *SQLStore {
	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholders),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Migrate creates the tables when they are missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FilterTasks returns matching tasks in creation order.
func (s *SQLStore) FilterTasks(ctx context.Context, filter ports.Filter) ([]*domain.Task, error) {
	query := s.builder.Select("t.uuid", "t.data").From("tasks t").OrderBy("t.seq")

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"t.status": statuses})
	}

	names := slices.Collect(maps.Keys(filter.Equal))
	sort.Strings(names)
	for _, name := range names {
		if value, ok := domain.CanonicalValue(filter.Equal[name]); ok {
			query = query.Where(sq.Expr(
				"EXISTS (SELECT 1 FROM task_fields f WHERE f.uuid = t.uuid AND f.name = ? AND f.value = ?)", name, value))
		} else {
			query = query.Where(sq.Expr(
				"NOT EXISTS (SELECT 1 FROM task_fields f WHERE f.uuid = t.uuid AND f.name = ?)", name))
		}
	}
	for _, name := range filter.Present {
		query = query.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM task_fields f WHERE f.uuid = t.uuid AND f.name = ?)", name))
	}

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task, err := decodeTask(id, data)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tasks, nil
}

// GetTask loads one task by uuid.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.getTask(ctx, s.db, id)
}

// AddTask inserts a pending task with a fresh uuid.
func (s *SQLStore) AddTask(ctx context.Context, fields map[string]any) (*domain.Task, error) {
	task := domain.NewTask(fields)
	now := s.now().UTC().Truncate(time.Second)
	task.Set(domain.FieldUUID, s.newID())
	if task.String(domain.FieldStatus) == "" {
		task.Set(domain.FieldStatus, domain.StatusPending)
	}
	if task.Get(domain.FieldEntry) == nil {
		task.Set(domain.FieldEntry, now)
	}
	task.Set(domain.FieldModified, now)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		row := s.builder.Select("COALESCE(MAX(seq), 0) + 1").From("tasks").RunWith(tx).QueryRowContext(ctx)
		if err := row.Scan(&seq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		data, err := encodeTask(task)
		if err != nil {
			return err
		}
		_, err = s.builder.Insert("tasks").
			Columns("uuid", "status", "seq", "data").
			Values(task.UUID(), string(task.Status()), seq, data).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return s.writeFields(ctx, tx, task)
	})
	if err != nil {
		return nil, err
	}
	task.MarkClean()
	return task, nil
}

// UpdateTask persists the task's current fields.
func (s *SQLStore) UpdateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	var updated *domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.getTask(ctx, tx, task.UUID())
		if err != nil {
			return err
		}
		if len(task.Changes()) == 0 {
			updated = stored
			return nil
		}

		updated = domain.NewTask(task.Fields())
		updated.Set(domain.FieldModified, s.now().UTC().Truncate(time.Second))
		return s.replace(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	updated.MarkClean()
	return updated, nil
}

// CompleteTask marks a task completed, keeping an existing end date.
func (s *SQLStore) CompleteTask(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		task, err := s.getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		completeFields(task, s.now())
		return s.replace(ctx, tx, task)
	})
}

// ConfigureUDAs upserts the extra field schema.
func (s *SQLStore) ConfigureUDAs(ctx context.Context, udas map[string]domain.UDA) error {
	if len(udas) == 0 {
		return nil
	}
	names := slices.Collect(maps.Keys(udas))
	sort.Strings(names)

	insert := s.builder.Insert("task_udas").Columns("name", "type", "label")
	for _, name := range names {
		insert = insert.Values(name, udas[name].Type, udas[name].Label)
	}
	insert = insert.Suffix("ON CONFLICT (name) DO UPDATE SET type = EXCLUDED.type, label = EXCLUDED.label")

	if _, err := insert.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert udas: %w", err)
	}
	return nil
}

func (s *SQLStore) getTask(ctx context.Context, runner sq.BaseRunner, id string) (*domain.Task, error) {
	var data string
	err := s.builder.Select("data").From("tasks").Where(sq.Eq{"uuid": id}).
		RunWith(runner).QueryRowContext(ctx).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return decodeTask(id, data)
}

func (s *SQLStore) replace(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = s.builder.Update("tasks").
		Set("status", string(task.Status())).
		Set("data", data).
		Where(sq.Eq{"uuid": task.UUID()}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	_, err = s.builder.Delete("task_fields").Where(sq.Eq{"uuid": task.UUID()}).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	return s.writeFields(ctx, tx, task)
}

func (s *SQLStore) writeFields(ctx context.Context, tx *sql.Tx, task *domain.Task) error {
	fields := task.Fields()
	names := slices.Collect(maps.Keys(fields))
	sort.Strings(names)

	insert := s.builder.Insert("task_fields").Columns("uuid", "name", "value")
	rows := 0
	for _, name := range names {
		value, ok := domain.CanonicalValue(fields[name])
		if !ok {
			continue
		}
		insert = insert.Values(task.UUID(), name, value)
		rows++
	}
	if rows == 0 {
		return nil
	}
	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert fields: %w", err)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func encodeTask(task *domain.Task) (string, error) {
	fields := domain.EncodeFields(task.Fields())
	delete(fields, domain.FieldUUID)
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	return string(data), nil
}

func decodeTask(id, data string) (*domain.Task, error) {
	var stored map[string]domain.StoredValue
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	fields := domain.DecodeFields(stored)
	fields[domain.FieldUUID] = id
	return domain.NewTask(fields), nil
}
