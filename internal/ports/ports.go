package ports

import (
	"context"

	"IssueSync/internal/domain"
)

// Filter selects tasks by field equality, field presence and status.
// A nil value in Equal matches tasks where the field is absent.
type Filter struct {
	Equal    map[string]any
	Present  []string
	Statuses []domain.Status
}

// TaskStore is the local task database the engine reconciles against.
type TaskStore interface {
	FilterTasks(ctx context.Context, filter Filter) ([]*domain.Task, error)
	GetTask(ctx context.Context, uuid string) (*domain.Task, error)
	AddTask(ctx context.Context, fields map[string]any) (*domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	CompleteTask(ctx context.Context, uuid string) error
}

// UDAConfigurer is implemented by stores that keep a schema of extra fields.
type UDAConfigurer interface {
	ConfigureUDAs(ctx context.Context, udas map[string]domain.UDA) error
}

// Notifier delivers task and summary events to the user.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Reporter prints user-visible progress and summary lines.
type Reporter interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Hint(msg string)
	Detail(msg string)
	Table(title string, headers []string, rows [][]string)
}

// Progress tracks per-target collection state.
type Progress interface {
	Started(target string)
	Counted(target string, count int)
	Finished(target string, count int)
	Aborted(target string)
}
