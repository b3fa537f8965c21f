package domain

// UpdateSet is the partitioned outcome of reconciling one run's issues.
type UpdateSet struct {
	New      []Issue
	Changed  []*Task
	Existing []*Task
	Closed   []string
	Diverged []Divergence
}

// Divergence is a task completed locally while its remote item is still open.
type Divergence struct {
	UUID    string
	Task    *Task
	Issue   Issue
	Service string
}

// NetChanges counts the updates that touch the store.
func (u *UpdateSet) NetChanges() int {
	return len(u.New) + len(u.Changed) + len(u.Closed)
}

// CompletionStatus is the outcome of one source worker.
type CompletionStatus int

const (
	CompletionOK CompletionStatus = iota
	CompletionError
)

func (s CompletionStatus) String() string {
	if s == CompletionOK {
		return "ok"
	}
	return "error"
}

// Completion is the signal a worker sends after its last issue.
type Completion struct {
	Status CompletionStatus
	Target string
	Count  int
}

// Item is one element of the collected stream: an issue or a failed target.
type Item struct {
	Issue  Issue
	Failed string
}

// NotificationKind names the event a notification describes.
type NotificationKind string

const (
	NotifyCreated   NotificationKind = "Created"
	NotifyCompleted NotificationKind = "Completed"
	NotifyFinished  NotificationKind = "Finished"
)

// Notification is one user-facing event delivered through a notifier backend.
type Notification struct {
	Kind    NotificationKind
	Message string
	Sticky  bool
}
