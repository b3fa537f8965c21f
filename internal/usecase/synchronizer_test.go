package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/infrastructure/storage"
	"IssueSync/internal/ports"
)

var testSchema = domain.KeySchema{
	{Service: "alpha", Group: domain.KeyGroup{"alphaid"}},
	{Service: "beta", Group: domain.KeyGroup{"betaurl"}},
}

var testTargets = []config.ServiceConfig{
	{Target: "a", Service: "alpha"},
	{Target: "b", Service: "beta"},
}

func mainConfig() config.MainConfig {
	return config.MainConfig{
		MergeAnnotations:     true,
		MergeTags:            true,
		StaticFields:         []string{"priority"},
		ReopenCompletedTasks: true,
	}
}

func options() SyncOptions {
	return SyncOptions{Main: mainConfig(), Targets: testTargets, Schema: testSchema}
}

func alphaIssue(id, description string) domain.Issue {
	return domain.Issue{
		"alphaid":     id,
		"description": description,
		"priority":    "M",
		"tags":        []string{},
		"annotations": []string{},
		"target":      "a",
	}
}

func betaIssue(url, description string) domain.Issue {
	return domain.Issue{
		"betaurl":     url,
		"description": description,
		"tags":        []string{},
		"annotations": []string{},
		"target":      "b",
	}
}

func stream(items ...domain.Item) <-chan domain.Item {
	ch := make(chan domain.Item, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func issues(list ...domain.Issue) []domain.Item {
	out := make([]domain.Item, 0, len(list))
	for _, issue := range list {
		out = append(out, domain.Item{Issue: issue})
	}
	return out
}

type reporter struct {
	mu     sync.Mutex
	lines  []string
	tables [][][]string
}

func (r *reporter) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}
func (r *reporter) Info(msg string)   { r.add(msg) }
func (r *reporter) Warn(msg string)   { r.add(msg) }
func (r *reporter) Error(msg string)  { r.add(msg) }
func (r *reporter) Hint(msg string)   { r.add(msg) }
func (r *reporter) Detail(msg string) { r.add(msg) }
func (r *reporter) Table(_ string, _ []string, rows [][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, rows)
}

func (r *reporter) last() string {
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

type notifier struct {
	sent []domain.Notification
}

func (n *notifier) Notify(_ context.Context, msg domain.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	store    *storage.MemoryStore
	reporter *reporter
	notifier *notifier
	logs     *bytes.Buffer
	sync     *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		reporter: &reporter{},
		notifier: &notifier{},
		logs:     &bytes.Buffer{},
	}
	f.sync = NewSynchronizer(SynchronizerDeps{
		Store:    f.store,
		Notifier: f.notifier,
		Reporter: f.reporter,
		Logger:   slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return f
}

func (f *fixture) add(t *testing.T, fields map[string]any) *domain.Task {
	t.Helper()
	task, err := f.store.AddTask(context.Background(), fields)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func (f *fixture) get(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return task
}

func (f *fixture) run(t *testing.T, opts SyncOptions, items ...domain.Item) *domain.UpdateSet {
	t.Helper()
	updates, err := f.sync.Synchronize(context.Background(), stream(items...), opts)
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	return updates
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	batch := func() []domain.Item {
		first := alphaIssue("1", "(bw)#1 - first")
		first["annotations"] = []string{"@ann - looks good"}
		first["tags"] = []string{"remote"}
		return issues(first, betaIssue("https://b/1", "(bw)#b1 - beta"))
	}

	updates := f.run(t, options(), batch()...)
	if len(updates.New) != 2 {
		t.Fatalf("expected 2 new tasks, got %d", len(updates.New))
	}

	updates = f.run(t, options(), batch()...)
	if len(updates.New) != 0 || len(updates.Changed) != 0 || len(updates.Closed) != 0 {
		t.Fatalf("second run must be a no-op: %+v", updates)
	}
	if len(updates.Existing) != 2 {
		t.Fatalf("expected 2 existing tasks, got %d", len(updates.Existing))
	}
	if f.reporter.last() != "Sync complete: no changes" {
		t.Fatalf("unexpected summary: %q", f.reporter.last())
	}
}

func TestDeduplicatorMergesTags(t *testing.T) {
	t.Parallel()

	first := alphaIssue("1", "first seen")
	first["tags"] = []string{"A"}
	second := alphaIssue("1", "second seen")
	second["tags"] = []string{"B", "A"}

	dedup := NewDeduplicator(testSchema)
	if dup, err := dedup.Add(first); err != nil || dup {
		t.Fatalf("unexpected first add: %v %v", dup, err)
	}
	if dup, err := dedup.Add(second); err != nil || !dup {
		t.Fatalf("unexpected second add: %v %v", dup, err)
	}

	got := dedup.Issues()
	if len(got) != 1 {
		t.Fatalf("expected one issue, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Strings("tags"), []string{"A", "B"}) {
		t.Fatalf("unexpected tags: %v", got[0]["tags"])
	}
	if got[0]["description"] != "first seen" {
		t.Fatalf("first issue fields must win: %v", got[0])
	}
}

func TestUniqueIdentifierIsOrderIndependent(t *testing.T) {
	t.Parallel()

	schema := domain.KeySchema{{Service: "gamma", Group: domain.KeyGroup{"repo", "number"}}}
	a, err := UniqueIdentifier(schema, domain.Issue{"repo": "x", "number": 1, "description": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := UniqueIdentifier(schema, domain.Issue{"number": 1, "description": "b", "repo": "x"})
	if a != b || a != `{"number":1,"repo":"x"}` {
		t.Fatalf("unexpected identifiers: %s %s", a, b)
	}

	if _, err := UniqueIdentifier(schema, domain.Issue{"repo": "x"}); !errors.Is(err, ErrNoUniqueKey) {
		t.Fatalf("expected ErrNoUniqueKey, got %v", err)
	}
}

func TestStaticFieldsAreProtected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{"alphaid": "1", "description": "same", "priority": "H"})

	issue := alphaIssue("1", "same")
	issue["priority"] = "L"
	updates := f.run(t, options(), issues(issue)...)

	if len(updates.Changed) != 0 || len(updates.Existing) != 1 {
		t.Fatalf("unexpected buckets: %+v", updates)
	}
	if got := f.get(t, task.UUID()).String("priority"); got != "H" {
		t.Fatalf("static priority overwritten: %s", got)
	}
}

func TestTargetStaticFieldsAreProtected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{"alphaid": "1", "description": "local edit"})

	opts := options()
	opts.Targets = []config.ServiceConfig{{Target: "a", Service: "alpha", StaticFields: []string{"description"}}}
	f.run(t, opts, issues(alphaIssue("1", "remote title"))...)

	if got := f.get(t, task.UUID()).String("description"); got != "local edit" {
		t.Fatalf("target static field overwritten: %s", got)
	}
}

func TestDivergedTasksAreReportedNotModified(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{"alphaid": "1", "description": "done here", "alphaurl": "https://a/1"})
	if err := f.store.CompleteTask(context.Background(), task.UUID()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	before := f.get(t, task.UUID()).Fields()

	opts := options()
	opts.Main.ReopenCompletedTasks = false
	updates := f.run(t, opts, issues(alphaIssue("1", "still open upstream"))...)

	if len(updates.Diverged) != 1 || updates.Diverged[0].UUID != task.UUID() || updates.Diverged[0].Service != "alpha" {
		t.Fatalf("unexpected diverged bucket: %+v", updates.Diverged)
	}
	if len(updates.Changed)+len(updates.New)+len(updates.Closed)+len(updates.Existing) != 0 {
		t.Fatalf("diverged task must not land in other buckets: %+v", updates)
	}
	if after := f.get(t, task.UUID()).Fields(); !reflect.DeepEqual(before, after) {
		t.Fatalf("diverged task mutated:\nbefore %v\nafter  %v", before, after)
	}
	if len(f.reporter.tables) != 1 || !reflect.DeepEqual(f.reporter.tables[0][0], []string{"ALPHA", "done here", "1", "https://a/1"}) {
		t.Fatalf("unexpected diverged report: %v", f.reporter.tables)
	}
	if n := strings.Count(f.logs.String(), `level=WARN msg="task completed locally but still open upstream"`); n != 1 {
		t.Fatalf("expected one divergence warning, got %d:\n%s", n, f.logs.String())
	}
	if !strings.Contains(f.reporter.last(), "⚠ 1 diverged") {
		t.Fatalf("unexpected summary: %q", f.reporter.last())
	}
}

func TestCompletedTasksAreReopened(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{"alphaid": "1", "description": "reopen me"})
	if err := f.store.CompleteTask(context.Background(), task.UUID()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	updates := f.run(t, options(), issues(alphaIssue("1", "reopen me"))...)
	if len(updates.Changed) != 1 {
		t.Fatalf("expected reopened task to change, got %+v", updates)
	}
	reopened := f.get(t, task.UUID())
	if reopened.Status() != domain.StatusPending || reopened.Get("end") != nil {
		t.Fatalf("task not reopened: %v", reopened.Fields())
	}
}

func TestFailedTargetTasksAreNotClosed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	alphaTask := f.add(t, map[string]any{"alphaid": "1", "description": "alpha"})
	betaGone := f.add(t, map[string]any{"betaurl": "https://b/gone", "description": "beta gone"})

	items := []domain.Item{{Failed: "a"}}
	items = append(items, issues(betaIssue("https://b/new", "beta new"))...)
	updates := f.run(t, options(), items...)

	if len(updates.New) != 1 {
		t.Fatalf("healthy target must still produce results: %+v", updates)
	}
	if !reflect.DeepEqual(updates.Closed, []string{betaGone.UUID()}) {
		t.Fatalf("unexpected closed set: %v", updates.Closed)
	}
	if f.get(t, alphaTask.UUID()).Status() != domain.StatusPending {
		t.Fatalf("failed target's task was closed")
	}
}

func TestFailedSiblingTargetKeepsSharedServiceOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	kept := f.add(t, map[string]any{"alphaid": "1", "description": "alpha 1"})
	sibling := f.add(t, map[string]any{"alphaid": "9", "description": "alpha 9"})

	opts := options()
	opts.Targets = []config.ServiceConfig{
		{Target: "a1", Service: "alpha"},
		{Target: "a2", Service: "alpha"},
	}
	opts.Schema = testSchema[:1]

	first := alphaIssue("1", "alpha 1")
	first["target"] = "a1"
	items := append(issues(first), domain.Item{Failed: "a2"})
	updates := f.run(t, opts, items...)

	if len(updates.Closed) != 0 {
		t.Fatalf("unexpected closed set: %v", updates.Closed)
	}
	for _, id := range []string{kept.UUID(), sibling.UUID()} {
		if f.get(t, id).Status() != domain.StatusPending {
			t.Fatalf("task %s was closed", id)
		}
	}
}

func TestCloseSetOnlyCoversMissingTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, id := range []string{"1", "2", "3"} {
		f.add(t, map[string]any{"alphaid": id, "description": "alpha " + id})
	}
	missing, _ := f.store.FilterTasks(context.Background(), ports.Filter{Equal: map[string]any{"alphaid": "3"}})
	other := f.add(t, map[string]any{"betaurl": "https://b/1", "description": "beta"})
	manual := f.add(t, map[string]any{"description": "hand written"})

	opts := options()
	opts.Targets = []config.ServiceConfig{{Target: "a", Service: "alpha"}}
	opts.Schema = testSchema[:1]
	updates := f.run(t, opts, issues(alphaIssue("1", "alpha 1"), alphaIssue("2", "alpha 2"))...)

	if !reflect.DeepEqual(updates.Closed, []string{missing[0].UUID()}) {
		t.Fatalf("unexpected closed set: %v", updates.Closed)
	}
	if f.get(t, missing[0].UUID()).Status() != domain.StatusCompleted {
		t.Fatalf("missing task not completed")
	}
	for _, id := range []string{other.UUID(), manual.UUID()} {
		if f.get(t, id).Status() != domain.StatusPending {
			t.Fatalf("unrelated task %s was closed", id)
		}
	}
}

func TestAmbiguousMatchesAreSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	one := f.add(t, map[string]any{"alphaid": "1", "description": "copy one"})
	two := f.add(t, map[string]any{"alphaid": "1", "description": "copy two"})
	before := []map[string]any{f.get(t, one.UUID()).Fields(), f.get(t, two.UUID()).Fields()}

	updates := f.run(t, options(), issues(alphaIssue("1", "remote"))...)

	if updates.NetChanges() != 0 || len(updates.Existing) != 0 {
		t.Fatalf("ambiguous issue must be skipped: %+v", updates)
	}
	after := []map[string]any{f.get(t, one.UUID()).Fields(), f.get(t, two.UUID()).Fields()}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("ambiguous tasks mutated")
	}
	if n := strings.Count(f.logs.String(), "level=WARN msg=\"multiple matches"); n != 1 {
		t.Fatalf("expected exactly one warning, got %d:\n%s", n, f.logs.String())
	}
}

func TestCompletedDuplicatesCollapse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		task := f.add(t, map[string]any{"alphaid": "1", "description": "legacy"})
		if err := f.store.CompleteTask(context.Background(), task.UUID()); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	id, err := FindTaskUUID(context.Background(), f.store, testSchema, alphaIssue("1", "legacy"))
	if err != nil || id == "" {
		t.Fatalf("expected collapsed match, got %q %v", id, err)
	}
}

func TestAnnotationFuzzyMerge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{
		"alphaid":     "1",
		"description": "annotated",
		"annotations": []string{"Fixed bug!!"},
	})

	issue := alphaIssue("1", "annotated")
	issue["annotations"] = []string{"Fixed bug", "New comment"}
	f.run(t, options(), issues(issue)...)

	got := f.get(t, task.UUID()).Strings("annotations")
	if !reflect.DeepEqual(got, []string{"Fixed bug!!", "New comment"}) {
		t.Fatalf("unexpected annotations: %q", got)
	}
}

func TestReplaceTagsKeepsStaticTags(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	task := f.add(t, map[string]any{
		"alphaid":     "1",
		"description": "tagged",
		"tags":        []string{"old", "keep", "shared"},
	})

	opts := options()
	opts.Main.ReplaceTags = true
	opts.Main.StaticTags = []string{"keep"}
	issue := alphaIssue("1", "tagged")
	issue["tags"] = []string{"shared", "fresh"}
	f.run(t, opts, issues(issue)...)

	got := f.get(t, task.UUID()).Strings("tags")
	if !reflect.DeepEqual(got, []string{"keep", "shared", "fresh"}) {
		t.Fatalf("unexpected tags: %q", got)
	}
}

func TestMissingDescriptionAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.sync.Synchronize(context.Background(), stream(issues(alphaIssue("1", ""))...), options())
	if !errors.Is(err, ErrMissingDescription) {
		t.Fatalf("expected ErrMissingDescription, got %v", err)
	}

	_, err = f.sync.Synchronize(context.Background(), stream(issues(domain.Issue{"description": "x"})...), options())
	if !errors.Is(err, ErrNoUniqueKey) {
		t.Fatalf("expected ErrNoUniqueKey, got %v", err)
	}
}

func TestNormalizesPriorityAndBytes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	issue := alphaIssue("1", "bytes")
	issue["priority"] = ""
	issue["project"] = []byte("café")
	issue["blob"] = []byte{0xff, 0xfe}
	updates := f.run(t, options(), issues(issue)...)

	created := updates.New[0]
	if created["priority"] != nil {
		t.Fatalf("empty priority must become nil, got %v", created["priority"])
	}
	if created["project"] != "café" {
		t.Fatalf("utf-8 bytes not decoded: %v", created["project"])
	}
	if _, ok := created["blob"].([]byte); !ok {
		t.Fatalf("invalid bytes must be kept, got %T", created["blob"])
	}
	if _, ok := created["target"]; ok {
		t.Fatalf("routing field must be removed")
	}
}

func TestDryRunDoesNotTouchStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	gone := f.add(t, map[string]any{"alphaid": "9", "description": "gone"})
	opts := options()
	opts.DryRun = true
	opts.Notifications.Enabled = true

	updates := f.run(t, opts, issues(alphaIssue("1", "new one"))...)
	if len(updates.New) != 1 || len(updates.Closed) != 1 {
		t.Fatalf("dry run must still compute updates: %+v", updates)
	}
	all, _ := f.store.FilterTasks(context.Background(), ports.Filter{})
	if len(all) != 1 || f.get(t, gone.UUID()).Status() != domain.StatusPending {
		t.Fatalf("dry run mutated the store")
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("dry run sent notifications: %v", f.notifier.sent)
	}
	if !strings.Contains(strings.Join(f.reporter.lines, "\n"), "Adding 1 tasks (dry run)") {
		t.Fatalf("missing dry run marker: %v", f.reporter.lines)
	}
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.add(t, map[string]any{"alphaid": "9", "description": "gone"})
	opts := options()
	opts.Notifications = config.NotificationConfig{Enabled: true, TaskCrudSticky: true}
	f.run(t, opts, issues(alphaIssue("1", "created"))...)

	var messages []string
	for _, n := range f.notifier.sent {
		messages = append(messages, n.Message)
	}
	want := []string{"Created task: created", "Completed task: gone", "New: 1, Changed: 0, Completed: 1"}
	if !reflect.DeepEqual(messages, want) {
		t.Fatalf("unexpected notifications: %q", messages)
	}

	f.notifier.sent = nil
	opts.Notifications.OnlyOnNewTasks = true
	f.run(t, opts, issues(alphaIssue("1", "created"))...)
	if len(f.notifier.sent) != 0 {
		t.Fatalf("no-change run must stay silent: %v", f.notifier.sent)
	}
}

type failingStore struct {
	*storage.MemoryStore
	failOn string
}

func (s failingStore) AddTask(ctx context.Context, fields map[string]any) (*domain.Task, error) {
	if fields["description"] == s.failOn {
		return nil, errors.New("store rejected task")
	}
	return s.MemoryStore.AddTask(ctx, fields)
}

func TestStoreWriteFaultsAreSkipped(t *testing.T) {
	t.Parallel()

	store := failingStore{MemoryStore: storage.NewMemoryStore(), failOn: "bad"}
	engine := NewSynchronizer(SynchronizerDeps{Store: store})

	updates, err := engine.Synchronize(context.Background(),
		stream(issues(alphaIssue("1", "bad"), alphaIssue("2", "good"))...), options())
	if err != nil {
		t.Fatalf("write faults must not abort: %v", err)
	}
	if len(updates.New) != 2 {
		t.Fatalf("unexpected new bucket: %d", len(updates.New))
	}
	all, _ := store.FilterTasks(context.Background(), ports.Filter{})
	if len(all) != 1 || all[0].String("description") != "good" {
		t.Fatalf("unexpected store content: %v", all)
	}
}
