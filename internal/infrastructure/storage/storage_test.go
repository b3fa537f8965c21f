package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	stores := map[string]Store{}
	for name, dsn := range map[string]string{
		"memory": "memory:",
		"file":   "file://" + filepath.Join(t.TempDir(), "tasks.yaml"),
		"sqlite": "sqlite://:memory:",
	} {
		store, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		t.Cleanup(func() { _ = store.Close() })
		stores[name] = store
	}
	return stores
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range openStores(t) {
		ctx := context.Background()

		first, err := store.AddTask(ctx, map[string]any{
			"description": "first",
			"linearurl":   "https://linear.app/1",
			"tags":        []string{"a", "b"},
			"due":         due,
		})
		if err != nil {
			t.Fatalf("%s: add: %v", name, err)
		}
		if first.UUID() == "" || first.Status() != domain.StatusPending || first.Get("entry") == nil {
			t.Fatalf("%s: unexpected created task: %v", name, first.Fields())
		}

		second, err := store.AddTask(ctx, map[string]any{"description": "second", "todoistid": "42"})
		if err != nil {
			t.Fatalf("%s: add second: %v", name, err)
		}

		got, err := store.FilterTasks(ctx, ports.Filter{
			Equal:    map[string]any{"linearurl": "https://linear.app/1"},
			Statuses: []domain.Status{domain.StatusPending, domain.StatusWaiting, domain.StatusCompleted},
		})
		if err != nil || len(got) != 1 || got[0].UUID() != first.UUID() {
			t.Fatalf("%s: unexpected equality filter result: %v %v", name, got, err)
		}
		if !domain.ValuesEqual(got[0].Get("due"), due) {
			t.Fatalf("%s: due not preserved: %v", name, got[0].Get("due"))
		}
		if tags := got[0].Strings("tags"); len(tags) != 2 || tags[1] != "b" {
			t.Fatalf("%s: tags not preserved: %v", name, tags)
		}

		got, _ = store.FilterTasks(ctx, ports.Filter{Present: []string{"todoistid"}})
		if len(got) != 1 || got[0].UUID() != second.UUID() {
			t.Fatalf("%s: unexpected presence filter result: %v", name, got)
		}

		got, _ = store.FilterTasks(ctx, ports.Filter{Equal: map[string]any{"todoistid": nil}})
		if len(got) != 1 || got[0].UUID() != first.UUID() {
			t.Fatalf("%s: unexpected absence filter result: %v", name, got)
		}

		all, _ := store.FilterTasks(ctx, ports.Filter{})
		if len(all) != 2 || all[0].UUID() != first.UUID() {
			t.Fatalf("%s: expected creation order, got %v", name, all)
		}

		task, err := store.GetTask(ctx, first.UUID())
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		task.Set("priority", "H")
		if _, err := store.UpdateTask(ctx, task); err != nil {
			t.Fatalf("%s: update: %v", name, err)
		}
		reloaded, _ := store.GetTask(ctx, first.UUID())
		if reloaded.String("priority") != "H" {
			t.Fatalf("%s: update not persisted: %v", name, reloaded.Fields())
		}

		if err := store.CompleteTask(ctx, second.UUID()); err != nil {
			t.Fatalf("%s: complete: %v", name, err)
		}
		done, _ := store.GetTask(ctx, second.UUID())
		if done.Status() != domain.StatusCompleted || done.Get("end") == nil {
			t.Fatalf("%s: unexpected completed task: %v", name, done.Fields())
		}
		pending, _ := store.FilterTasks(ctx, ports.Filter{Statuses: []domain.Status{domain.StatusPending}})
		if len(pending) != 1 {
			t.Fatalf("%s: expected one pending task, got %d", name, len(pending))
		}

		if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
			t.Fatalf("%s: expected ErrTaskNotFound, got %v", name, err)
		}

		if err := store.ConfigureUDAs(ctx, map[string]domain.UDA{"linearurl": {Type: "string", Label: "Linear URL"}}); err != nil {
			t.Fatalf("%s: udas: %v", name, err)
		}
	}
}

func TestFileStoreReloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "tasks.yaml")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := store.AddTask(ctx, map[string]any{"description": "persist me", "annotations": []string{"@a - hi"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.ConfigureUDAs(ctx, map[string]domain.UDA{"x": {Type: "string", Label: "X"}}); err != nil {
		t.Fatalf("udas: %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	task, err := reopened.GetTask(ctx, created.UUID())
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if task.String("description") != "persist me" || len(task.Strings("annotations")) != 1 {
		t.Fatalf("unexpected reloaded task: %v", task.Fields())
	}
	if _, ok := task.Get("entry").(time.Time); !ok {
		t.Fatalf("expected entry to reload as time, got %T", task.Get("entry"))
	}
	if reopened.UDAs()["x"].Label != "X" {
		t.Fatalf("udas not reloaded: %v", reopened.UDAs())
	}
}

func TestMemoryStoreRollsBackFailedPersist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	task, _ := store.AddTask(ctx, map[string]any{"description": "keep"})

	store.persist = func() error { return errors.New("disk full") }
	if _, err := store.AddTask(ctx, map[string]any{"description": "lost"}); err == nil {
		t.Fatalf("expected persist error")
	}
	task.Set("description", "changed")
	if _, err := store.UpdateTask(ctx, task); err == nil {
		t.Fatalf("expected persist error")
	}

	all, _ := store.FilterTasks(ctx, ports.Filter{})
	if len(all) != 1 || all[0].String("description") != "keep" {
		t.Fatalf("failed mutations must not be visible: %v", all)
	}
}

func TestSplitDSN(t *testing.T) {
	t.Parallel()

	cases := map[string][2]string{
		"memory:":                {"memory", ""},
		"file:///tmp/tasks.yaml": {"file", "/tmp/tasks.yaml"},
		"/tmp/tasks.yaml":        {"", "/tmp/tasks.yaml"},
		"sqlite://:memory:":      {"sqlite", ":memory:"},
		"C:/data/tasks.yaml":     {"", "C:/data/tasks.yaml"},
		"./dir.v2:x/tasks.yaml":  {"", "./dir.v2:x/tasks.yaml"},
		"postgres://u@h/db":      {"postgres", "u@h/db"},
	}
	for dsn, want := range cases {
		scheme, rest := splitDSN(dsn)
		if scheme != want[0] || rest != want[1] {
			t.Fatalf("%s: got (%q, %q)", dsn, scheme, rest)
		}
	}
}
