package usecase

import (
	"reflect"
	"testing"

	"IssueSync/internal/domain"
)

func TestAnnotationsMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		left, right string
		want        bool
	}{
		{"Fixed bug!!", "Fixed bug", true},
		{"@ann - hello world", "@ann -  hello   world", true},
		{"@ann - a long comment that was cut", "@ann - a long comm", true},
		{"@ann - hello", "@bob - hello", false},
		{"Fixed bug", "Fixed bag", false},
	}
	for _, tc := range cases {
		if got := AnnotationsMatch(tc.left, tc.right); got != tc.want {
			t.Fatalf("AnnotationsMatch(%q, %q) = %v", tc.left, tc.right, got)
		}
	}
}

func TestMergeLeftExact(t *testing.T) {
	t.Parallel()

	task := domain.NewTask(map[string]any{"tags": []string{"a", "b"}})
	MergeLeft("tags", task, domain.Issue{"tags": []string{"b", "c", "c"}}, false)

	if got := task.Strings("tags"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected tags: %q", got)
	}
}

func TestMergeLeftOnMissingField(t *testing.T) {
	t.Parallel()

	task := domain.NewTask(map[string]any{})
	MergeLeft("tags", task, domain.Issue{}, false)
	if len(task.Changes()) != 0 {
		t.Fatalf("empty merge must not register a change: %v", task.Changes())
	}
}

func TestReplaceLeft(t *testing.T) {
	t.Parallel()

	task := domain.NewTask(map[string]any{"tags": []string{"local", "keep", "both"}})
	ReplaceLeft("tags", task, domain.Issue{"tags": []string{"both", "remote"}}, []string{"keep"})

	if got := task.Strings("tags"); !reflect.DeepEqual(got, []string{"keep", "both", "remote"}) {
		t.Fatalf("unexpected tags: %q", got)
	}
}
