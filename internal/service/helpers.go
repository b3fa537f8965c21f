package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"IssueSync/internal/render"
)

// Issue classes understood by Description.
const (
	ClassIssue        = "issue"
	ClassPullRequest  = "pull_request"
	ClassMergeRequest = "merge_request"
	ClassTodo         = "todo"
	ClassTask         = "task"
	ClassSubtask      = "subtask"
)

var classMarkup = map[string]string{
	ClassIssue:        "Is",
	ClassPullRequest:  "PR",
	ClassMergeRequest: "MR",
	ClassTodo:         "",
	ClassTask:         "",
	ClassSubtask:      "Subtask #",
}

const urlSeparator = " .. "

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Comment is an (author, message) pair turned into an annotation.
type Comment struct {
	Author  string
	Message string
}

// Description builds the default "(bw)<cls>#<number> - <title> .. <url>" text.
func (e Env) Description(ctx context.Context, title, url string, number any, cls string) string {
	if !e.Main.InlineLinks {
		url = ""
	} else if url != "" {
		url = e.Links.Process(ctx, e.Main.Shorten, url)
	}

	title = truncate(title, e.Main.DescriptionLength)
	separator := ""
	if url != "" {
		separator = urlSeparator
	}
	return fmt.Sprintf("(bw)%s#%v - %s%s%s", classMarkup[cls], number, title, separator, url)
}

// TagsFromLabels converts remote labels into tags through label_template.
// Labels are reduced to [a-zA-Z0-9_] first.
func (e Env) TagsFromLabels(labels []string, record map[string]any) ([]string, error) {
	if !e.Config.ImportLabelsAsTags {
		return nil, nil
	}

	data := make(map[string]any, len(record)+1)
	for k, v := range record {
		data[k] = v
	}

	tags := make([]string, 0, len(labels))
	for _, label := range labels {
		data["label"] = nonAlnum.ReplaceAllString(label, "_")
		tag, err := render.String(e.Config.LabelTemplate, data)
		if err != nil {
			return nil, fmt.Errorf("label template: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Priority maps a remote priority, falling back to default_priority.
func (e Env) Priority(mapping map[string]string, remote string) string {
	if p, ok := mapping[remote]; ok {
		return p
	}
	return e.Config.DefaultPriority
}

// Annotations renders comments into annotation lines honoring the
// annotation_* options. A non-empty url is prepended when annotation_links
// is enabled.
func (e Env) Annotations(ctx context.Context, comments []Comment, url string) []string {
	var out []string
	if url != "" && e.Main.AnnotationLinks {
		out = append(out, e.Links.Process(ctx, e.Main.Shorten, url))
	}
	if !e.Main.AnnotationComments {
		return out
	}

	for _, c := range comments {
		message := strings.TrimSpace(c.Message)
		if message == "" || c.Author == "" {
			continue
		}
		if !e.Main.AnnotationNewlines {
			message = strings.NewReplacer("\n", "", "\r", "").Replace(message)
		}
		if n := e.Main.AnnotationLength; n > 0 && len([]rune(message)) > n {
			message = truncate(message, n) + "..."
		}
		out = append(out, fmt.Sprintf("@%s - %s", c.Author, message))
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
