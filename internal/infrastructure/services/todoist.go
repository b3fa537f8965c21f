package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/service"
)

const (
	todoistService     = "todoist"
	todoistKeyring     = "todoist://"
	defaultTodoistHost = "https://api.todoist.com/rest/v2"
)

// Todoist task fields.
const (
	TodoistAssignee    = "todoistassignee"
	TodoistAssigner    = "todoistassigner"
	TodoistContent     = "todoistcontent"
	TodoistDescription = "todoistdescription"
	TodoistDue         = "todoistdue"
	TodoistDeadline    = "todoistdeadline"
	TodoistDuration    = "todoistduration"
	TodoistID          = "todoistid"
	TodoistParentID    = "todoistparentid"
	TodoistSection     = "todoistsection"
	TodoistURL         = "todoisturl"
)

var todoistPriorities = map[string]string{
	"4": "H",
	"3": "M",
	"2": "L",
	"1": "",
}

type todoistOptions struct {
	Token            string `mapstructure:"token"`
	Filter           string `mapstructure:"filter"`
	Host             string `mapstructure:"host"`
	CharOpenBracket  string `mapstructure:"char_open_bracket"`
	CharCloseBracket string `mapstructure:"char_close_bracket"`
}

// TodoistDescriptor registers the Todoist REST adapter.
func TodoistDescriptor() service.Descriptor {
	return service.Descriptor{
		Name: todoistService,
		Properties: map[string]any{
			"token":              config.StringSchema(),
			"filter":             config.StringSchema(),
			"host":               map[string]any{"type": "string", "pattern": "^https?://"},
			"char_open_bracket":  config.StringSchema(),
			"char_close_bracket": config.StringSchema(),
		},
		Required: []string{"token"},
		Defaults: map[string]any{
			"filter":             "(view all)",
			"host":               defaultTodoistHost,
			"char_open_bracket":  "〈",
			"char_close_bracket": "〉",
		},
		UniqueKeys: []domain.KeyGroup{{TodoistID}},
		UDAs: map[string]domain.UDA{
			TodoistID:          {Type: "string", Label: "Todoist ID"},
			TodoistContent:     {Type: "string", Label: "Todoist Content"},
			TodoistDescription: {Type: "string", Label: "Todoist Description"},
			TodoistDue:         {Type: "date", Label: "Todoist Due Date"},
			TodoistDeadline:    {Type: "date", Label: "Todoist Deadline Date"},
			TodoistDuration:    {Type: "string", Label: "Todoist Duration"},
			TodoistSection:     {Type: "string", Label: "Todoist Section"},
			TodoistAssignee:    {Type: "string", Label: "Todoist Assignee"},
			TodoistAssigner:    {Type: "string", Label: "Todoist Assigner"},
			TodoistURL:         {Type: "string", Label: "Todoist URL"},
			TodoistParentID:    {Type: "string", Label: "Todoist Parent ID"},
		},
		SecretOption:   "token",
		KeyringService: func(config.ServiceConfig) string { return todoistKeyring },
		New:            newTodoist,
	}
}

// Todoist pulls tasks from the Todoist REST API.
type Todoist struct {
	env     service.Env
	opts    todoistOptions
	filter  string
	escaper *strings.Replacer
}

func newTodoist(env service.Env) (service.Service, error) {
	var opts todoistOptions
	if err := env.Config.Decode(&opts); err != nil {
		return nil, err
	}
	if opts.Host == "" {
		opts.Host = defaultTodoistHost
	}
	opts.Host = strings.TrimSuffix(opts.Host, "/")

	filter := opts.Filter
	if assignee := env.Config.OnlyIfAssigned; assignee != "" {
		unassigned := ""
		if env.Config.AlsoUnassigned {
			unassigned = " | shared & !assigned"
		}
		filter += fmt.Sprintf(" & (!shared | shared & assigned to: %s%s)", assignee, unassigned)
	}
	env.Log().Info("using todoist filter", "filter", filter)

	return &Todoist{
		env:     env,
		opts:    opts,
		filter:  filter,
		escaper: strings.NewReplacer(`"`, "'", "[", opts.CharOpenBracket, "]", opts.CharCloseBracket),
	}, nil
}

type todoistDue struct {
	Date     string `json:"date"`
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone"`
}

type todoistDuration struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

type todoistTask struct {
	ID          string           `json:"id"`
	Content     string           `json:"content"`
	Description string           `json:"description"`
	ProjectID   string           `json:"project_id"`
	SectionID   string           `json:"section_id"`
	ParentID    string           `json:"parent_id"`
	Labels      []string         `json:"labels"`
	Priority    int              `json:"priority"`
	Due         *todoistDue      `json:"due"`
	Deadline    *todoistDue      `json:"deadline"`
	Duration    *todoistDuration `json:"duration"`
	AssigneeID  string           `json:"assignee_id"`
	AssignerID  string           `json:"assigner_id"`
	CreatedAt   string           `json:"created_at"`
	URL         string           `json:"url"`
	IsCompleted bool             `json:"is_completed"`
}

type todoistNamed struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type todoistComment struct {
	Content  string `json:"content"`
	PostedBy string `json:"posted_uid"`
}

// Issues indexes projects, sections and collaborators, then yields every
// task matching the configured filter.
func (t *Todoist) Issues(ctx context.Context, yield func(service.Issue) error) error {
	token, err := t.env.Secret(ctx, todoistKeyring, t.opts.Token)
	if err != nil {
		return fmt.Errorf("todoist token: %w", err)
	}

	var projects, sections []todoistNamed
	if err := getJSON(ctx, t.env.HTTPClient(), t.opts.Host+"/projects", token, &projects); err != nil {
		return fmt.Errorf("todoist projects: %w", err)
	}
	if err := getJSON(ctx, t.env.HTTPClient(), t.opts.Host+"/sections", token, &sections); err != nil {
		return fmt.Errorf("todoist sections: %w", err)
	}

	projectIndex := index(projects, func(p todoistNamed) string { return p.Name })
	sectionIndex := index(sections, func(s todoistNamed) string { return s.Name })
	users := map[string]string{}
	for _, project := range projects {
		var collaborators []todoistNamed
		endpoint := fmt.Sprintf("%s/projects/%s/collaborators", t.opts.Host, url.PathEscape(project.ID))
		if err := getJSON(ctx, t.env.HTTPClient(), endpoint, token, &collaborators); err != nil {
			return fmt.Errorf("todoist collaborators: %w", err)
		}
		for _, user := range collaborators {
			users[user.ID] = fmt.Sprintf("%s <%s>", user.Name, user.Email)
		}
	}

	var tasks []todoistTask
	endpoint := t.opts.Host + "/tasks?" + url.Values{"filter": {t.filter}}.Encode()
	if err := getJSON(ctx, t.env.HTTPClient(), endpoint, token, &tasks); err != nil {
		return fmt.Errorf("todoist tasks: %w", err)
	}

	for _, task := range tasks {
		annotations, err := t.annotations(ctx, token, users, task)
		if err != nil {
			return err
		}

		issue, err := t.issue(ctx, task, todoistExtra{
			project:     projectIndex[task.ProjectID],
			section:     sectionIndex[task.SectionID],
			assignee:    users[task.AssigneeID],
			assigner:    users[task.AssignerID],
			annotations: annotations,
		})
		if err != nil {
			return err
		}
		if err := yield(issue); err != nil {
			return err
		}
	}
	return nil
}

func (t *Todoist) annotations(ctx context.Context, token string, users map[string]string, task todoistTask) ([]string, error) {
	var comments []todoistComment
	if t.env.Main.AnnotationComments {
		endpoint := t.opts.Host + "/comments?" + url.Values{"task_id": {task.ID}}.Encode()
		if err := getJSON(ctx, t.env.HTTPClient(), endpoint, token, &comments); err != nil {
			return nil, fmt.Errorf("todoist comments: %w", err)
		}
	}

	converted := make([]service.Comment, 0, len(comments))
	for _, c := range comments {
		converted = append(converted, service.Comment{Author: users[c.PostedBy], Message: c.Content})
	}
	return nonNil(t.env.Annotations(ctx, converted, task.URL)), nil
}

type todoistExtra struct {
	project     string
	section     string
	assignee    string
	assigner    string
	annotations []string
}

func (t *Todoist) issue(ctx context.Context, task todoistTask, extra todoistExtra) (service.Issue, error) {
	status := domain.StatusPending
	if task.IsCompleted {
		status = domain.StatusCompleted
	}

	var duration any
	if task.Duration != nil {
		duration = fmt.Sprintf("%d %s", task.Duration.Amount, task.Duration.Unit)
	}

	due := dueTime(task.Due)
	record := domain.Issue{
		domain.FieldProject:     optional(extra.project),
		domain.FieldPriority:    t.env.Priority(todoistPriorities, strconv.Itoa(task.Priority)),
		domain.FieldAnnotations: extra.annotations,
		domain.FieldDue:         due,
		domain.FieldStatus:      string(status),
		domain.FieldEntry:       timestamp(task.CreatedAt),
		TodoistID:               task.ID,
		TodoistContent:          t.escaper.Replace(task.Content),
		TodoistDescription:      optional(t.escaper.Replace(task.Description)),
		TodoistDue:              due,
		TodoistDeadline:         dueTime(task.Deadline),
		TodoistDuration:         duration,
		TodoistAssignee:         optional(extra.assignee),
		TodoistAssigner:         optional(extra.assigner),
		TodoistSection:          optional(extra.section),
		TodoistURL:              task.URL,
		TodoistParentID:         optional(task.ParentID),
	}

	tags := []string{}
	if len(task.Labels) > 0 {
		converted, err := t.env.TagsFromLabels(task.Labels, record)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			tags = converted
		}
	}
	record[domain.FieldTags] = tags

	cls := service.ClassTask
	if task.ParentID != "" {
		cls = service.ClassSubtask
	}
	description := t.env.Description(ctx, t.escaper.Replace(task.Content), task.URL, task.ID, cls)

	return service.NewIssue(record, description, map[string]any{
		"project":  extra.project,
		"section":  extra.section,
		"assignee": extra.assignee,
		"assigner": extra.assigner,
	}), nil
}

// dueTime reads a Todoist due or deadline. Values without a timezone are
// floating and taken as local time; bare dates become local midnight.
func dueTime(due *todoistDue) any {
	if due == nil {
		return nil
	}
	if due.Datetime != "" {
		if due.Timezone != "" {
			if t, err := time.Parse(time.RFC3339, due.Datetime); err == nil {
				return t.UTC()
			}
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", strings.TrimSuffix(due.Datetime, "Z"), time.Local); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(time.DateOnly, due.Date, time.Local); err == nil {
		return t
	}
	return nil
}

func index(items []todoistNamed, value func(todoistNamed) string) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[item.ID] = value(item)
	}
	return out
}
