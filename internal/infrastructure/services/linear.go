package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/service"
)

const (
	linearService     = "linear"
	defaultLinearHost = "https://api.linear.app/graphql"
)

// Linear task fields.
const (
	LinearURL         = "linearurl"
	LinearTitle       = "lineartitle"
	LinearDescription = "lineardescription"
	LinearState       = "linearstate"
	LinearIdentifier  = "linearidentifier"
	LinearTeam        = "linearteam"
	LinearCreator     = "linearcreator"
	LinearAssignee    = "linearassignee"
	LinearCreated     = "linearcreated"
	LinearUpdated     = "linearupdated"
	LinearClosed      = "linearclosed"
)

const linearQuery = `query Issues {
  issues(filter: %s) {
    nodes {
      url
      title
      description
      assignee { name }
      creator { name }
      completedAt
      updatedAt
      createdAt
      project { name }
      labels { nodes { name } }
      state { name }
      identifier
      team { name }
    }
  }
}`

type linearOptions struct {
	APIToken string `mapstructure:"api_token"`
	Host     string `mapstructure:"host"`
}

// LinearDescriptor registers the Linear GraphQL adapter.
func LinearDescriptor() service.Descriptor {
	return service.Descriptor{
		Name: linearService,
		Properties: map[string]any{
			"api_token": config.StringSchema(),
			"host":      map[string]any{"type": "string", "pattern": "^https?://"},
		},
		Required: []string{"api_token"},
		Defaults: map[string]any{
			"host":           defaultLinearHost,
			"label_template": "{{label|replace(' ', '_')}}",
		},
		UniqueKeys: []domain.KeyGroup{{LinearURL}},
		UDAs: map[string]domain.UDA{
			LinearURL:         {Type: "string", Label: "Issue URL"},
			LinearTitle:       {Type: "string", Label: "Issue Title"},
			LinearDescription: {Type: "string", Label: "Issue Description"},
			LinearState:       {Type: "string", Label: "Issue State"},
			LinearIdentifier:  {Type: "string", Label: "Linear Identifier"},
			LinearTeam:        {Type: "string", Label: "Project ID"},
			LinearCreator:     {Type: "string", Label: "Issue Creator"},
			LinearAssignee:    {Type: "string", Label: "Issue Assignee"},
			LinearCreated:     {Type: "date", Label: "Issue Created"},
			LinearUpdated:     {Type: "date", Label: "Issue Updated"},
			LinearClosed:      {Type: "date", Label: "Issue Closed"},
		},
		SecretOption: "api_token",
		KeyringService: func(cfg config.ServiceConfig) string {
			var opts linearOptions
			_ = cfg.Decode(&opts)
			return linearKeyring(opts.Host)
		},
		New: newLinear,
	}
}

func linearKeyring(host string) string {
	if host == "" {
		host = defaultLinearHost
	}
	return "linear://" + strings.TrimSuffix(host, "/")
}

// Linear pulls issues from the Linear GraphQL API.
type Linear struct {
	env   service.Env
	host  string
	token string
}

func newLinear(env service.Env) (service.Service, error) {
	var opts linearOptions
	if err := env.Config.Decode(&opts); err != nil {
		return nil, err
	}
	if env.Config.AlsoUnassigned {
		return nil, fmt.Errorf("linear does not support also_unassigned")
	}
	if opts.Host == "" {
		opts.Host = defaultLinearHost
	}
	return &Linear{env: env, host: strings.TrimSuffix(opts.Host, "/"), token: opts.APIToken}, nil
}

type linearNamed struct {
	Name string `json:"name"`
}

func (n *linearNamed) name() string {
	if n == nil {
		return ""
	}
	return n.Name
}

type linearNode struct {
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Assignee    *linearNamed `json:"assignee"`
	Creator     *linearNamed `json:"creator"`
	CompletedAt string       `json:"completedAt"`
	UpdatedAt   string       `json:"updatedAt"`
	CreatedAt   string       `json:"createdAt"`
	Project     *linearNamed `json:"project"`
	Labels      struct {
		Nodes []linearNamed `json:"nodes"`
	} `json:"labels"`
	State      *linearNamed `json:"state"`
	Identifier string       `json:"identifier"`
	Team       *linearNamed `json:"team"`
}

type linearResponse struct {
	Data struct {
		Issues struct {
			Nodes []linearNode `json:"nodes"`
		} `json:"issues"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Issues runs the issues query and yields one issue per node.
func (l *Linear) Issues(ctx context.Context, yield func(service.Issue) error) error {
	token, err := l.env.Secret(ctx, linearKeyring(l.host), l.token)
	if err != nil {
		return fmt.Errorf("linear token: %w", err)
	}

	nodes, err := l.fetch(ctx, token)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		issue, err := l.issue(ctx, node)
		if err != nil {
			return err
		}
		if err := yield(issue); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linear) query() string {
	filter := "{}"
	if assignee := l.env.Config.OnlyIfAssigned; assignee != "" {
		filter = fmt.Sprintf(`{assignee: {email: {eq: %q}}}`, assignee)
	}
	return fmt.Sprintf(linearQuery, filter)
}

func (l *Linear) fetch(ctx context.Context, token string) ([]linearNode, error) {
	payload, err := json.Marshal(map[string]string{"query": l.query()})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.host, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	var resp linearResponse
	if err := doJSON(l.env.HTTPClient(), req, &resp); err != nil {
		return nil, fmt.Errorf("linear issues: %w", err)
	}
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e.Message == "" {
				e.Message = "Unknown error"
			}
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("linear issues: %s", strings.Join(messages, "; "))
	}
	return resp.Data.Issues.Nodes, nil
}

func (l *Linear) issue(ctx context.Context, node linearNode) (service.Issue, error) {
	labels := make([]string, 0, len(node.Labels.Nodes))
	for _, label := range node.Labels.Nodes {
		labels = append(labels, label.Name)
	}

	record := domain.Issue{
		domain.FieldProject:     projectName(node.Project.name()),
		domain.FieldPriority:    l.env.Config.DefaultPriority,
		domain.FieldAnnotations: []string{},
		LinearURL:               node.URL,
		LinearTitle:             optional(node.Title),
		LinearDescription:       optional(node.Description),
		LinearState:             optional(node.State.name()),
		LinearIdentifier:        optional(node.Identifier),
		LinearTeam:              optional(node.Team.name()),
		LinearCreator:           optional(node.Creator.name()),
		LinearAssignee:          optional(node.Assignee.name()),
		LinearCreated:           timestamp(node.CreatedAt),
		LinearUpdated:           timestamp(node.UpdatedAt),
		LinearClosed:            timestamp(node.CompletedAt),
	}

	tags, err := l.env.TagsFromLabels(labels, record)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	record[domain.FieldTags] = tags

	description := l.env.Description(ctx, node.Title, node.URL, node.Identifier, service.ClassTask)
	return service.NewIssue(record, description, nil), nil
}
