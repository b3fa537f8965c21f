package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
)

// ErrAbort is returned by an adapter that wants its target stopped early.
var ErrAbort = errors.New("service aborted")

// Issue is one remote item as seen by its adapter.
type Issue interface {
	// Record returns the service fields plus description, tags, annotations
	// and priority.
	Record() domain.Issue
	// DefaultDescription is used when the record carries no description.
	DefaultDescription() string
	// Extra exposes adapter values to templates without storing them.
	Extra() map[string]any
}

// Service pulls the remote items of one target.
type Service interface {
	Issues(ctx context.Context, yield func(Issue) error) error
}

// Secrets resolves password options through the run-scoped oracle.
type Secrets interface {
	Password(ctx context.Context, keyringService, login, value string) (string, error)
}

// Env is everything a service constructor receives.
type Env struct {
	Config  config.ServiceConfig
	Main    config.MainConfig
	Secrets Secrets
	Client  *http.Client
	Links   *Links
	Logger  *slog.Logger
}

// HTTPClient returns the configured client or the default one.
func (e Env) HTTPClient() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

// Log returns the target logger or the default one.
func (e Env) Log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Secret resolves a password option for the current target.
func (e Env) Secret(ctx context.Context, keyringService, value string) (string, error) {
	if e.Secrets == nil {
		return value, nil
	}
	return e.Secrets.Password(ctx, keyringService, e.Config.Target, value)
}

// NewIssue wraps an adapter record whose default description was computed
// up front.
func NewIssue(record domain.Issue, description string, extra map[string]any) Issue {
	return builtIssue{record: record, description: description, extra: extra}
}

type builtIssue struct {
	record      domain.Issue
	description string
	extra       map[string]any
}

func (i builtIssue) Record() domain.Issue        { return i.record }
func (i builtIssue) DefaultDescription() string { return i.description }
func (i builtIssue) Extra() map[string]any      { return i.extra }
