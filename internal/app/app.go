package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"IssueSync/internal/collect"
	"IssueSync/internal/config"
	"IssueSync/internal/console"
	"IssueSync/internal/domain"
	"IssueSync/internal/infrastructure/hooks"
	"IssueSync/internal/infrastructure/lock"
	"IssueSync/internal/infrastructure/notify"
	"IssueSync/internal/infrastructure/secrets"
	"IssueSync/internal/infrastructure/services"
	"IssueSync/internal/infrastructure/storage"
	"IssueSync/internal/logging"
	"IssueSync/internal/service"
	"IssueSync/internal/usecase"
)

// ErrUnknownKeyringTarget is returned by vault operations on a target that
// does not read its password from the keyring.
var ErrUnknownKeyringTarget = errors.New("unknown keyring target")

// Deps are the optional collaborators of an Application. Zero values pick
// the production implementations.
type Deps struct {
	Registry *service.Registry
	Console  *console.Console
	Logger   *slog.Logger
	Keyring  secrets.Keyring
	Prompt   func(prompt string) (string, error)
	Client   *http.Client
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	registry *service.Registry
	console  *console.Console
	logger   *slog.Logger
	keyring  secrets.Keyring
	prompt   func(string) (string, error)
	client   *http.Client

	// LockTimeout bounds the wait for a concurrent run.
	LockTimeout time.Duration
}

// New validates every target against its service and builds the application.
func New(cfg config.Config, deps Deps) (*Application, error) {
	registry := deps.Registry
	if registry == nil {
		registry = service.NewRegistry()
		services.Register(registry)
	}

	prepared, err := registry.Prepare(cfg)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.New(cfg.Main.LogLevel)
	}
	out := deps.Console
	if out == nil {
		out = console.New(false, false)
	}
	kr := deps.Keyring
	if kr == nil {
		kr = secrets.SystemKeyring{}
	}
	client := deps.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Application{
		cfg:         prepared,
		registry:    registry,
		console:     out,
		logger:      logger,
		keyring:     kr,
		prompt:      deps.Prompt,
		client:      client,
		LockTimeout: lock.DefaultTimeout,
	}, nil
}

// Config returns the prepared configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// PullOptions tune one pull.
type PullOptions struct {
	DryRun bool
	// Debug collects targets one after another.
	Debug bool
}

// Pull collects every target and synchronizes the result into the store
// while holding the run lock.
func (a *Application) Pull(ctx context.Context, opts PullOptions) (*domain.UpdateSet, error) {
	runLock, err := lock.Acquire(ctx, a.cfg.LockPath(), a.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			a.logger.Warn("release lock", "error", err)
		}
	}()

	store, err := storage.Open(ctx, a.cfg.Main.Store)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	schema, err := a.registry.KeySchema(a.cfg.Targets)
	if err != nil {
		return nil, err
	}
	if err := a.configureUDAs(ctx, store, opts.DryRun); err != nil {
		return nil, err
	}

	if err := hooks.Run(ctx, "pre_import", a.cfg.Hooks.PreImport, a.logger); err != nil {
		return nil, err
	}

	notifier, err := notify.New(a.cfg.Notifications, a.logger)
	if err != nil {
		return nil, err
	}

	oracle := secrets.NewOracle(secrets.Options{
		Interactive: a.cfg.Main.Interactive,
		Keyring:     a.keyring,
		Prompt:      a.prompt,
		Logger:      a.logger,
	})

	collector := collect.NewCollector(collect.CollectorDeps{
		Registry: a.registry,
		Main:     a.cfg.Main,
		Targets:  a.cfg.Targets,
		Secrets:  oracle,
		Links:    service.NewLinks(a.client, "", a.logger.With("component", "links")),
		Client:   a.client,
		Progress: a.console,
		Reporter: a.console,
		Logger:   a.logger.With("component", "collector"),
	})
	collector.Debug = opts.Debug

	synchronizer := usecase.NewSynchronizer(usecase.SynchronizerDeps{
		Store:    store,
		Notifier: notifier,
		Reporter: a.console,
		Logger:   a.logger.With("component", "synchronizer"),
	})

	// Dropping out early must not leave workers blocked on the stream.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return synchronizer.Synchronize(ctx, collector.Aggregate(ctx), usecase.SyncOptions{
		Main:          a.cfg.Main,
		Targets:       a.cfg.Targets,
		Schema:        schema,
		Notifications: a.cfg.Notifications,
		DryRun:        opts.DryRun,
	})
}

func (a *Application) configureUDAs(ctx context.Context, store storage.Store, dryRun bool) error {
	udas, err := a.registry.UDAs(a.cfg.Targets)
	if err != nil {
		return err
	}
	if len(udas) == 0 {
		return nil
	}
	a.console.Hint("Service-defined UDAs exist: run 'issuesync uda' to export UDA definitions for your task store.")
	if dryRun {
		return nil
	}
	if err := store.ConfigureUDAs(ctx, udas); err != nil {
		return fmt.Errorf("configure udas: %w", err)
	}
	return nil
}

// UDALines lists the extra fields of the configured services as
// "uda.<name>.type=..." and "uda.<name>.label=..." lines.
func (a *Application) UDALines() ([]string, error) {
	udas, err := a.registry.UDAs(a.cfg.Targets)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, name := range slices.Sorted(maps.Keys(udas)) {
		uda := udas[name]
		lines = append(lines,
			fmt.Sprintf("uda.%s.type=%s", name, uda.Type),
			fmt.Sprintf("uda.%s.label=%s", name, uda.Label),
		)
	}
	return lines, nil
}

// KeyringTargets lists the keyring entries of targets whose options read a
// password through @oracle:use_keyring.
func (a *Application) KeyringTargets() []string {
	var out []string
	for _, target := range a.cfg.Targets {
		d, err := a.registry.Resolve(target.Service)
		if err != nil || d.KeyringService == nil {
			continue
		}
		for _, value := range target.Raw {
			if s, ok := value.(string); ok && strings.Contains(s, secrets.UseKeyring) {
				out = append(out, d.KeyringService(target))
				break
			}
		}
	}
	return out
}

// VaultSet stores a password for a keyring target.
func (a *Application) VaultSet(keyringService, login, password string) error {
	if err := a.checkKeyringTarget(keyringService); err != nil {
		return err
	}
	if err := a.keyring.Set(keyringService, login, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// VaultClear removes a stored password. It reports whether one existed.
func (a *Application) VaultClear(keyringService, login string) (bool, error) {
	if err := a.checkKeyringTarget(keyringService); err != nil {
		return false, err
	}
	current, err := a.keyring.Get(keyringService, login)
	if err != nil {
		return false, fmt.Errorf("read password: %w", err)
	}
	if current == "" {
		return false, nil
	}
	if err := a.keyring.Delete(keyringService, login); err != nil {
		return false, fmt.Errorf("clear password: %w", err)
	}
	return true, nil
}

func (a *Application) checkKeyringTarget(keyringService string) error {
	targets := a.KeyringTargets()
	if !slices.Contains(targets, keyringService) {
		return fmt.Errorf("%w: %s must be one of %q", ErrUnknownKeyringTarget, keyringService, targets)
	}
	return nil
}
