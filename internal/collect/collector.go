package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
	"IssueSync/internal/service"
)

// stopGrace is how long a timed-out worker gets to return before the
// collector stops listening to it.
const stopGrace = 5 * time.Second

// CollectorDeps wires the collaborators of a Collector.
type CollectorDeps struct {
	Registry *service.Registry
	Main     config.MainConfig
	Targets  []config.ServiceConfig
	Secrets  service.Secrets
	Links    *service.Links
	Client   *http.Client
	Progress ports.Progress
	Reporter ports.Reporter
	Logger   *slog.Logger
}

// Collector runs one worker per target and merges their output.
type Collector struct {
	registry *service.Registry
	main     config.MainConfig
	targets  []config.ServiceConfig
	secrets  service.Secrets
	links    *service.Links
	client   *http.Client
	progress ports.Progress
	reporter ports.Reporter
	logger   *slog.Logger

	// Debug runs the workers one after another on the collector goroutine.
	Debug bool
	// Stagger delays successive worker launches.
	Stagger time.Duration
}

// NewCollector constructs the fan-out/fan-in stage.
func NewCollector(deps CollectorDeps) *Collector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		registry: deps.Registry,
		main:     deps.Main,
		targets:  deps.Targets,
		secrets:  deps.Secrets,
		links:    deps.Links,
		client:   deps.Client,
		progress: deps.Progress,
		reporter: deps.Reporter,
		logger:   logger,
		Stagger:  deps.Main.WorkerStagger,
	}
}

type event struct {
	target     string
	issue      domain.Issue
	completion *domain.Completion
}

// Aggregate starts the workers and returns the merged stream. Issues of one
// target keep their emission order; a failed target yields one Item with
// Failed set. The channel closes once every target has completed.
func (c *Collector) Aggregate(ctx context.Context) <-chan domain.Item {
	out := make(chan domain.Item)

	go func() {
		defer close(out)

		state := &aggregation{
			collector: c,
			out:       out,
			counts:    map[string]int{},
			finished:  map[string]bool{},
		}

		if c.Debug {
			for _, target := range c.targets {
				c.started(target.Target)
				spec := c.spec(target)
				completion := RunWorker(ctx, spec, func(issue domain.Issue) {
					state.handle(ctx, event{target: target.Target, issue: issue})
				})
				state.handle(ctx, event{target: target.Target, completion: &completion})
			}
			return
		}

		events := make(chan event)
		quit := make(chan struct{})
		defer close(quit)

		go c.launch(ctx, events, quit)

		for len(state.finished) < len(c.targets) {
			ev := <-events
			if !state.handle(ctx, ev) {
				return
			}
		}
	}()

	return out
}

func (c *Collector) launch(ctx context.Context, events chan<- event, quit <-chan struct{}) {
	for i, target := range c.targets {
		if i > 0 && c.Stagger > 0 {
			select {
			case <-time.After(c.Stagger):
			case <-quit:
				return
			}
		}
		c.started(target.Target)
		go c.supervise(ctx, target, events, quit)
	}
}

// supervise runs one worker and guarantees exactly one completion event,
// even when the worker ignores cancellation past its timeout.
func (c *Collector) supervise(ctx context.Context, target config.ServiceConfig, events chan<- event, quit <-chan struct{}) {
	workerCtx := ctx
	cancel := func() {}
	if target.Timeout > 0 {
		workerCtx, cancel = context.WithTimeout(ctx, target.Timeout)
	}
	defer cancel()

	var abandoned atomic.Bool
	send := func(ev event) {
		select {
		case events <- ev:
		case <-quit:
		}
	}

	done := make(chan domain.Completion, 1)
	go func() {
		done <- RunWorker(workerCtx, c.spec(target), func(issue domain.Issue) {
			if abandoned.Load() {
				return
			}
			send(event{target: target.Target, issue: issue})
		})
	}()

	var completion domain.Completion
	select {
	case completion = <-done:
	case <-workerCtx.Done():
		select {
		case completion = <-done:
		case <-time.After(stopGrace):
			abandoned.Store(true)
			c.logger.Error("worker did not stop after cancellation", "target", target.Target, "error", workerCtx.Err())
			completion = domain.Completion{Status: domain.CompletionError, Target: target.Target}
		}
	}
	send(event{target: target.Target, completion: &completion})
}

func (c *Collector) spec(target config.ServiceConfig) WorkerSpec {
	spec := WorkerSpec{
		Target:  target,
		Main:    c.main,
		Secrets: c.secrets,
		Links:   c.links,
		Client:  c.client,
		Logger:  c.logger,
	}
	if c.registry != nil {
		if d, err := c.registry.Resolve(target.Service); err == nil {
			spec.Descriptor = d
		}
	}
	return spec
}

func (c *Collector) started(target string) {
	if c.progress != nil {
		c.progress.Started(target)
	}
}

type aggregation struct {
	collector *Collector
	out       chan<- domain.Item
	counts    map[string]int
	finished  map[string]bool
}

// handle processes one event and reports whether the consumer is still
// listening.
func (a *aggregation) handle(ctx context.Context, ev event) bool {
	c := a.collector
	if a.finished[ev.target] {
		return true
	}

	if ev.completion == nil {
		a.counts[ev.target]++
		if c.progress != nil {
			c.progress.Counted(ev.target, a.counts[ev.target])
		}
		return a.emit(ctx, domain.Item{Issue: ev.issue})
	}

	a.finished[ev.target] = true
	if ev.completion.Status == domain.CompletionOK {
		if c.progress != nil {
			c.progress.Finished(ev.target, a.counts[ev.target])
		}
		c.logger.Info("target completed", "target", ev.target, "issues", a.counts[ev.target])
		return true
	}

	if c.progress != nil {
		c.progress.Aborted(ev.target)
	}
	if c.reporter != nil {
		c.reporter.Error(fmt.Sprintf("Aborted [%s] due to critical error.", ev.target))
	}
	return a.emit(ctx, domain.Item{Failed: ev.target})
}

func (a *aggregation) emit(ctx context.Context, item domain.Item) bool {
	select {
	case a.out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}
