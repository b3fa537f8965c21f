package service

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/render"
)

// Descriptor declares everything the engine needs to know about a service.
type Descriptor struct {
	Name string
	// Properties are JSON Schema fragments for service-specific options.
	Properties map[string]any
	Required   []string
	Defaults   map[string]any
	UniqueKeys []domain.KeyGroup
	UDAs       map[string]domain.UDA
	// SecretOption names the option that may hold an @oracle reference.
	SecretOption string
	// KeyringService names the keyring entry for a target.
	KeyringService func(cfg config.ServiceConfig) string
	New            func(env Env) (Service, error)
}

// Registry keeps a mapping from service names to their descriptors.
type Registry struct {
	services map[string]Descriptor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: map[string]Descriptor{}}
}

// Register adds or replaces a service descriptor.
func (r *Registry) Register(d Descriptor) {
	if r.services == nil {
		r.services = map[string]Descriptor{}
	}
	r.services[d.Name] = d
}

// Resolve returns a descriptor by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	if d, ok := r.services[name]; ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("service %s is not registered", name)
}

// Names lists registered services alphabetically.
func (r *Registry) Names() []string {
	names := slices.Collect(maps.Keys(r.services))
	sort.Strings(names)
	return names
}

// Prepare validates every target section against its service schema and
// applies service defaults. All problems are reported together.
func (r *Registry) Prepare(cfg config.Config) (config.Config, error) {
	problems := &config.Problems{}
	targets := make([]config.ServiceConfig, 0, len(cfg.Targets))

	for _, target := range cfg.Targets {
		d, err := r.Resolve(target.Service)
		if err != nil {
			problems.Addf("[%s] <- %v", target.Target, err)
			continue
		}

		prepared, err := target.WithDefaults(d.Defaults)
		if err != nil {
			problems.Addf("[%s] <- %v", target.Target, err)
			continue
		}

		properties := config.CommonServiceProperties()
		maps.Copy(properties, d.Properties)
		required := append([]string{"service"}, d.Required...)
		problems.Add(target.Target, config.ValidateSection(target.Target, properties, required, prepared.Raw))
		for _, err := range checkTemplates(prepared) {
			problems.Addf("[%s] <- %v", target.Target, err)
		}

		targets = append(targets, prepared)
	}

	if err := problems.Err(); err != nil {
		return config.Config{}, err
	}
	cfg.Targets = targets
	return cfg, nil
}

// KeySchema returns the key groups of the configured targets in target order.
func (r *Registry) KeySchema(targets []config.ServiceConfig) (domain.KeySchema, error) {
	var schema domain.KeySchema
	seen := map[string]bool{}
	for _, target := range targets {
		if seen[target.Service] {
			continue
		}
		seen[target.Service] = true

		d, err := r.Resolve(target.Service)
		if err != nil {
			return nil, err
		}
		for _, group := range d.UniqueKeys {
			schema = append(schema, domain.KeyEntry{Service: d.Name, Group: group})
		}
	}
	return schema, nil
}

// UDAs merges the extra field schemas of the configured targets.
func (r *Registry) UDAs(targets []config.ServiceConfig) (map[string]domain.UDA, error) {
	out := map[string]domain.UDA{}
	for _, target := range targets {
		d, err := r.Resolve(target.Service)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, d.UDAs)
	}
	return out, nil
}

// checkTemplates parses every template option of a target so malformed
// ones fail at load time instead of inside a worker.
func checkTemplates(target config.ServiceConfig) []error {
	var errs []error
	for _, field := range slices.Sorted(maps.Keys(target.Templates)) {
		if err := render.Check(target.Templates[field]); err != nil {
			errs = append(errs, fmt.Errorf("%s_template: %w", field, err))
		}
	}
	for _, tpl := range target.AddTags {
		if err := render.Check(tpl); err != nil {
			errs = append(errs, fmt.Errorf("add_tags: %w", err))
		}
	}
	if err := render.Check(target.LabelTemplate); err != nil {
		errs = append(errs, fmt.Errorf("label_template: %w", err))
	}
	return errs
}
