package service

import (
	"errors"
	"strings"
	"testing"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
)

func testDescriptor(name string, key ...string) Descriptor {
	return Descriptor{
		Name: name,
		Properties: map[string]any{
			"token": config.StringSchema(),
			"url":   config.StringSchema(),
		},
		Required:   []string{"token"},
		Defaults:   map[string]any{"url": "https://example.org", "label_template": "{{label|lower}}"},
		UniqueKeys: []domain.KeyGroup{key},
		UDAs:       map[string]domain.UDA{key[0]: {Type: "string", Label: name + " id"}},
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(testDescriptor("alpha", "alphaid"))

	if _, err := registry.Resolve("alpha"); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if _, err := registry.Resolve("beta"); err == nil || !strings.Contains(err.Error(), "beta is not registered") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryPrepareAppliesDefaultsAndValidates(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(testDescriptor("alpha", "alphaid"))

	good, _ := config.DecodeServiceConfig("a", map[string]any{"service": "alpha", "token": "x"})
	cfg, err := registry.Prepare(config.Config{Targets: []config.ServiceConfig{good}})
	if err != nil {
		t.Fatalf("unexpected prepare error: %v", err)
	}
	if cfg.Targets[0].Raw["url"] != "https://example.org" || cfg.Targets[0].LabelTemplate != "{{label|lower}}" {
		t.Fatalf("defaults not applied: %+v", cfg.Targets[0])
	}

	missing, _ := config.DecodeServiceConfig("b", map[string]any{"service": "alpha", "extra": 1})
	unknown, _ := config.DecodeServiceConfig("c", map[string]any{"service": "gamma"})
	_, err = registry.Prepare(config.Config{Targets: []config.ServiceConfig{missing, unknown}})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	for _, want := range []string{"[b] <- ", "[c] <- service gamma is not registered"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestRegistryKeySchemaFollowsTargetOrder(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(testDescriptor("alpha", "alphaid"))
	registry.Register(testDescriptor("beta", "betaurl"))

	targets := []config.ServiceConfig{
		{Target: "b1", Service: "beta"},
		{Target: "a1", Service: "alpha"},
		{Target: "b2", Service: "beta"},
	}
	schema, err := registry.KeySchema(targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema) != 2 || schema[0].Service != "beta" || schema[1].Service != "alpha" {
		t.Fatalf("unexpected schema: %+v", schema)
	}

	udas, err := registry.UDAs(targets)
	if err != nil || len(udas) != 2 || udas["betaurl"].Label != "beta id" {
		t.Fatalf("unexpected udas: %v %v", udas, err)
	}
}

func TestRegistryPrepareRejectsMalformedTemplates(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(testDescriptor("alpha", "alphaid"))

	target, err := config.DecodeServiceConfig("a", map[string]any{
		"service":              "alpha",
		"token":                "x",
		"description_template": "{{ unclosed",
		"add_tags":             []any{"ok", "{{ project "},
		"label_template":       "{{ label",
	})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	_, err = registry.Prepare(config.Config{Targets: []config.ServiceConfig{target}})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	for _, want := range []string{"[a] <- description_template: ", "[a] <- add_tags: ", "[a] <- label_template: "} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}
