package config

import (
	"fmt"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

const templateSuffix = "_template"

// ServiceConfig is one target section with the options every service shares.
// Service-specific options stay in Raw and are decoded by the service itself.
type ServiceConfig struct {
	Target             string
	Service            string
	OnlyIfAssigned     string
	AlsoUnassigned     bool
	DefaultPriority    string
	AddTags            []string
	StaticFields       []string
	ImportLabelsAsTags bool
	LabelTemplate      string
	Timeout            time.Duration

	// Templates maps a record field to its override template.
	Templates map[string]string
	Raw       map[string]any
}

type serviceOptions struct {
	Service            string        `mapstructure:"service"`
	OnlyIfAssigned     string        `mapstructure:"only_if_assigned"`
	AlsoUnassigned     bool          `mapstructure:"also_unassigned"`
	DefaultPriority    string        `mapstructure:"default_priority"`
	AddTags            []string      `mapstructure:"add_tags"`
	StaticFields       []string      `mapstructure:"static_fields"`
	ImportLabelsAsTags bool          `mapstructure:"import_labels_as_tags"`
	LabelTemplate      string        `mapstructure:"label_template"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// DecodeServiceConfig reads the shared options of a target section.
func DecodeServiceConfig(target string, raw map[string]any) (ServiceConfig, error) {
	raw = flattenLegacy(raw)

	opts := serviceOptions{
		DefaultPriority: "M",
		LabelTemplate:   "{{label}}",
	}
	if err := Decode(raw, &opts); err != nil {
		return ServiceConfig{}, err
	}
	if opts.Service == "" {
		return ServiceConfig{}, fmt.Errorf("missing required option 'service'")
	}

	templates := map[string]string{}
	for key, value := range raw {
		field, ok := strings.CutSuffix(key, templateSuffix)
		if !ok || key == "label_template" {
			continue
		}
		if s, ok := value.(string); ok {
			templates[field] = s
		}
	}

	return ServiceConfig{
		Target:             target,
		Service:            opts.Service,
		OnlyIfAssigned:     opts.OnlyIfAssigned,
		AlsoUnassigned:     opts.AlsoUnassigned,
		DefaultPriority:    opts.DefaultPriority,
		AddTags:            opts.AddTags,
		StaticFields:       opts.StaticFields,
		ImportLabelsAsTags: opts.ImportLabelsAsTags,
		LabelTemplate:      opts.LabelTemplate,
		Timeout:            opts.Timeout,
		Templates:          templates,
		Raw:                raw,
	}, nil
}

// Decode decodes service-specific options into out.
func (s ServiceConfig) Decode(out any) error {
	return Decode(s.Raw, out)
}

// WithDefaults returns a copy whose Raw carries defaults for absent options.
func (s ServiceConfig) WithDefaults(defaults map[string]any) (ServiceConfig, error) {
	raw := maps.Clone(s.Raw)
	if raw == nil {
		raw = map[string]any{}
	}
	for k, v := range defaults {
		if _, ok := raw[k]; !ok {
			raw[k] = v
		}
	}
	return DecodeServiceConfig(s.Target, raw)
}

// Decode maps a settings tree onto a tagged struct. Strings are coerced to
// the target type and comma separated strings become lists.
func Decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			commaListHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func commaListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	return SplitList(data.(string)), nil
}

// SplitList splits a comma separated option, ignoring commas inside braces
// so template expressions survive.
func SplitList(value string) []string {
	out := []string{}
	var (
		depth   int
		current strings.Builder
	)
	flush := func() {
		if item := strings.TrimSpace(current.String()); item != "" {
			out = append(out, item)
		}
		current.Reset()
	}
	for _, r := range value {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		current.WriteRune(r)
	}
	flush()
	return out
}

func lookupSection(settings map[string]any, path ...string) (map[string]any, bool) {
	current := settings
	for _, key := range path {
		next, ok := asMap(current[strings.ToLower(key)])
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// flattenLegacy hoists options written as "<service>.<option>", which the ini
// reader nests under the service name.
func flattenLegacy(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	service, _ := raw["service"].(string)
	for k, v := range raw {
		if nested, ok := asMap(v); ok && k == service {
			for nk, nv := range nested {
				out[nk] = nv
			}
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
