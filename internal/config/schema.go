package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Problems aggregates validation messages across sections.
type Problems struct {
	messages []string
}

// Add records every message of a section validation error.
func (p *Problems) Add(section string, err error) {
	if err == nil {
		return
	}
	var sectionErr *SectionError
	if errors.As(err, &sectionErr) {
		for _, msg := range sectionErr.Messages {
			p.messages = append(p.messages, fmt.Sprintf("[%s] <- %s", section, msg))
		}
		return
	}
	p.messages = append(p.messages, fmt.Sprintf("[%s] <- %v", section, err))
}

// Addf records a formatted message.
func (p *Problems) Addf(format string, args ...any) {
	p.messages = append(p.messages, fmt.Sprintf(format, args...))
}

// Empty reports whether no problem was recorded.
func (p *Problems) Empty() bool {
	return len(p.messages) == 0
}

// Err returns nil or an error wrapping ErrInvalid listing every problem.
func (p *Problems) Err() error {
	if p.Empty() {
		return nil
	}
	return fmt.Errorf("%w:\n%s", ErrInvalid, strings.Join(p.messages, "\n"))
}

// SectionError lists the schema violations of one section.
type SectionError struct {
	Section  string
	Messages []string
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("[%s] <- %s", e.Section, strings.Join(e.Messages, "; "))
}

// ValidateSection checks a settings section against an object schema built
// from properties. Unknown options are rejected, except "<field>_template".
func ValidateSection(section string, properties map[string]any, required []string, raw map[string]any) error {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
		"patternProperties": map[string]any{
			"^[a-z0-9_]+_template$": map[string]any{"type": "string"},
		},
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	doc, err := toJSONValue(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	instance, err := toJSONValue(raw)
	if err != nil {
		return fmt.Errorf("encode section: %w", err)
	}

	url := "mem://" + strings.ReplaceAll(section, " ", "_") + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if err := compiled.Validate(instance); err != nil {
		return &SectionError{Section: section, Messages: validationMessages(err)}
	}
	return nil
}

func validationMessages(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// StringSchema accepts any scalar written as text.
func StringSchema() map[string]any {
	return map[string]any{"type": []string{"string", "number"}}
}

// FlagSchema accepts booleans and their ini spellings.
func FlagSchema() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "boolean"},
		map[string]any{"type": "string", "enum": []string{"true", "false", "True", "False", "TRUE", "FALSE", "1", "0"}},
	}}
}

// IntSchema accepts integers and their textual form.
func IntSchema() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "integer"},
		map[string]any{"type": "string", "pattern": "^-?[0-9]+$"},
	}}
}

// ListSchema accepts a list of strings or a comma separated string.
func ListSchema() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		map[string]any{"type": "string"},
	}}
}

// DurationSchema accepts Go duration strings such as "30s".
func DurationSchema() map[string]any {
	return map[string]any{"type": "string", "pattern": `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`}
}

// EnumSchema accepts exactly one of values.
func EnumSchema(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

// CommonServiceProperties are the options every target section accepts.
func CommonServiceProperties() map[string]any {
	return map[string]any{
		"service":               StringSchema(),
		"only_if_assigned":      StringSchema(),
		"also_unassigned":       FlagSchema(),
		"default_priority":      EnumSchema("", "L", "M", "H"),
		"add_tags":              ListSchema(),
		"static_fields":         ListSchema(),
		"import_labels_as_tags": FlagSchema(),
		"label_template":        map[string]any{"type": "string"},
		"timeout":               DurationSchema(),
	}
}

func mainProperties() map[string]any {
	return map[string]any{
		"targets":                ListSchema(),
		"store":                  StringSchema(),
		"data_path":              StringSchema(),
		"shorten":                FlagSchema(),
		"inline_links":           FlagSchema(),
		"annotation_links":       FlagSchema(),
		"annotation_comments":    FlagSchema(),
		"annotation_newlines":    FlagSchema(),
		"annotation_length":      IntSchema(),
		"description_length":     IntSchema(),
		"merge_annotations":      FlagSchema(),
		"merge_tags":             FlagSchema(),
		"replace_tags":           FlagSchema(),
		"static_tags":            ListSchema(),
		"static_fields":          ListSchema(),
		"reopen_completed_tasks": FlagSchema(),
		"log_level": map[string]any{
			"type":    "string",
			"pattern": "(?i)^(debug|info|warning|error|critical|disabled)$",
		},
		"log_file":       StringSchema(),
		"worker_stagger": DurationSchema(),
	}
}

func notificationProperties() map[string]any {
	return map[string]any{
		"notifications":            FlagSchema(),
		"backend":                  EnumSchema("telegram", "log"),
		"only_on_new_tasks":        FlagSchema(),
		"finished_querying_sticky": FlagSchema(),
		"task_crud_sticky":         FlagSchema(),
		"telegram": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"bot_token": StringSchema(),
				"chat_id":   StringSchema(),
			},
			"additionalProperties": false,
		},
	}
}
