// Package render evaluates the jinja-style templates used for field
// overrides, generated tags and label conversion.
package render

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nikolalohinski/gonja"
)

// ErrUnbalanced is returned for templates whose tags or strings are not
// closed. Such sources are rejected before reaching the parser.
var ErrUnbalanced = errors.New("unbalanced template delimiters")

type executor func(map[string]any) (string, error)

var (
	mu    sync.RWMutex
	cache = map[string]executor{}
)

var delimiters = map[string]string{
	"{{": "}}",
	"{%": "%}",
	"{#": "#}",
}

// String renders src with data bound as the template context. Sources
// without template markup are returned unchanged.
func String(src string, data map[string]any) (string, error) {
	if !hasMarkup(src) {
		return src, nil
	}

	exec, err := compile(src)
	if err != nil {
		return "", err
	}

	ctx := make(map[string]any, len(data))
	for k, v := range data {
		ctx[k] = v
	}
	out, err := exec(ctx)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", src, err)
	}
	return out, nil
}

// Check parses src without rendering it.
func Check(src string) error {
	if !hasMarkup(src) {
		return nil
	}
	_, err := compile(src)
	return err
}

func hasMarkup(src string) bool {
	for open := range delimiters {
		if strings.Contains(src, open) {
			return true
		}
	}
	return false
}

func compile(src string) (executor, error) {
	mu.RLock()
	exec, ok := cache[src]
	mu.RUnlock()
	if ok {
		return exec, nil
	}

	if err := balanced(src); err != nil {
		return nil, fmt.Errorf("parse template %q: %w", src, err)
	}
	tpl, err := gonja.FromString(src)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", src, err)
	}

	mu.Lock()
	cache[src] = tpl.Execute
	mu.Unlock()
	return tpl.Execute, nil
}

// balanced verifies every tag is closed and every quoted string inside a
// tag ends before the tag does.
func balanced(src string) error {
	for i := 0; i < len(src); {
		if i+1 >= len(src) {
			break
		}
		closer, ok := delimiters[src[i:i+2]]
		if !ok {
			i++
			continue
		}

		end, err := closeTag(src, i+2, closer)
		if err != nil {
			return err
		}
		i = end
	}
	return nil
}

func closeTag(src string, from int, closer string) (int, error) {
	var quote byte
	for i := from; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case closer != "#}" && (c == '"' || c == '\''):
			quote = c
		case strings.HasPrefix(src[i:], closer):
			return i + len(closer), nil
		}
	}
	if quote != 0 {
		return 0, fmt.Errorf("%w: unterminated string", ErrUnbalanced)
	}
	return 0, fmt.Errorf("%w: missing %q", ErrUnbalanced, closer)
}
