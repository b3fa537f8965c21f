package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultShortenerURL = "https://da.gd/s"

// Links shortens URLs through da.gd, caching results for the run.
type Links struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewLinks wires an HTTP client; endpoint defaults to da.gd.
func NewLinks(client *http.Client, endpoint string, logger *slog.Logger) *Links {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if endpoint == "" {
		endpoint = defaultShortenerURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Links{endpoint: endpoint, client: client, logger: logger, cache: map[string]string{}}
}

// Process returns the shortened URL when shorten is set, the URL otherwise.
// Shortening failures fall back to the original URL.
func (l *Links) Process(ctx context.Context, shorten bool, raw string) string {
	if !shorten || l == nil || raw == "" {
		return raw
	}

	l.mu.Lock()
	if short, ok := l.cache[raw]; ok {
		l.mu.Unlock()
		return short
	}
	l.mu.Unlock()

	short, err := l.shorten(ctx, raw)
	if err != nil {
		l.logger.Warn("shorten url failed", "url", raw, "error", err)
		return raw
	}

	l.mu.Lock()
	l.cache[raw] = short
	l.mu.Unlock()
	return short
}

func (l *Links) shorten(ctx context.Context, raw string) (string, error) {
	endpoint := l.endpoint + "?url=" + url.QueryEscape(raw)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shortener error: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
