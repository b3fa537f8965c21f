package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"IssueSync/internal/domain"
	"IssueSync/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Notifier sends sync events to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithEndpoint points the notifier at another bot API host.
func (n *Notifier) WithEndpoint(baseURL string, client *http.Client) *Notifier {
	n.baseURL = strings.TrimSuffix(baseURL, "/")
	if client != nil {
		n.client = client
	}
	return n
}

// Notify posts one event. Sticky events are delivered with sound, the rest
// silently.
func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", fmt.Sprintf("IssueSync: %s", msg.Message))
	form.Set("disable_notification", fmt.Sprint(!msg.Sticky))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
