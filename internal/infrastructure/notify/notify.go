package notify

import (
	"context"
	"fmt"
	"log/slog"

	"IssueSync/internal/config"
	"IssueSync/internal/domain"
	"IssueSync/internal/infrastructure/telegram"
	"IssueSync/internal/ports"
)

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

// NewLogNotifier wraps logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs one event.
func (n *LogNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.logger.Info(msg.Message, "kind", msg.Kind, "sticky", msg.Sticky)
	return nil
}

// New builds the notifier selected by the notifications section. It
// returns nil when notifications are disabled.
func New(cfg config.NotificationConfig, logger *slog.Logger) (ports.Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "telegram":
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram notifications need bot_token and chat_id")
		}
		return telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID), nil
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}
}
