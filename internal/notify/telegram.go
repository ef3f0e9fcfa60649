// Package notify alerts operators about work items that ran out of
// attempts. Failures otherwise surface only through the sync log, which
// nobody watches in real time.
package notify

import (
	"context"
	"fmt"

	"qbsync/internal/config"
	"qbsync/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram returns (nil, nil) when no token is configured; alerting is
// optional.
func NewTelegram(cfg config.NotifyConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.TelegramChatID,
		logger: logger.With().Str("component", "notify").Logger(),
	}, nil
}

// WorkItemExhausted sends a short alert about a permanently failed item.
// Delivery failures are logged and dropped; alerting must never affect the
// sync path.
func (n *TelegramNotifier) WorkItemExhausted(ctx context.Context, item *models.WorkItem, reason string) {
	text := fmt.Sprintf("QuickBooks sync item #%d (%s) permanently failed after %d attempts: %s",
		item.ID, item.RequestType, item.Attempts, reason)

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("work_item_id", item.ID).Msg("failed to send alert")
	}
}
