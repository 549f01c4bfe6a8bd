package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// MessageSender is the part of *bot.Bot the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier delivers deal-notifications outbox entries as direct
// messages. Recipient ids are Telegram user ids.
type TelegramNotifier struct {
	sender MessageSender
}

func NewTelegramNotifier(sender MessageSender) *TelegramNotifier {
	return &TelegramNotifier{sender: sender}
}

// NewBot creates a client that only sends; it never polls for updates.
func NewBot(token string) (*bot.Bot, error) {
	return bot.New(token, bot.WithSkipGetMe())
}

// Publish returns an error only for failures worth retrying. Malformed
// payloads and recipients are logged and dropped.
func (n *TelegramNotifier) Publish(ctx context.Context, entry domain.OutboxEntry) error {
	var notification domain.DealNotification
	if err := json.Unmarshal(entry.Payload, &notification); err != nil {
		slog.ErrorContext(ctx, "dropping malformed notification", "outbox_id", entry.ID, "error", err)
		return nil
	}
	chatID, err := strconv.ParseInt(notification.RecipientID, 10, 64)
	if err != nil {
		slog.WarnContext(ctx, "dropping notification for non-telegram recipient",
			"outbox_id", entry.ID,
			"recipient_id", notification.RecipientID,
		)
		return nil
	}
	text, err := RenderMessage(notification)
	if err != nil {
		slog.ErrorContext(ctx, "dropping notification", "outbox_id", entry.ID, "error", err)
		return nil
	}

	disablePreview := true
	_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
