package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/bot/handlers"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/notify"
)

// Notifier delivers reminders and summaries to a single chat.
type Notifier struct {
	api    handlers.Messenger
	chatID int64
}

func NewNotifier(api handlers.Messenger, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// SendNotification posts a reminder. Bill reminders carry a button that
// marks the bill paid.
func (n *Notifier) SendNotification(ctx context.Context, note notify.Notification) error {
	msg := n.message(format.Notification(note))
	if billID := note.Data[notify.DataBillID]; billID != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Mark paid", "pay:"+billID),
			),
		)
	}
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send notification %s: %w", note.ID, err)
	}
	return nil
}

func (n *Notifier) SendText(ctx context.Context, text string) error {
	if _, err := n.api.Send(n.message(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (n *Notifier) message(text string) tgbotapi.MessageConfig {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(n.chatID, parsed.Text)
	msg.Entities = parsed.Entities
	return msg
}
