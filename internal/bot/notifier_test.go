package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestNotifier_BillReminderHasPayButton(t *testing.T) {
	api := &fakeAPI{}
	n := NewNotifier(api, 99)

	err := n.SendNotification(context.Background(), notify.Notification{
		ID:    "b1-3",
		Title: "Telia",
		Body:  "Due 2025-03-15 (3 days left) · 499.00 SEK",
		Data:  map[string]string{notify.DataBillID: "b1", notify.DataReminderOffset: "3"},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, "⏰ Telia\n\nDue 2025-03-15 (3 days left) · 499.00 SEK", msg.Text)
	require.Len(t, msg.Entities, 1)
	assert.Equal(t, "bold", msg.Entities[0].Type)
	assert.Equal(t, 2, msg.Entities[0].Offset)
	assert.Equal(t, 5, msg.Entities[0].Length)

	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "pay:b1", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestNotifier_FamilyReminderHasNoButton(t *testing.T) {
	api := &fakeAPI{}
	n := NewNotifier(api, 99)

	require.NoError(t, n.SendNotification(context.Background(), notify.Notification{
		ID:    "vab-e1-1",
		Title: "Report VAB for Elsa",
		Data:  map[string]string{notify.DataKind: "vab", notify.DataVabEntryID: "e1"},
	}))

	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Nil(t, msg.ReplyMarkup)
}

func TestNotifier_SendErrorsAreWrapped(t *testing.T) {
	api := &fakeAPI{err: errors.New("Forbidden: bot was blocked by the user")}
	n := NewNotifier(api, 99)

	err := n.SendNotification(context.Background(), notify.Notification{ID: "b1-1", Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b1-1")

	err = n.SendText(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}
