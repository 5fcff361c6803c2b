package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/invoice"
	"github.com/hray3182/fakturavakt/internal/models"
)

const (
	draftTimeout = 10 * time.Minute
	// Below this the regex parse is handed to the extractor when one is set.
	minConfidence = 60
)

type pendingDraft struct {
	Input     models.BillInput
	ExpiresAt time.Time
}

func (h *Handlers) handleInvoiceText(ctx context.Context, msg *tgbotapi.Message) {
	now := h.now()
	parsed := invoice.ParseText(msg.Text)
	input, err := parsed.Draft(now)

	if h.extractor != nil && (err != nil || parsed.Confidence() < minConfidence) {
		if aiInput, aiErr := h.extractor.ExtractDraft(ctx, msg.Text); aiErr == nil {
			input, err = aiInput, nil
		} else {
			h.log.Warn().Err(aiErr).Msg("invoice extraction failed")
		}
	}
	if err != nil {
		h.sendMessage(msg.Chat.ID, "I could not find invoice details in that text. See /help")
		return
	}
	if input.ServiceName == "" {
		input.ServiceName = "Unknown sender"
	}

	h.mu.Lock()
	h.drafts[msg.Chat.ID] = &pendingDraft{Input: input, ExpiresAt: now.Add(draftTimeout)}
	h.mu.Unlock()

	chat := strconv.FormatInt(msg.Chat.ID, 10)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Add bill", "add:"+chat),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel:"+chat),
		),
	)
	h.send(msg.Chat.ID, describeDraft(input), &markup)
}

func describeDraft(input models.BillInput) string {
	text := fmt.Sprintf("🧾 **%s**\nAmount: %s\nDue: %s",
		format.Plain(input.ServiceName),
		format.Amount(input.Amount, input.Currency),
		input.DueDate.Format("2006-01-02"))
	if input.ReferenceNumber != "" {
		text += "\nReference: `" + input.ReferenceNumber + "`"
	}
	return text + "\n\nAdd this bill?"
}

func (h *Handlers) takeDraft(chatID int64) (*pendingDraft, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.drafts[chatID]
	delete(h.drafts, chatID)
	if !ok || h.now().After(d.ExpiresAt) {
		return nil, false
	}
	return d, true
}

func (h *Handlers) dropDraft(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.drafts, chatID)
}

func (h *Handlers) confirmDraft(ctx context.Context, chatID int64, messageID int) {
	d, ok := h.takeDraft(chatID)
	if !ok {
		h.editMessageText(chatID, messageID, "⏰ This draft has expired")
		return
	}
	bill := h.bills.AddBill(ctx, d.Input)
	h.editMessageText(chatID, messageID, fmt.Sprintf("✅ Added **%s**, %s", format.Plain(bill.ServiceName), format.DueLabel(bill, h.now())))
}
