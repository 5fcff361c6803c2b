package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/ledger"
	"github.com/hray3182/fakturavakt/internal/models"
)

const paidListLimit = 10

func (h *Handlers) openBills() []models.Bill {
	return append(h.bills.OverdueBills(), h.bills.UpcomingBills()...)
}

// lookup resolves the id argument of a bill command, replying with the
// problem when it does not name exactly one bill.
func (h *Handlers) lookup(chatID int64, command, args string) (models.Bill, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		h.sendMessage(chatID, "Usage: /"+command+" <id>, ids are shown by /bills")
		return models.Bill{}, false
	}

	bill, err := h.bills.FindBill(fields[0])
	switch {
	case errors.Is(err, ledger.ErrAmbiguousBill):
		h.sendMessage(chatID, "❌ `"+format.Plain(fields[0])+"` matches several bills, use more of the id")
		return models.Bill{}, false
	case err != nil:
		h.sendMessage(chatID, "❌ No bill with id `"+format.Plain(fields[0])+"`")
		return models.Bill{}, false
	}
	return bill, true
}

func (h *Handlers) handleBills(ctx context.Context, msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, format.BillList("Open bills", h.openBills(), h.now()))
}

func (h *Handlers) handlePaid(ctx context.Context, msg *tgbotapi.Message) {
	paid := h.bills.PaidBills()
	if len(paid) > paidListLimit {
		paid = paid[:paidListLimit]
	}
	h.sendMessage(msg.Chat.ID, format.BillList("Recently paid", paid, h.now()))
}

func (h *Handlers) handleBill(ctx context.Context, msg *tgbotapi.Message, args string) {
	bill, ok := h.lookup(msg.Chat.ID, "bill", args)
	if !ok {
		return
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Mark paid", "pay:"+bill.ID),
		),
	)
	h.send(msg.Chat.ID, format.BillDetail(bill, h.now()), &markup)
}

func (h *Handlers) handlePay(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, ok := h.lookup(msg.Chat.ID, "pay", args)
	if !ok {
		return
	}

	bill, ok := h.bills.MarkPaid(ctx, target.ID, nil)
	if !ok {
		h.sendMessage(msg.Chat.ID, "❌ Bill not found")
		return
	}
	text := fmt.Sprintf("✅ Paid **%s** (%s)", format.Plain(bill.ServiceName), format.Amount(bill.Amount, bill.Currency))
	if bill.NextOccurrence != nil {
		text += "\nNext due " + bill.NextOccurrence.In(h.loc).Format("2006-01-02")
	}
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handlePause(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, ok := h.lookup(msg.Chat.ID, "pause", args)
	if !ok {
		return
	}
	switch target.Status {
	case models.StatusPaused:
		h.sendMessage(msg.Chat.ID, "**"+format.Plain(target.ServiceName)+"** is already paused, use /resume")
		return
	case models.StatusPaid:
		h.sendMessage(msg.Chat.ID, "**"+format.Plain(target.ServiceName)+"** is paid, nothing to pause")
		return
	}

	bill, ok := h.bills.TogglePause(ctx, target.ID)
	if !ok {
		h.sendMessage(msg.Chat.ID, "❌ Bill not found")
		return
	}
	h.sendMessage(msg.Chat.ID, "⏸ Paused **"+format.Plain(bill.ServiceName)+"**, reminders are off")
}

func (h *Handlers) handleResume(ctx context.Context, msg *tgbotapi.Message, args string) {
	target, ok := h.lookup(msg.Chat.ID, "resume", args)
	if !ok {
		return
	}
	if target.Status != models.StatusPaused {
		h.sendMessage(msg.Chat.ID, "**"+format.Plain(target.ServiceName)+"** is not paused")
		return
	}

	bill, ok := h.bills.TogglePause(ctx, target.ID)
	if !ok {
		h.sendMessage(msg.Chat.ID, "❌ Bill not found")
		return
	}
	h.sendMessage(msg.Chat.ID, "▶️ Resumed **"+format.Plain(bill.ServiceName)+"** ("+format.DueLabel(bill, h.now())+")")
}

func (h *Handlers) handleFamily(ctx context.Context, msg *tgbotapi.Message) {
	if h.family == nil {
		h.sendMessage(msg.Chat.ID, "Family tracking is not enabled")
		return
	}
	now := h.now()
	h.sendMessage(msg.Chat.ID, format.Family(
		h.family.VabEntries(),
		h.family.UpcomingAppointments(),
		h.family.TotalVabDays(now.Year()),
		now,
	))
}

func (h *Handlers) handleNotify(ctx context.Context, msg *tgbotapi.Message, args string) {
	switch args {
	case "on":
		h.settings.SetNotificationsEnabled(ctx, true)
		h.sendMessage(msg.Chat.ID, "🔔 Reminders are on")
	case "off":
		h.settings.SetNotificationsEnabled(ctx, false)
		h.sendMessage(msg.Chat.ID, "🔕 Reminders are off, pending ones were cancelled")
	default:
		state := "off"
		if h.settings.NotificationsEnabled() {
			state = "on"
		}
		h.sendMessage(msg.Chat.ID, "Reminders are "+state+". Use /notify on or /notify off")
	}
}
