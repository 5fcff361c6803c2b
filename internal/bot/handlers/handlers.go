package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/ledger"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Messenger is the subset of *tgbotapi.BotAPI the handlers call.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type BillLedger interface {
	Bill(id string) (models.Bill, bool)
	FindBill(ref string) (models.Bill, error)
	UpcomingBills() []models.Bill
	OverdueBills() []models.Bill
	PaidBills() []models.Bill
	PausedBills() []models.Bill
	Metrics() ledger.Metrics
	AddBill(ctx context.Context, input models.BillInput) models.Bill
	MarkPaid(ctx context.Context, id string, paidAt *time.Time) (models.Bill, bool)
	TogglePause(ctx context.Context, id string) (models.Bill, bool)
}

type FamilyLedger interface {
	VabEntries() []models.VabEntry
	UpcomingAppointments() []models.MedicalAppointment
	TotalVabDays(year int) int
}

type Settings interface {
	NotificationsEnabled() bool
	SetNotificationsEnabled(ctx context.Context, enabled bool)
}

// Extractor reads invoice text with a language model.
type Extractor interface {
	ExtractDraft(ctx context.Context, text string) (models.BillInput, error)
}

type Deps struct {
	API       Messenger
	Bills     BillLedger
	Family    FamilyLedger
	Settings  Settings
	Extractor Extractor // optional
	Clock     clockwork.Clock
	Location  *time.Location
	ChatID    int64 // 0 refuses every chat until configured
	Currency  string
	Logger    zerolog.Logger
}

type Handlers struct {
	api       Messenger
	bills     BillLedger
	family    FamilyLedger
	settings  Settings
	extractor Extractor
	clock     clockwork.Clock
	loc       *time.Location
	chatID    int64
	currency  string
	log       zerolog.Logger

	mu     sync.Mutex
	drafts map[int64]*pendingDraft
}

func New(deps Deps) *Handlers {
	h := &Handlers{
		api:       deps.API,
		bills:     deps.Bills,
		family:    deps.Family,
		settings:  deps.Settings,
		extractor: deps.Extractor,
		clock:     deps.Clock,
		loc:       deps.Location,
		chatID:    deps.ChatID,
		currency:  deps.Currency,
		log:       deps.Logger,
		drafts:    make(map[int64]*pendingDraft),
	}
	if h.clock == nil {
		h.clock = clockwork.NewRealClock()
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.currency == "" {
		h.currency = models.DefaultCurrency
	}
	return h
}

// Authorized reports whether chatID may use the bot. Without a configured
// chat id nobody may.
func (h *Handlers) Authorized(chatID int64) bool {
	return h.chatID != 0 && h.chatID == chatID
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if !h.Authorized(msg.Chat.ID) {
		h.refuse(msg)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "bills":
		h.handleBills(ctx, msg)
	case "overdue":
		h.sendMessage(msg.Chat.ID, format.BillList("Overdue", h.bills.OverdueBills(), h.now()))
	case "paid":
		h.handlePaid(ctx, msg)
	case "paused":
		h.sendMessage(msg.Chat.ID, format.BillList("Paused", h.bills.PausedBills(), h.now()))
	case "bill":
		h.handleBill(ctx, msg, args)
	case "pay":
		h.handlePay(ctx, msg, args)
	case "pause":
		h.handlePause(ctx, msg, args)
	case "resume":
		h.handleResume(ctx, msg, args)
	case "metrics":
		h.sendMessage(msg.Chat.ID, format.Metrics(h.bills.Metrics(), h.currency))
	case "family":
		h.handleFamily(ctx, msg)
	case "notify":
		h.handleNotify(ctx, msg, args)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

// HandleMessage treats free text as a pasted invoice.
func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !h.Authorized(msg.Chat.ID) || strings.TrimSpace(msg.Text) == "" {
		return
	}
	h.handleInvoiceText(ctx, msg)
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		h.log.Warn().Err(err).Msg("failed to answer callback")
	}
	if callback.Message == nil || !h.Authorized(callback.Message.Chat.ID) {
		return
	}

	action, arg, _ := strings.Cut(callback.Data, ":")
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	switch action {
	case "pay":
		bill, ok := h.bills.MarkPaid(ctx, arg, nil)
		if !ok {
			h.editMessageText(chatID, messageID, "❌ Bill not found")
			return
		}
		h.editMessageText(chatID, messageID, "✅ Paid: **"+format.Plain(bill.ServiceName)+"**")
	case "add":
		h.confirmDraft(ctx, chatID, messageID)
	case "cancel":
		h.dropDraft(chatID)
		h.editMessageText(chatID, messageID, "❌ Cancelled")
	}
}

func (h *Handlers) now() time.Time {
	return h.clock.Now().In(h.loc)
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	h.send(chatID, text, nil)
}

func (h *Handlers) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := h.api.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	parsed := format.ParseMarkdown(text)
	edit := tgbotapi.NewEditMessageText(chatID, messageID, parsed.Text)
	edit.Entities = parsed.Entities
	if _, err := h.api.Send(edit); err != nil {
		h.log.Error().Err(err).Msg("failed to edit message")
	}
}

// refuse answers /start from an unauthorized chat with its chat id, so the
// owner can configure TELEGRAM_CHAT_ID. Everything else is dropped.
func (h *Handlers) refuse(msg *tgbotapi.Message) {
	h.log.Warn().Int64("chat_id", msg.Chat.ID).Str("command", msg.Command()).Msg("unauthorized chat")
	if msg.Command() != "start" {
		return
	}
	text := fmt.Sprintf("This bot is private. Your chat id is `%d`.", msg.Chat.ID)
	if h.chatID == 0 {
		text += "\nSet TELEGRAM_CHAT_ID to it and restart the bot to use it."
	}
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	name := "there"
	if msg.From != nil && msg.From.FirstName != "" {
		name = msg.From.FirstName
	}
	text := fmt.Sprintf(`👋 Hi %s!

I keep track of your bills and remind you before they are due.

• /bills shows what is open
• /pay <id> marks a bill paid, the first characters of the id are enough
• paste an invoice text and I will turn it into a bill

Your chat id is `+"`%d`"+`. See /help for every command.`, format.Plain(name), msg.Chat.ID)
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 **Commands**

**Bills**
/bills - open bills, overdue first
/overdue - overdue bills
/paid - recently paid
/paused - paused bills
/bill <id> - details for a bill
/pay <id> - mark a bill paid
/pause <id> - pause a bill
/resume <id> - resume a paused bill
/metrics - monthly totals

**Family**
/family - VAB entries and appointments

**Settings**
/notify on|off - toggle reminders

💡 Paste invoice text to add a bill.`
	h.sendMessage(msg.Chat.ID, text)
}
