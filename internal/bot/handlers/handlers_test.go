package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/fakturavakt/internal/ledger"
	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/hray3182/fakturavakt/internal/reminder"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID int64 = 4242

var start = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	switch c := f.last(t).(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	default:
		t.Fatalf("unexpected chattable %T", c)
		return ""
	}
}

type fakeExtractor struct {
	input models.BillInput
	err   error
	calls int
}

func (f *fakeExtractor) ExtractDraft(ctx context.Context, text string) (models.BillInput, error) {
	f.calls++
	return f.input, f.err
}

type fixture struct {
	ctx      context.Context
	clock    *clockwork.FakeClock
	api      *fakeAPI
	gateway  *notify.MemoryGateway
	settings *ledger.SettingsService
	bills    *ledger.BillLedger
	family   *ledger.FamilyLedger
	h        *Handlers
}

func newFixture(t *testing.T, extractor Extractor) *fixture {
	t.Helper()
	return newFixtureForChat(t, extractor, chatID)
}

func newFixtureForChat(t *testing.T, extractor Extractor, allowed int64) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	f := &fixture{
		ctx:     context.Background(),
		clock:   clockwork.NewFakeClockAt(start),
		api:     &fakeAPI{},
		gateway: notify.NewMemoryGateway(),
	}
	f.settings = ledger.NewSettingsService(st, f.clock, logger.Nop())
	sched := reminder.New(f.gateway, f.settings, reminder.Options{
		Store:    st,
		Runner:   reminder.Inline{},
		Clock:    f.clock,
		Hour:     9,
		Location: time.UTC,
		Logger:   logger.Nop(),
	})
	f.bills = ledger.NewBillLedger(ledger.Deps{
		Store: st, Scheduler: sched, Preferences: f.settings,
		Clock: f.clock, Location: time.UTC, Logger: logger.Nop(),
	})
	f.family = ledger.NewFamilyLedger(ledger.FamilyDeps{
		Store: st, Scheduler: sched, Preferences: f.settings,
		Clock: f.clock, Location: time.UTC, Logger: logger.Nop(),
	})
	f.settings.OnNotificationsChanged(func(ctx context.Context, enabled bool) {
		if !enabled {
			sched.CancelAll(ctx)
			return
		}
		f.bills.RefreshNotifications(ctx)
		f.family.RefreshReminders(ctx)
	})

	deps := Deps{
		API:      f.api,
		Bills:    f.bills,
		Family:   f.family,
		Settings: f.settings,
		Clock:    f.clock,
		Location: time.UTC,
		ChatID:   allowed,
		Logger:   logger.Nop(),
	}
	if extractor != nil {
		deps.Extractor = extractor
	}
	f.h = New(deps)
	return f
}

func (f *fixture) add(name string, due time.Time) models.Bill {
	return f.bills.AddBill(f.ctx, models.BillInput{
		ServiceName: name,
		Amount:      decimal.NewFromInt(300),
		DueDate:     due,
		Frequency:   models.FrequencyOnce,
	})
}

func (f *fixture) command(text string) {
	f.commandFrom(chatID, text)
}

func (f *fixture) commandFrom(chat int64, text string) {
	cmd, _, _ := strings.Cut(text, " ")
	f.h.HandleCommand(f.ctx, &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chat},
		From:     &tgbotapi.User{FirstName: "Anna"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	})
}

func (f *fixture) message(text string) {
	f.h.HandleMessage(f.ctx, &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	})
}

func (f *fixture) callback(data string) {
	f.h.HandleCallbackQuery(f.ctx, &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}},
	})
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) sentCount() int {
	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	return len(f.api.sent)
}

func TestHandleCommand_RejectsOtherChats(t *testing.T) {
	f := newFixture(t, nil)
	el := f.add("El", day(15))

	f.commandFrom(1, "/pay "+el.ID)
	f.commandFrom(1, "/bills")
	assert.Zero(t, f.sentCount(), "nothing is revealed to other chats")
	assert.Len(t, f.bills.UpcomingBills(), 1)

	f.commandFrom(1, "/start")
	assert.Equal(t, "This bot is private. Your chat id is 1.", f.api.lastText(t))
}

func TestHandleCommand_UnconfiguredChatRefusesEverything(t *testing.T) {
	f := newFixtureForChat(t, nil, 0)
	el := f.add("El", day(15))

	f.command("/bills")
	f.command("/metrics")
	f.command("/pay " + el.ID)
	f.command("/notify off")
	f.message(invoiceText)
	f.callback("pay:" + el.ID)
	assert.Zero(t, f.sentCount())
	assert.Len(t, f.api.requests, 1, "callback is still answered")
	assert.Len(t, f.bills.UpcomingBills(), 1)
	assert.True(t, f.settings.NotificationsEnabled())

	f.command("/start")
	text := f.api.lastText(t)
	assert.Contains(t, text, "Your chat id is 4242.")
	assert.Contains(t, text, "Set TELEGRAM_CHAT_ID")
	assert.Equal(t, 1, f.sentCount())
}

func TestHandleCommand_BillsListsOverdueFirst(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))
	el := f.add("El", day(5))

	f.command("/bills")

	text := f.api.lastText(t)
	assert.Contains(t, text, "• El · 300.00 SEK · 5 days overdue · "+el.ID[:8])
	assert.Contains(t, text, "• Telia · 300.00 SEK · due in 5 days · "+telia.ID[:8])
	assert.Less(t, strings.Index(text, "El"), strings.Index(text, "Telia"))
}

func TestHandleCommand_PayByID(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))
	f.add("El", day(5))
	require.NotEmpty(t, f.gateway.IDs())

	f.command("/pay " + telia.ID[:8])

	assert.Contains(t, f.api.lastText(t), "Paid Telia")
	bill, ok := f.bills.Bill(telia.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPaid, bill.Status)
	for _, id := range f.gateway.IDs() {
		assert.False(t, strings.HasPrefix(id, telia.ID), "reminder %s should be cancelled", id)
	}
}

func TestHandleCommand_PayTargetsListedBillAfterListChanges(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))
	el := f.add("El", day(20))

	f.command("/bills")
	listed := f.api.lastText(t)
	require.Contains(t, listed, el.ID[:8])

	// A bill due earlier arrives and El moves down the list.
	vatten := f.add("Vatten", day(12))
	f.clock.Advance(6 * 24 * time.Hour)
	require.Equal(t, []string{"Vatten", "Telia"}, []string{f.bills.OverdueBills()[0].ServiceName, f.bills.OverdueBills()[1].ServiceName})

	f.command("/pay " + el.ID[:8])

	assert.Contains(t, f.api.lastText(t), "Paid El")
	for _, b := range []models.Bill{telia, vatten} {
		got, _ := f.bills.Bill(b.ID)
		assert.NotEqual(t, models.StatusPaid, got.Status, b.ServiceName)
	}
	got, _ := f.bills.Bill(el.ID)
	assert.Equal(t, models.StatusPaid, got.Status)
}

func TestHandleCommand_PayRejectsUnknownIDs(t *testing.T) {
	f := newFixture(t, nil)
	f.add("Telia", day(15))

	f.command("/pay")
	assert.Contains(t, f.api.lastText(t), "Usage: /pay <id>")

	f.command("/pay zz")
	assert.Equal(t, "❌ No bill with id zz", f.api.lastText(t))
	assert.Empty(t, f.bills.PaidBills())
}

func TestHandleCommand_PauseAndResume(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))
	ref := telia.ID[:8]

	f.command("/resume " + ref)
	assert.Equal(t, "Telia is not paused", f.api.lastText(t))

	f.command("/pause " + ref)
	assert.Contains(t, f.api.lastText(t), "Paused Telia")
	require.Len(t, f.bills.PausedBills(), 1)
	assert.Empty(t, f.gateway.IDs())

	f.command("/pause " + ref)
	assert.Contains(t, f.api.lastText(t), "already paused")
	require.Len(t, f.bills.PausedBills(), 1)

	f.command("/resume " + ref)
	assert.Contains(t, f.api.lastText(t), "Resumed Telia (due in 5 days)")
	assert.Empty(t, f.bills.PausedBills())
	assert.NotEmpty(t, f.gateway.IDs())
}

func TestHandleCommand_NotifyToggle(t *testing.T) {
	f := newFixture(t, nil)
	f.add("Telia", day(20))
	require.NotEmpty(t, f.gateway.IDs())

	f.command("/notify off")
	assert.False(t, f.settings.NotificationsEnabled())
	assert.Empty(t, f.gateway.IDs())

	f.command("/notify")
	assert.Contains(t, f.api.lastText(t), "Reminders are off")

	f.command("/notify on")
	assert.True(t, f.settings.NotificationsEnabled())
	assert.NotEmpty(t, f.gateway.IDs())
}

func TestHandleCommand_MetricsAndFamily(t *testing.T) {
	f := newFixture(t, nil)
	f.add("Telia", day(15))
	f.family.AddVabEntry(f.ctx, models.VabEntryInput{ChildName: "Elsa", StartDate: day(3), EndDate: day(4)})

	f.command("/metrics")
	assert.Contains(t, f.api.lastText(t), "This month: 300.00 SEK")

	f.command("/family")
	assert.Contains(t, f.api.lastText(t), "Elsa: 2025-03-03 to 2025-03-04 (2 days)")
}

func TestHandleCommand_BillDetailHasPayButton(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))

	f.command("/bill " + telia.ID[:8])

	msg, ok := f.api.last(t).(tgbotapi.MessageConfig)
	require.True(t, ok)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "pay:"+telia.ID, *markup.InlineKeyboard[0][0].CallbackData)
}

func TestCallback_PayFromReminder(t *testing.T) {
	f := newFixture(t, nil)
	telia := f.add("Telia", day(15))

	f.callback("pay:" + telia.ID)

	assert.Equal(t, "✅ Paid: Telia", f.api.lastText(t))
	assert.Len(t, f.api.requests, 1, "callback is answered")
	bill, _ := f.bills.Bill(telia.ID)
	assert.Equal(t, models.StatusPaid, bill.Status)

	f.callback("pay:missing")
	assert.Equal(t, "❌ Bill not found", f.api.lastText(t))
}

const invoiceText = `Telia Sverige AB
Fakturanummer: 2025-00123
Förfallodag: 2025-03-31
Att betala: 1 234,50 kr
OCR: 1234567890`

func TestInvoiceDraft_AddFlow(t *testing.T) {
	f := newFixture(t, nil)

	f.message(invoiceText)
	text := f.api.lastText(t)
	assert.Contains(t, text, "Telia Sverige AB")
	assert.Contains(t, text, "Amount: 1 234.50 SEK")
	assert.Contains(t, text, "Due: 2025-03-31")

	f.callback("add:4242")
	assert.Contains(t, f.api.lastText(t), "Added Telia Sverige AB")
	upcoming := f.bills.UpcomingBills()
	require.Len(t, upcoming, 1)
	assert.Equal(t, "1234567890", upcoming[0].ReferenceNumber)

	f.callback("add:4242")
	assert.Contains(t, f.api.lastText(t), "expired")
	assert.Len(t, f.bills.UpcomingBills(), 1)
}

func TestInvoiceDraft_Expires(t *testing.T) {
	f := newFixture(t, nil)
	f.message(invoiceText)

	f.clock.Advance(draftTimeout + time.Minute)
	f.callback("add:4242")

	assert.Contains(t, f.api.lastText(t), "expired")
	assert.Empty(t, f.bills.Bills())
}

func TestInvoiceDraft_Cancel(t *testing.T) {
	f := newFixture(t, nil)
	f.message(invoiceText)

	f.callback("cancel:4242")
	assert.Equal(t, "❌ Cancelled", f.api.lastText(t))

	f.callback("add:4242")
	assert.Empty(t, f.bills.Bills())
}

func TestInvoiceDraft_FallsBackToExtractor(t *testing.T) {
	ex := &fakeExtractor{input: models.BillInput{
		ServiceName: "Gym AB",
		Amount:      decimal.NewFromInt(399),
		Currency:    "SEK",
		DueDate:     day(25),
	}}
	f := newFixture(t, ex)

	f.message("please pay the gym thing")
	assert.Equal(t, 1, ex.calls)
	assert.Contains(t, f.api.lastText(t), "Gym AB")

	ex.err = errors.New("rate limited")
	f.message("???")
	assert.Contains(t, f.api.lastText(t), "could not find invoice details")
}

func TestInvoiceDraft_NoExtractorForConfidentParse(t *testing.T) {
	ex := &fakeExtractor{}
	f := newFixture(t, ex)

	f.message(invoiceText)
	assert.Equal(t, 0, ex.calls)
}
