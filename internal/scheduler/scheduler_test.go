package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	texts []string
	err   error
}

func (f *fakeSender) SendNotification(ctx context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n.ID)
	return nil
}

func (f *fakeSender) SendText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSender) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeLedger struct {
	mu         sync.Mutex
	reconciles int
	overdue    []models.Bill
	upcoming   []models.Bill
}

func (f *fakeLedger) Reconcile(ctx context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles++
	return 0
}

func (f *fakeLedger) OverdueBills() []models.Bill  { return f.overdue }
func (f *fakeLedger) UpcomingBills() []models.Bill { return f.upcoming }

type fakeSummaries struct {
	due  bool
	sent []time.Time
}

func (f *fakeSummaries) ShouldSendDailySummary(now time.Time) bool { return f.due && len(f.sent) == 0 }
func (f *fakeSummaries) MarkDailySummarySent(ctx context.Context, at time.Time) {
	f.sent = append(f.sent, at)
}

type purgingOutbox struct {
	*notify.MemoryGateway
	before []time.Time
}

func (p *purgingOutbox) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	p.before = append(p.before, before)
	return 0, nil
}

type fixture struct {
	ctx       context.Context
	clock     *clockwork.FakeClock
	gateway   *notify.MemoryGateway
	sender    *fakeSender
	ledger    *fakeLedger
	summaries *fakeSummaries
	sched     *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:       context.Background(),
		clock:     clockwork.NewFakeClockAt(start),
		gateway:   notify.NewMemoryGateway(),
		sender:    &fakeSender{},
		ledger:    &fakeLedger{},
		summaries: &fakeSummaries{},
	}
	f.sched = New(f.gateway, f.sender, f.ledger, f.summaries, Options{
		Clock:    f.clock,
		Location: time.UTC,
		Logger:   logger.Nop(),
	})
	return f
}

func (f *fixture) schedule(t *testing.T, id string, at time.Time) {
	t.Helper()
	require.NoError(t, f.gateway.Create(f.ctx, notify.Notification{
		ID:        id,
		Title:     "Rent",
		TriggerAt: at,
		Data:      map[string]string{notify.DataBillID: "b1"},
	}))
}

func TestCheck_DeliversOnlyDueNotifications(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "b1-3", start.Add(-time.Hour))
	f.schedule(t, "b1-1", start.Add(48*time.Hour))

	f.sched.Check(f.ctx)

	assert.Equal(t, []string{"b1-3"}, f.sender.sentIDs())
	assert.Equal(t, []string{"b1-1"}, f.gateway.IDs())

	delivered, ok := f.gateway.Get("b1-3")
	require.True(t, ok)
	require.NotNil(t, delivered.DeliveredAt)
	assert.True(t, start.Equal(*delivered.DeliveredAt))
}

func TestCheck_SendFailureRetriesNextPass(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "b1-3", start.Add(-time.Minute))

	f.sender.setErr(errors.New("telegram down"))
	f.sched.Check(f.ctx)
	assert.Equal(t, []string{"b1-3"}, f.gateway.IDs())

	f.sender.setErr(nil)
	f.sched.Check(f.ctx)
	assert.Equal(t, []string{"b1-3"}, f.sender.sentIDs())
	assert.Empty(t, f.gateway.IDs())

	f.sched.Check(f.ctx)
	assert.Len(t, f.sender.sentIDs(), 1, "delivered notifications are not resent")
}

func TestCheck_ReconcilesEveryPass(t *testing.T) {
	f := newFixture(t)
	f.sched.Check(f.ctx)
	f.sched.Check(f.ctx)
	assert.Equal(t, 2, f.ledger.reconciles)
}

func TestCheck_DailySummary(t *testing.T) {
	f := newFixture(t)
	f.summaries.due = true
	f.ledger.overdue = []models.Bill{{ServiceName: "El", Amount: decimal.NewFromInt(300), Currency: "SEK", DueDate: start.AddDate(0, 0, -2)}}
	f.ledger.upcoming = []models.Bill{
		{ServiceName: "Telia", Amount: decimal.NewFromInt(499), Currency: "SEK", DueDate: start.AddDate(0, 0, 3)},
		{ServiceName: "Hyra", Amount: decimal.NewFromInt(8500), Currency: "SEK", DueDate: start.AddDate(0, 0, 20)},
	}

	f.sched.Check(f.ctx)

	require.Len(t, f.sender.texts, 1)
	text := f.sender.texts[0]
	assert.Contains(t, text, "**El**")
	assert.Contains(t, text, "**Telia**")
	assert.NotContains(t, text, "Hyra")
	require.Len(t, f.summaries.sent, 1)

	f.sched.Check(f.ctx)
	assert.Len(t, f.sender.texts, 1, "summary goes out once a day")
}

func TestCheck_DailySummaryNotMarkedWhenSendFails(t *testing.T) {
	f := newFixture(t)
	f.summaries.due = true
	f.sender.setErr(errors.New("nope"))

	f.sched.Check(f.ctx)
	assert.Empty(t, f.summaries.sent)
}

func TestCheck_PurgesDeliveredWhenSupported(t *testing.T) {
	f := newFixture(t)
	outbox := &purgingOutbox{MemoryGateway: f.gateway}
	sched := New(outbox, f.sender, f.ledger, nil, Options{
		Clock:     f.clock,
		Retention: 24 * time.Hour,
		Location:  time.UTC,
		Logger:    logger.Nop(),
	})

	sched.Check(f.ctx)
	require.Len(t, outbox.before, 1)
	assert.True(t, start.Add(-24*time.Hour).Equal(outbox.before[0]))
}

func TestStart_TickerAndNotify(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		f.ledger.mu.Lock()
		defer f.ledger.mu.Unlock()
		return f.ledger.reconciles >= 1
	}, time.Second, 5*time.Millisecond)

	f.schedule(t, "b1-1", start.Add(-time.Second))
	f.sched.Notify()
	require.Eventually(t, func() bool {
		return len(f.sender.sentIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	f.schedule(t, "b1-0", start.Add(30*time.Second))
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return len(f.sender.sentIDs()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
