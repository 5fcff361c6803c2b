// Package ledger owns the bills and family events, applies commands to them
// and keeps their derived fields, reminders and persisted copy in step.
package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/fakturavakt/internal/lifecycle"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/rrule"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const snapshotVersion = 1

// BillScheduler is the part of the reminder scheduler the bill ledger uses.
type BillScheduler interface {
	ScheduleBill(ctx context.Context, bill models.Bill)
	CancelBill(ctx context.Context, bill models.Bill)
}

// Preferences are read before every scheduling decision.
type Preferences interface {
	NotificationsEnabled() bool
	DefaultReminderOffsets() []int
}

// AttachmentRemover deletes an attachment's stored file.
type AttachmentRemover interface {
	Remove(ctx context.Context, attachment models.Attachment) error
}

type Deps struct {
	Store       store.Store
	Scheduler   BillScheduler
	Preferences Preferences
	Attachments AttachmentRemover
	Clock       clockwork.Clock
	Location    *time.Location
	Logger      zerolog.Logger
}

type billSnapshot struct {
	Version int           `json:"version"`
	Bills   []models.Bill `json:"bills"`
}

// BillLedger is the single owner of the bill collection. Commands hold the
// lock for their whole duration, including the write-through persist.
type BillLedger struct {
	store     store.Store
	scheduler BillScheduler
	prefs     Preferences
	remover   AttachmentRemover
	clock     clockwork.Clock
	loc       *time.Location
	log       zerolog.Logger

	mu    sync.Mutex
	bills []models.Bill
}

func NewBillLedger(deps Deps) *BillLedger {
	l := &BillLedger{
		store:     deps.Store,
		scheduler: deps.Scheduler,
		prefs:     deps.Preferences,
		remover:   deps.Attachments,
		clock:     deps.Clock,
		loc:       deps.Location,
		log:       deps.Logger,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	return l
}

// Load replaces the in-memory collection with the persisted one.
func (l *BillLedger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	var snap billSnapshot
	if _, err := store.GetJSON(ctx, l.store, store.KeyBills, &snap); err != nil {
		return err
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bills = snap.Bills
	for i := range l.bills {
		l.bills[i].Status = lifecycle.DeriveStatus(l.bills[i], now)
		l.bills[i].NextOccurrence = rrule.NextOccurrence(l.bills[i].DueDate, l.bills[i].Frequency)
	}
	l.log.Info().Int("count", len(l.bills)).Msg("bills loaded")
	return nil
}

func (l *BillLedger) AddBill(ctx context.Context, input models.BillInput) models.Bill {
	now := l.now()

	reminders := input.RemindSettings
	if len(reminders) == 0 {
		for _, offset := range l.defaultOffsets() {
			reminders = append(reminders, models.ReminderSetting{OffsetDays: offset})
		}
	}

	bill := models.Bill{
		ID:              uuid.NewString(),
		ServiceName:     strings.TrimSpace(input.ServiceName),
		Amount:          input.Amount,
		Currency:        input.Currency,
		DueDate:         input.DueDate,
		Frequency:       input.Frequency,
		Category:        input.Category,
		Notes:           input.Notes,
		RemindSettings:  normalizeReminders(reminders),
		ReferenceNumber: input.ReferenceNumber,
		ProviderContact: input.ProviderContact,
		CreatedAt:       now,
		Status:          models.StatusScheduled,
		IsAutoPay:       input.IsAutoPay,
	}
	if bill.Currency == "" {
		bill.Currency = models.DefaultCurrency
	}
	if bill.Frequency == "" {
		bill.Frequency = models.FrequencyOnce
	}
	if bill.Category == "" {
		bill.Category = models.CategoryOther
	}
	bill.Attachments = make([]models.Attachment, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		a.BillID = bill.ID
		bill.Attachments = append(bill.Attachments, a)
	}
	if input.ProviderContact != nil {
		contact := *input.ProviderContact
		bill.ProviderContact = &contact
	}
	finish(&bill, now)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.bills = append(l.bills, bill)
	l.persistLocked(ctx)
	l.syncReminders(ctx, bill)

	l.log.Info().Str("bill_id", bill.ID).Str("service", bill.ServiceName).Time("due_date", bill.DueDate).Msg("bill added")
	return bill.Clone()
}

// UpdateBill merges upd over the bill. ok is false when id is unknown.
func (l *BillLedger) UpdateBill(ctx context.Context, id string, upd models.BillUpdate) (models.Bill, bool) {
	return l.mutate(ctx, id, true, func(bill *models.Bill, now time.Time) bool {
		applyUpdate(bill, upd, now)
		return true
	})
}

// RemoveBill deletes the bill, cancels its reminders and removes its
// attachment files. Unknown ids are ignored.
func (l *BillLedger) RemoveBill(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return false
	}
	bill := l.bills[idx]
	l.bills = append(l.bills[:idx], l.bills[idx+1:]...)

	l.persistLocked(ctx)
	if l.scheduler != nil {
		l.scheduler.CancelBill(ctx, bill)
	}
	for _, a := range bill.Attachments {
		l.removeFile(ctx, a)
	}

	l.log.Info().Str("bill_id", id).Msg("bill removed")
	return true
}

// MarkPaid records payment at paidAt, or now when nil. Paid wins over
// paused and overdue.
func (l *BillLedger) MarkPaid(ctx context.Context, id string, paidAt *time.Time) (models.Bill, bool) {
	return l.mutate(ctx, id, true, func(bill *models.Bill, now time.Time) bool {
		at := now
		if paidAt != nil {
			at = *paidAt
		}
		bill.PaidAt = &at
		bill.Status = models.StatusPaid
		return true
	})
}

// MarkUnpaid clears the payment so the bill is scheduled or overdue again.
func (l *BillLedger) MarkUnpaid(ctx context.Context, id string) (models.Bill, bool) {
	return l.mutate(ctx, id, true, func(bill *models.Bill, now time.Time) bool {
		if bill.PaidAt == nil && bill.Status != models.StatusPaid {
			return false
		}
		bill.PaidAt = nil
		bill.Status = models.StatusScheduled
		return true
	})
}

// TogglePause pauses an active bill or resumes a paused one. Resuming
// derives the status against the clock, so a bill whose due date passed
// while paused comes back overdue. Paid bills are left alone.
func (l *BillLedger) TogglePause(ctx context.Context, id string) (models.Bill, bool) {
	return l.mutate(ctx, id, true, func(bill *models.Bill, now time.Time) bool {
		switch {
		case bill.Status == models.StatusPaused:
			bill.Status = models.StatusScheduled
		case bill.PaidAt != nil || bill.Status == models.StatusPaid:
			return false
		default:
			bill.Status = models.StatusPaused
		}
		return true
	})
}

func (l *BillLedger) AddAttachment(ctx context.Context, billID string, attachment models.Attachment) (models.Bill, bool) {
	return l.mutate(ctx, billID, false, func(bill *models.Bill, now time.Time) bool {
		attachment.BillID = bill.ID
		if attachment.ID == "" {
			attachment.ID = uuid.NewString()
		}
		if attachment.AddedAt.IsZero() {
			attachment.AddedAt = now
		}
		bill.Attachments = append(bill.Attachments, attachment)
		return true
	})
}

// RemoveAttachment detaches the attachment and deletes its file.
func (l *BillLedger) RemoveAttachment(ctx context.Context, billID, attachmentID string) (models.Bill, bool) {
	var removed *models.Attachment
	bill, ok := l.mutate(ctx, billID, false, func(bill *models.Bill, now time.Time) bool {
		kept := bill.Attachments[:0:0]
		for _, a := range bill.Attachments {
			if a.ID == attachmentID {
				a := a
				removed = &a
				continue
			}
			kept = append(kept, a)
		}
		if removed == nil {
			return false
		}
		bill.Attachments = kept
		return true
	})
	if removed != nil {
		l.removeFile(ctx, *removed)
	}
	return bill, ok
}

// SetReminders replaces the reminder offsets and reschedules.
func (l *BillLedger) SetReminders(ctx context.Context, billID string, reminders []models.ReminderSetting) (models.Bill, bool) {
	return l.mutate(ctx, billID, true, func(bill *models.Bill, now time.Time) bool {
		bill.RemindSettings = normalizeReminders(reminders)
		return true
	})
}

// RefreshNotifications brings every bill's reminders in line with its
// current state. It does nothing while notifications are disabled.
func (l *BillLedger) RefreshNotifications(ctx context.Context) {
	if l.prefs != nil && !l.prefs.NotificationsEnabled() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, bill := range l.bills {
		l.syncReminders(ctx, bill)
	}
	l.log.Debug().Int("count", len(l.bills)).Msg("notifications refreshed")
}

// Reconcile re-derives every status against the clock and persists when a
// bill moved, typically scheduled to overdue at midnight. It returns the
// number of bills that changed.
func (l *BillLedger) Reconcile(ctx context.Context) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for i := range l.bills {
		status := lifecycle.DeriveStatus(l.bills[i], now)
		if status == l.bills[i].Status {
			continue
		}
		l.log.Info().Str("bill_id", l.bills[i].ID).
			Str("from", string(l.bills[i].Status)).Str("to", string(status)).
			Msg("bill status changed")
		l.bills[i].Status = status
		changed++
	}
	if changed > 0 {
		l.persistLocked(ctx)
	}
	return changed
}

// mutate applies fn to the bill under the lock. fn returns false to report
// that nothing changed. Every change ends with the status derived again.
func (l *BillLedger) mutate(ctx context.Context, id string, reschedule bool, fn func(bill *models.Bill, now time.Time) bool) (models.Bill, bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return models.Bill{}, false
	}

	bill := l.bills[idx].Clone()
	if !fn(&bill, now) {
		return l.bills[idx].Clone(), true
	}
	finish(&bill, now)
	l.bills[idx] = bill

	l.persistLocked(ctx)
	if reschedule {
		l.syncReminders(ctx, bill)
	}
	return bill.Clone(), true
}

func (l *BillLedger) syncReminders(ctx context.Context, bill models.Bill) {
	if l.scheduler == nil {
		return
	}
	switch bill.Status {
	case models.StatusPaid, models.StatusPaused:
		l.scheduler.CancelBill(ctx, bill)
	default:
		l.scheduler.ScheduleBill(ctx, bill)
	}
}

func (l *BillLedger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	snap := billSnapshot{Version: snapshotVersion, Bills: l.bills}
	if err := store.SetJSON(ctx, l.store, store.KeyBills, snap); err != nil {
		l.log.Error().Err(err).Msg("failed to persist bills")
	}
}

func (l *BillLedger) removeFile(ctx context.Context, a models.Attachment) {
	if l.remover == nil {
		return
	}
	if err := l.remover.Remove(ctx, a); err != nil {
		l.log.Warn().Err(err).Str("attachment_id", a.ID).Str("uri", a.URI).Msg("failed to remove attachment file")
	}
}

func (l *BillLedger) indexLocked(id string) int {
	for i := range l.bills {
		if l.bills[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *BillLedger) defaultOffsets() []int {
	if l.prefs != nil {
		if offsets := l.prefs.DefaultReminderOffsets(); len(offsets) > 0 {
			return offsets
		}
	}
	return models.DefaultReminderOffsets
}

func (l *BillLedger) now() time.Time {
	now := l.clock.Now()
	if l.loc != nil {
		now = now.In(l.loc)
	}
	return now
}

// finish recomputes the derived fields.
func finish(bill *models.Bill, now time.Time) {
	bill.UpdatedAt = now
	bill.Status = lifecycle.DeriveStatus(*bill, now)
	bill.NextOccurrence = rrule.NextOccurrence(bill.DueDate, bill.Frequency)
}

func applyUpdate(bill *models.Bill, upd models.BillUpdate, now time.Time) {
	if upd.ServiceName != nil {
		bill.ServiceName = strings.TrimSpace(*upd.ServiceName)
	}
	if upd.Amount != nil {
		bill.Amount = *upd.Amount
	}
	if upd.Currency != nil {
		bill.Currency = *upd.Currency
	}
	if upd.DueDate != nil {
		bill.DueDate = *upd.DueDate
	}
	if upd.Frequency != nil {
		bill.Frequency = *upd.Frequency
	}
	if upd.Category != nil {
		bill.Category = *upd.Category
	}
	if upd.Notes != nil {
		bill.Notes = *upd.Notes
	}
	if upd.RemindSettings != nil {
		bill.RemindSettings = normalizeReminders(upd.RemindSettings)
	}
	if upd.Attachments != nil {
		bill.Attachments = append([]models.Attachment(nil), upd.Attachments...)
	}
	if upd.ReferenceNumber != nil {
		bill.ReferenceNumber = *upd.ReferenceNumber
	}
	if upd.ProviderContact != nil {
		contact := *upd.ProviderContact
		bill.ProviderContact = &contact
	}
	if upd.IsAutoPay != nil {
		bill.IsAutoPay = *upd.IsAutoPay
	}
	if upd.Status != nil {
		switch *upd.Status {
		case models.StatusPaused:
			bill.Status = models.StatusPaused
		case models.StatusPaid:
			if bill.PaidAt == nil {
				at := now
				bill.PaidAt = &at
			}
			bill.Status = models.StatusPaid
		default:
			bill.PaidAt = nil
			bill.Status = models.StatusScheduled
		}
	}
}

// normalizeReminders keeps one setting per non-negative offset, sorted by
// offset, and fills in missing ids.
func normalizeReminders(in []models.ReminderSetting) []models.ReminderSetting {
	seen := make(map[int]bool, len(in))
	out := make([]models.ReminderSetting, 0, len(in))
	for _, r := range in {
		if r.OffsetDays < 0 || seen[r.OffsetDays] {
			continue
		}
		seen[r.OffsetDays] = true
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OffsetDays < out[j].OffsetDays
	})
	return out
}

func normalizeOffsets(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, o := range in {
		if o < 0 || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	sort.Ints(out)
	return out
}
