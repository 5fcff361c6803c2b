// Package reminder decides which notifications should be pending for each
// bill and family event, and keeps the gateway in line with that.
package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Preferences exposes the user-level notification switch.
type Preferences interface {
	NotificationsEnabled() bool
}

type Options struct {
	// Store persists the id index. Nil keeps it in memory only.
	Store    store.Store
	Runner   Runner
	Clock    clockwork.Clock
	Hour     int
	Location *time.Location
	Logger   zerolog.Logger
}

// Scheduler owns an index from entity key to the notification ids it has
// issued, so cancellation never depends on listing the gateway.
type Scheduler struct {
	gateway notify.Gateway
	prefs   Preferences
	store   store.Store
	runner  Runner
	clock   clockwork.Clock
	hour    int
	loc     *time.Location
	log     zerolog.Logger

	mu    sync.Mutex
	index map[string][]string
}

func New(gateway notify.Gateway, prefs Preferences, opts Options) *Scheduler {
	s := &Scheduler{
		gateway: gateway,
		prefs:   prefs,
		store:   opts.Store,
		runner:  opts.Runner,
		clock:   opts.Clock,
		hour:    opts.Hour,
		loc:     opts.Location,
		log:     opts.Logger,
		index:   make(map[string][]string),
	}
	if s.runner == nil {
		s.runner = Inline{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.hour <= 0 || s.hour > 23 {
		s.hour = DefaultHour
	}
	return s
}

func billKey(id string) string        { return "bill:" + id }
func vabKey(id string) string         { return "vab:" + id }
func appointmentKey(id string) string { return "appt:" + id }

// LoadIndex restores the id index persisted by a previous run.
func (s *Scheduler) LoadIndex(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	index := make(map[string][]string)
	if _, err := store.GetJSON(ctx, s.store, store.KeyReminderIndex, &index); err != nil {
		return err
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// ScheduleBill replaces every pending reminder of the bill with the ones
// still ahead of now. It does nothing while notifications are disabled.
func (s *Scheduler) ScheduleBill(ctx context.Context, bill models.Bill) {
	if !s.enabled() {
		return
	}

	var deterministic []string
	for _, offset := range bill.Offsets() {
		deterministic = append(deterministic, BillNotificationID(bill.ID, offset))
	}

	local := s.local(bill)
	triggers := PlanBill(local, s.hour, s.clock.Now())
	notifications := make([]notify.Notification, len(triggers))
	for i, t := range triggers {
		notifications[i] = billNotification(local, t)
	}

	s.replace(ctx, billKey(bill.ID), deterministic, notifications, "bill_id", bill.ID)
}

// CancelBill cancels every reminder the bill may have pending.
func (s *Scheduler) CancelBill(ctx context.Context, bill models.Bill) {
	var deterministic []string
	for _, offset := range bill.Offsets() {
		deterministic = append(deterministic, BillNotificationID(bill.ID, offset))
	}
	s.replace(ctx, billKey(bill.ID), deterministic, nil, "bill_id", bill.ID)
}

func (s *Scheduler) ScheduleVab(ctx context.Context, entry models.VabEntry) {
	if !s.enabled() {
		return
	}

	var deterministic []string
	for _, offset := range entry.ReminderOffsets {
		deterministic = append(deterministic, VabNotificationID(entry.ID, offset))
	}

	local := entry
	if s.loc != nil {
		local.StartDate = entry.StartDate.In(s.loc)
		local.EndDate = entry.EndDate.In(s.loc)
	}
	triggers := PlanVab(local, s.hour, s.clock.Now())
	notifications := make([]notify.Notification, len(triggers))
	for i, t := range triggers {
		notifications[i] = vabNotification(local, t)
	}

	s.replace(ctx, vabKey(entry.ID), deterministic, notifications, "vab_entry_id", entry.ID)
}

func (s *Scheduler) CancelVab(ctx context.Context, entry models.VabEntry) {
	var deterministic []string
	for _, offset := range entry.ReminderOffsets {
		deterministic = append(deterministic, VabNotificationID(entry.ID, offset))
	}
	s.replace(ctx, vabKey(entry.ID), deterministic, nil, "vab_entry_id", entry.ID)
}

func (s *Scheduler) ScheduleAppointment(ctx context.Context, appt models.MedicalAppointment) {
	if !s.enabled() {
		return
	}

	var deterministic []string
	for _, offset := range appt.ReminderOffsets {
		deterministic = append(deterministic, AppointmentNotificationID(appt.ID, offset))
	}

	local := appt
	if s.loc != nil {
		local.Date = appt.Date.In(s.loc)
	}
	triggers := PlanAppointment(local, s.hour, s.clock.Now())
	notifications := make([]notify.Notification, len(triggers))
	for i, t := range triggers {
		notifications[i] = appointmentNotification(local, t)
	}

	s.replace(ctx, appointmentKey(appt.ID), deterministic, notifications, "appointment_id", appt.ID)
}

func (s *Scheduler) CancelAppointment(ctx context.Context, appt models.MedicalAppointment) {
	var deterministic []string
	for _, offset := range appt.ReminderOffsets {
		deterministic = append(deterministic, AppointmentNotificationID(appt.ID, offset))
	}
	s.replace(ctx, appointmentKey(appt.ID), deterministic, nil, "appointment_id", appt.ID)
}

// CancelAll cancels every notification in the index.
func (s *Scheduler) CancelAll(ctx context.Context) {
	s.mu.Lock()
	var ids []string
	for _, entityIDs := range s.index {
		ids = append(ids, entityIDs...)
	}
	s.index = make(map[string][]string)
	s.mu.Unlock()

	s.saveIndex(ctx)

	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	s.runner.Run(func(ctx context.Context) {
		if err := s.gateway.CancelByIDs(ctx, ids); err != nil {
			s.log.Warn().Err(err).Int("count", len(ids)).Msg("failed to cancel notifications")
		}
	})
}

// Indexed returns the notification ids currently recorded for a bill.
func (s *Scheduler) Indexed(billID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.index[billKey(billID)]...)
}

// replace cancels the indexed ids together with the entity's deterministic
// ids, then creates the new notifications. Both steps go through the runner
// as a single job so cancellation is always issued first.
func (s *Scheduler) replace(ctx context.Context, key string, deterministic []string, next []notify.Notification, field, id string) {
	s.mu.Lock()
	cancel := union(s.index[key], deterministic)
	if len(next) == 0 {
		delete(s.index, key)
	} else {
		ids := make([]string, len(next))
		for i, n := range next {
			ids[i] = n.ID
		}
		sort.Strings(ids)
		s.index[key] = ids
	}
	s.mu.Unlock()

	s.saveIndex(ctx)

	if len(cancel) == 0 && len(next) == 0 {
		return
	}

	log := s.log.With().Str(field, id).Logger()
	s.runner.Run(func(ctx context.Context) {
		if len(cancel) > 0 {
			if err := s.gateway.CancelByIDs(ctx, cancel); err != nil {
				log.Warn().Err(err).Strs("notification_ids", cancel).Msg("failed to cancel reminders")
			}
		}
		for _, n := range next {
			if err := s.gateway.Create(ctx, n); err != nil {
				log.Warn().Err(err).Str("notification_id", n.ID).Time("trigger_at", n.TriggerAt).Msg("failed to schedule reminder")
				continue
			}
			log.Debug().Str("notification_id", n.ID).Time("trigger_at", n.TriggerAt).Msg("reminder scheduled")
		}
	})
}

func (s *Scheduler) saveIndex(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	snapshot := make(map[string][]string, len(s.index))
	for k, v := range s.index {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := store.SetJSON(ctx, s.store, store.KeyReminderIndex, snapshot); err != nil {
		s.log.Error().Err(err).Msg("failed to persist reminder index")
	}
}

func (s *Scheduler) enabled() bool {
	return s.prefs == nil || s.prefs.NotificationsEnabled()
}

func (s *Scheduler) local(bill models.Bill) models.Bill {
	if s.loc != nil {
		bill.DueDate = bill.DueDate.In(s.loc)
	}
	return bill
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}
