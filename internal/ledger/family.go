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
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// FamilyScheduler is the part of the reminder scheduler the family ledger
// uses.
type FamilyScheduler interface {
	ScheduleVab(ctx context.Context, entry models.VabEntry)
	CancelVab(ctx context.Context, entry models.VabEntry)
	ScheduleAppointment(ctx context.Context, appt models.MedicalAppointment)
	CancelAppointment(ctx context.Context, appt models.MedicalAppointment)
}

type FamilyDeps struct {
	Store       store.Store
	Scheduler   FamilyScheduler
	Preferences Preferences
	Clock       clockwork.Clock
	Location    *time.Location
	Logger      zerolog.Logger
}

type familySnapshot struct {
	Version      int                         `json:"version"`
	VabEntries   []models.VabEntry           `json:"vab_entries"`
	Appointments []models.MedicalAppointment `json:"appointments"`
}

// FamilyLedger owns VAB entries and medical appointments.
type FamilyLedger struct {
	store     store.Store
	scheduler FamilyScheduler
	prefs     Preferences
	clock     clockwork.Clock
	loc       *time.Location
	log       zerolog.Logger

	mu           sync.Mutex
	vab          []models.VabEntry
	appointments []models.MedicalAppointment
}

func NewFamilyLedger(deps FamilyDeps) *FamilyLedger {
	l := &FamilyLedger{
		store:     deps.Store,
		scheduler: deps.Scheduler,
		prefs:     deps.Preferences,
		clock:     deps.Clock,
		loc:       deps.Location,
		log:       deps.Logger,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	return l
}

func (l *FamilyLedger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	var snap familySnapshot
	if _, err := store.GetJSON(ctx, l.store, store.KeyFamily, &snap); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.vab = snap.VabEntries
	l.appointments = snap.Appointments
	return nil
}

// AddVabEntry records a sick-leave period. An end date not after the start
// collapses to the start date.
func (l *FamilyLedger) AddVabEntry(ctx context.Context, input models.VabEntryInput) models.VabEntry {
	now := l.now()
	offsets := input.ReminderOffsets
	if len(offsets) == 0 {
		offsets = models.DefaultVabReminderOffsets
	}

	entry := models.VabEntry{
		ID:              uuid.NewString(),
		ChildName:       strings.TrimSpace(input.ChildName),
		StartDate:       input.StartDate,
		EndDate:         clampEnd(input.StartDate, input.EndDate),
		Notes:           strings.TrimSpace(input.Notes),
		ReminderOffsets: normalizeOffsets(offsets),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.vab = append([]models.VabEntry{entry}, l.vab...)
	l.persistLocked(ctx)
	if l.scheduler != nil {
		l.scheduler.ScheduleVab(ctx, entry)
	}

	l.log.Info().Str("vab_entry_id", entry.ID).Str("child", entry.ChildName).Msg("vab entry added")
	return entry.Clone()
}

// UpdateVabEntry merges upd into the entry. An empty offsets list keeps the
// current offsets.
func (l *FamilyLedger) UpdateVabEntry(ctx context.Context, id string, upd models.VabEntryUpdate) (models.VabEntry, bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.vab {
		if l.vab[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.VabEntry{}, false
	}

	entry := l.vab[idx].Clone()
	if upd.ChildName != nil {
		entry.ChildName = strings.TrimSpace(*upd.ChildName)
	}
	if upd.StartDate != nil {
		entry.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil && upd.EndDate.After(entry.StartDate) {
		entry.EndDate = *upd.EndDate
	}
	entry.EndDate = clampEnd(entry.StartDate, entry.EndDate)
	if upd.Notes != nil {
		entry.Notes = strings.TrimSpace(*upd.Notes)
	}
	if len(upd.ReminderOffsets) > 0 {
		entry.ReminderOffsets = normalizeOffsets(upd.ReminderOffsets)
	}
	entry.UpdatedAt = now
	l.vab[idx] = entry

	l.persistLocked(ctx)
	if l.scheduler != nil {
		l.scheduler.ScheduleVab(ctx, entry)
	}
	return entry.Clone(), true
}

func (l *FamilyLedger) RemoveVabEntry(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.vab {
		if l.vab[i].ID != id {
			continue
		}
		entry := l.vab[i]
		l.vab = append(l.vab[:i], l.vab[i+1:]...)
		l.persistLocked(ctx)
		if l.scheduler != nil {
			l.scheduler.CancelVab(ctx, entry)
		}
		return true
	}
	return false
}

func (l *FamilyLedger) AddAppointment(ctx context.Context, input models.MedicalAppointmentInput) models.MedicalAppointment {
	now := l.now()
	offsets := input.ReminderOffsets
	if len(offsets) == 0 {
		offsets = models.DefaultAppointmentReminderOffsets
	}

	appt := models.MedicalAppointment{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(input.Title),
		PersonName:      strings.TrimSpace(input.PersonName),
		Date:            input.Date,
		Location:        strings.TrimSpace(input.Location),
		Notes:           strings.TrimSpace(input.Notes),
		ReminderOffsets: normalizeOffsets(offsets),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.appointments = append([]models.MedicalAppointment{appt}, l.appointments...)
	l.persistLocked(ctx)
	if l.scheduler != nil {
		l.scheduler.ScheduleAppointment(ctx, appt)
	}

	l.log.Info().Str("appointment_id", appt.ID).Str("title", appt.Title).Msg("appointment added")
	return appt.Clone()
}

func (l *FamilyLedger) UpdateAppointment(ctx context.Context, id string, upd models.MedicalAppointmentUpdate) (models.MedicalAppointment, bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.appointments {
		if l.appointments[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.MedicalAppointment{}, false
	}

	appt := l.appointments[idx].Clone()
	if upd.Title != nil {
		appt.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.PersonName != nil {
		appt.PersonName = strings.TrimSpace(*upd.PersonName)
	}
	if upd.Date != nil {
		appt.Date = *upd.Date
	}
	if upd.Location != nil {
		appt.Location = strings.TrimSpace(*upd.Location)
	}
	if upd.Notes != nil {
		appt.Notes = strings.TrimSpace(*upd.Notes)
	}
	if len(upd.ReminderOffsets) > 0 {
		appt.ReminderOffsets = normalizeOffsets(upd.ReminderOffsets)
	}
	appt.UpdatedAt = now
	l.appointments[idx] = appt

	l.persistLocked(ctx)
	if l.scheduler != nil {
		l.scheduler.ScheduleAppointment(ctx, appt)
	}
	return appt.Clone(), true
}

func (l *FamilyLedger) RemoveAppointment(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.appointments {
		if l.appointments[i].ID != id {
			continue
		}
		appt := l.appointments[i]
		l.appointments = append(l.appointments[:i], l.appointments[i+1:]...)
		l.persistLocked(ctx)
		if l.scheduler != nil {
			l.scheduler.CancelAppointment(ctx, appt)
		}
		return true
	}
	return false
}

// RefreshReminders reschedules every entry. It does nothing while
// notifications are disabled.
func (l *FamilyLedger) RefreshReminders(ctx context.Context) {
	if l.scheduler == nil || (l.prefs != nil && !l.prefs.NotificationsEnabled()) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.vab {
		l.scheduler.ScheduleVab(ctx, entry)
	}
	for _, appt := range l.appointments {
		l.scheduler.ScheduleAppointment(ctx, appt)
	}
}

// VabEntries returns every entry, latest start first.
func (l *FamilyLedger) VabEntries() []models.VabEntry {
	l.mu.Lock()
	out := make([]models.VabEntry, len(l.vab))
	for i, e := range l.vab {
		out[i] = e.Clone()
	}
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out
}

// Appointments returns every appointment, soonest first.
func (l *FamilyLedger) Appointments() []models.MedicalAppointment {
	l.mu.Lock()
	out := make([]models.MedicalAppointment, len(l.appointments))
	for i, a := range l.appointments {
		out[i] = a.Clone()
	}
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// UpcomingAppointments returns appointments from today onwards.
func (l *FamilyLedger) UpcomingAppointments() []models.MedicalAppointment {
	today := lifecycle.StartOfDay(l.now())
	all := l.Appointments()
	out := all[:0]
	for _, a := range all {
		if !a.Date.Before(today) {
			out = append(out, a)
		}
	}
	return out
}

// TotalVabDays sums the days of entries starting in the given year.
func (l *FamilyLedger) TotalVabDays(year int) int {
	total := 0
	for _, e := range l.VabEntries() {
		if e.StartDate.Year() == year {
			total += e.Days()
		}
	}
	return total
}

func (l *FamilyLedger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	snap := familySnapshot{Version: snapshotVersion, VabEntries: l.vab, Appointments: l.appointments}
	if err := store.SetJSON(ctx, l.store, store.KeyFamily, snap); err != nil {
		l.log.Error().Err(err).Msg("failed to persist family entries")
	}
}

func (l *FamilyLedger) now() time.Time {
	now := l.clock.Now()
	if l.loc != nil {
		now = now.In(l.loc)
	}
	return now
}

func clampEnd(start, end time.Time) time.Time {
	if end.After(start) {
		return end
	}
	return start
}
