package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hray3182/fakturavakt/internal/lifecycle"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
)

// DefaultHour is the local wall-clock hour reminders land on.
const DefaultHour = 9

const (
	vabPrefix         = "vab-"
	appointmentPrefix = "appt-"
)

// Trigger is one planned reminder.
type Trigger struct {
	ID         string
	OffsetDays int
	At         time.Time
}

// BillNotificationID is "<billID>-<offset>".
func BillNotificationID(billID string, offset int) string {
	return fmt.Sprintf("%s-%d", billID, offset)
}

func VabNotificationID(entryID string, offset int) string {
	return fmt.Sprintf("%s%s-%d", vabPrefix, entryID, offset)
}

func AppointmentNotificationID(appointmentID string, offset int) string {
	return fmt.Sprintf("%s%s-%d", appointmentPrefix, appointmentID, offset)
}

// PlanBill returns the bill's reminders that are still ahead of now,
// earliest first. Each fires offset days before the due date at hour.
func PlanBill(bill models.Bill, hour int, now time.Time) []Trigger {
	base := lifecycle.AtHour(bill.DueDate, hour)
	return plan(bill.Offsets(), now, func(offset int) Trigger {
		return Trigger{
			ID:         BillNotificationID(bill.ID, offset),
			OffsetDays: offset,
			At:         base.AddDate(0, 0, -offset),
		}
	})
}

// PlanVab returns follow-ups offset days after the entry's end date.
func PlanVab(entry models.VabEntry, hour int, now time.Time) []Trigger {
	base := lifecycle.AtHour(entry.EndDate, hour)
	return plan(entry.ReminderOffsets, now, func(offset int) Trigger {
		return Trigger{
			ID:         VabNotificationID(entry.ID, offset),
			OffsetDays: offset,
			At:         base.AddDate(0, 0, offset),
		}
	})
}

// PlanAppointment returns reminders offset days before the appointment day.
func PlanAppointment(appt models.MedicalAppointment, hour int, now time.Time) []Trigger {
	base := lifecycle.AtHour(appt.Date, hour)
	return plan(appt.ReminderOffsets, now, func(offset int) Trigger {
		return Trigger{
			ID:         AppointmentNotificationID(appt.ID, offset),
			OffsetDays: offset,
			At:         base.AddDate(0, 0, -offset),
		}
	})
}

func plan(offsets []int, now time.Time, build func(offset int) Trigger) []Trigger {
	seen := make(map[int]bool, len(offsets))
	var triggers []Trigger
	for _, offset := range offsets {
		if offset < 0 || seen[offset] {
			continue
		}
		seen[offset] = true

		t := build(offset)
		if !t.At.After(now) {
			continue
		}
		triggers = append(triggers, t)
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].At.Before(triggers[j].At)
	})
	return triggers
}

func billNotification(bill models.Bill, t Trigger) notify.Notification {
	return notify.Notification{
		ID:        t.ID,
		Title:     bill.ServiceName,
		Body:      fmt.Sprintf("Due %s (%d days left) · %s %s", bill.DueDate.Format("2006-01-02"), t.OffsetDays, bill.Amount.StringFixed(2), bill.Currency),
		TriggerAt: t.At,
		Data: map[string]string{
			notify.DataKind:           "bill",
			notify.DataBillID:         bill.ID,
			notify.DataReminderOffset: strconv.Itoa(t.OffsetDays),
		},
	}
}

func vabNotification(entry models.VabEntry, t Trigger) notify.Notification {
	return notify.Notification{
		ID:        t.ID,
		Title:     "Report VAB for " + entry.ChildName,
		Body:      fmt.Sprintf("%s to %s (%d days)", entry.StartDate.Format("2006-01-02"), entry.EndDate.Format("2006-01-02"), entry.Days()),
		TriggerAt: t.At,
		Data: map[string]string{
			notify.DataKind:           "vab",
			notify.DataVabEntryID:     entry.ID,
			notify.DataReminderOffset: strconv.Itoa(t.OffsetDays),
		},
	}
}

func appointmentNotification(appt models.MedicalAppointment, t Trigger) notify.Notification {
	body := appt.Date.Format("2006-01-02 15:04")
	if appt.Location != "" {
		body += " · " + appt.Location
	}
	if appt.PersonName != "" {
		body = appt.PersonName + ", " + body
	}
	return notify.Notification{
		ID:        t.ID,
		Title:     appt.Title,
		Body:      body,
		TriggerAt: t.At,
		Data: map[string]string{
			notify.DataKind:           "appointment",
			notify.DataAppointmentID:  appt.ID,
			notify.DataReminderOffset: strconv.Itoa(t.OffsetDays),
		},
	}
}
