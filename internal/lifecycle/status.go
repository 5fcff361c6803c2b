// Package lifecycle derives a bill's status from its dates.
package lifecycle

import (
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
)

// DeriveStatus computes the status a bill should carry at now. First match
// wins: paused, paid, overdue, scheduled.
func DeriveStatus(bill models.Bill, now time.Time) models.BillStatus {
	if bill.Status == models.StatusPaused {
		return models.StatusPaused
	}
	if bill.PaidAt != nil || bill.Status == models.StatusPaid {
		return models.StatusPaid
	}
	if IsOverdue(bill.DueDate, now) {
		return models.StatusOverdue
	}
	return models.StatusScheduled
}

// IsOverdue reports whether due lies strictly before the start of now's
// calendar day. A bill due earlier today is not overdue yet.
func IsOverdue(due, now time.Time) bool {
	return due.Before(StartOfDay(now))
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtHour returns t's calendar day at the given wall-clock hour.
func AtHour(t time.Time, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, t.Location())
}

// StartOfMonth returns midnight on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// DaysUntil counts calendar days from now's day to due's day. Negative when
// due has passed.
func DaysUntil(due, now time.Time) int {
	from := StartOfDay(now)
	to := StartOfDay(due.In(now.Location()))
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
