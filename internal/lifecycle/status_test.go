package lifecycle

import (
	"testing"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

func TestDeriveStatus(t *testing.T) {
	paidAt := now.Add(-time.Hour)

	tests := []struct {
		name string
		bill models.Bill
		want models.BillStatus
	}{
		{"future due is scheduled", models.Bill{DueDate: now.AddDate(0, 0, 3), Status: models.StatusScheduled}, models.StatusScheduled},
		{"due earlier today is not overdue", models.Bill{DueDate: now.Add(-10 * time.Hour)}, models.StatusScheduled},
		{"due yesterday is overdue", models.Bill{DueDate: now.AddDate(0, 0, -1)}, models.StatusOverdue},
		{"paidAt wins over overdue", models.Bill{DueDate: now.AddDate(0, 0, -10), PaidAt: &paidAt}, models.StatusPaid},
		{"paid status without timestamp", models.Bill{DueDate: now.AddDate(0, 0, 2), Status: models.StatusPaid}, models.StatusPaid},
		{"paused is sticky", models.Bill{DueDate: now.AddDate(0, 0, -5), Status: models.StatusPaused}, models.StatusPaused},
		{"paused beats paid", models.Bill{DueDate: now, Status: models.StatusPaused, PaidAt: &paidAt}, models.StatusPaused},
		{"overdue recovers when moved forward", models.Bill{DueDate: now.AddDate(0, 1, 0), Status: models.StatusOverdue}, models.StatusScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.bill, now))
			assert.Equal(t, tt.want, DeriveStatus(tt.bill, now), "must be pure")
		})
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 0, DaysUntil(now.Add(5*time.Hour), now))
	assert.Equal(t, 1, DaysUntil(time.Date(2025, 3, 16, 1, 0, 0, 0, time.UTC), now))
	assert.Equal(t, -2, DaysUntil(time.Date(2025, 3, 13, 23, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 17, DaysUntil(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestCalendarHelpers(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), StartOfDay(now))
	assert.Equal(t, time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC), AtHour(now, 9))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(now))
}
