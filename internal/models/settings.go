package models

import (
	"time"
)

// Settings are the user-level preferences the core consults before
// scheduling reminders or sending summaries.
type Settings struct {
	NotificationsEnabled   bool       `json:"notifications_enabled"`
	DefaultReminderOffsets []int      `json:"default_reminder_offsets"`
	Language               string     `json:"language"`
	PreferredTheme         string     `json:"preferred_theme"` // light, dark or system
	DailySummaryEnabled    bool       `json:"daily_summary_enabled"`
	DailySummaryTime       string     `json:"daily_summary_time"` // HH:MM format
	LastDailySummaryDate   *time.Time `json:"last_daily_summary_date,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewDefaultSettings creates Settings with default values
func NewDefaultSettings() Settings {
	return Settings{
		NotificationsEnabled:   true,
		DefaultReminderOffsets: append([]int(nil), DefaultReminderOffsets...),
		Language:               "sv",
		PreferredTheme:         "system",
		DailySummaryEnabled:    true,
		DailySummaryTime:       "08:00",
	}
}

// ReminderOffsets returns the configured default offsets, falling back to
// DefaultReminderOffsets when none are set.
func (s *Settings) ReminderOffsets() []int {
	if len(s.DefaultReminderOffsets) == 0 {
		return append([]int(nil), DefaultReminderOffsets...)
	}
	return append([]int(nil), s.DefaultReminderOffsets...)
}

// ShouldSendDailySummary checks if it's time to send the daily summary
func (s *Settings) ShouldSendDailySummary(now time.Time) bool {
	if !s.DailySummaryEnabled || !s.NotificationsEnabled {
		return false
	}

	// Check if already sent today
	if s.LastDailySummaryDate != nil {
		last := s.LastDailySummaryDate.In(now.Location())
		if sameDay(last, now) || last.After(now) {
			return false
		}
	}

	summaryHour, summaryMin := parseTimeString(s.DailySummaryTime)
	summaryTime := time.Date(now.Year(), now.Month(), now.Day(), summaryHour, summaryMin, 0, 0, now.Location())

	return !now.Before(summaryTime)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// parseTimeString parses "HH:MM" format to hours and minutes
func parseTimeString(timeStr string) (hour, min int) {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}
