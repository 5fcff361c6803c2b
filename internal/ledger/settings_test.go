package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsService_Defaults(t *testing.T) {
	s := NewSettingsService(nil, clockwork.NewFakeClockAt(start), logger.Nop())

	assert.True(t, s.NotificationsEnabled())
	assert.Equal(t, []int{1, 3, 7}, s.DefaultReminderOffsets())
	assert.Equal(t, "sv", s.Current().Language)
}

func TestSettingsService_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	s := NewSettingsService(st, clock, logger.Nop())

	s.SetNotificationsEnabled(ctx, false)
	s.SetDefaultReminderOffsets(ctx, []int{7, 2})
	s.SetLanguage(ctx, "en")
	require.NoError(t, s.SetPreferredTheme(ctx, "dark"))
	require.NoError(t, s.SetDailySummary(ctx, true, "07:30"))

	loaded := NewSettingsService(st, clock, logger.Nop())
	require.NoError(t, loaded.Load(ctx))

	got := loaded.Current()
	assert.False(t, got.NotificationsEnabled)
	assert.Equal(t, []int{2, 7}, got.DefaultReminderOffsets)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, "dark", got.PreferredTheme)
	assert.Equal(t, "07:30", got.DailySummaryTime)
	assert.True(t, start.Equal(got.UpdatedAt))
}

func TestSettingsService_Validation(t *testing.T) {
	s := NewSettingsService(nil, nil, logger.Nop())

	assert.Error(t, s.SetPreferredTheme(context.Background(), "neon"))
	assert.Error(t, s.SetDailySummary(context.Background(), true, "25:99"))
}

func TestSettingsService_HooksRunOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsService(nil, nil, logger.Nop())

	var calls []bool
	s.OnNotificationsChanged(func(ctx context.Context, enabled bool) {
		calls = append(calls, enabled)
	})

	s.SetNotificationsEnabled(ctx, true)
	s.SetNotificationsEnabled(ctx, false)
	s.SetNotificationsEnabled(ctx, false)
	s.SetNotificationsEnabled(ctx, true)

	assert.Equal(t, []bool{false, true}, calls)
}

func TestSettingsService_DailySummary(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsService(nil, nil, logger.Nop())
	require.NoError(t, s.SetDailySummary(ctx, true, "08:00"))

	morning := time.Date(2025, 3, 10, 7, 59, 0, 0, time.UTC)
	assert.False(t, s.ShouldSendDailySummary(morning))

	due := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	assert.True(t, s.ShouldSendDailySummary(due))

	s.MarkDailySummarySent(ctx, due)
	assert.False(t, s.ShouldSendDailySummary(due.Add(3*time.Hour)))
	assert.True(t, s.ShouldSendDailySummary(due.AddDate(0, 0, 1)))

	s.SetNotificationsEnabled(ctx, false)
	assert.False(t, s.ShouldSendDailySummary(due.AddDate(0, 0, 2)))
}
