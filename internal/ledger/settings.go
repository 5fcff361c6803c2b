package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// NotificationsHook runs after the notification switch changes.
type NotificationsHook func(ctx context.Context, enabled bool)

// SettingsService holds the user preferences. Reads are synchronous and
// never touch the store.
type SettingsService struct {
	store store.Store
	clock clockwork.Clock
	log   zerolog.Logger

	mu       sync.RWMutex
	settings models.Settings
	hooks    []NotificationsHook
}

func NewSettingsService(st store.Store, clock clockwork.Clock, log zerolog.Logger) *SettingsService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SettingsService{
		store:    st,
		clock:    clock,
		log:      log,
		settings: models.NewDefaultSettings(),
	}
}

func (s *SettingsService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	settings := models.NewDefaultSettings()
	if _, err := store.GetJSON(ctx, s.store, store.KeySettings, &settings); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// OnNotificationsChanged registers a hook run by SetNotificationsEnabled.
func (s *SettingsService) OnNotificationsChanged(hook NotificationsHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *SettingsService) Current() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	out.DefaultReminderOffsets = append([]int(nil), s.settings.DefaultReminderOffsets...)
	return out
}

func (s *SettingsService) NotificationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.NotificationsEnabled
}

func (s *SettingsService) DefaultReminderOffsets() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ReminderOffsets()
}

// SetNotificationsEnabled flips the switch and runs the registered hooks
// when the value actually changed.
func (s *SettingsService) SetNotificationsEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	changed := s.settings.NotificationsEnabled != enabled
	s.settings.NotificationsEnabled = enabled
	hooks := append([]NotificationsHook(nil), s.hooks...)
	s.persistLocked(ctx)
	s.mu.Unlock()

	if !changed {
		return
	}
	s.log.Info().Bool("enabled", enabled).Msg("notifications toggled")
	for _, hook := range hooks {
		hook(ctx, enabled)
	}
}

func (s *SettingsService) SetDefaultReminderOffsets(ctx context.Context, offsets []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.DefaultReminderOffsets = normalizeOffsets(offsets)
	s.persistLocked(ctx)
}

func (s *SettingsService) SetLanguage(ctx context.Context, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Language = language
	s.persistLocked(ctx)
}

func (s *SettingsService) SetPreferredTheme(ctx context.Context, theme string) error {
	switch theme {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("unknown theme %q", theme)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.PreferredTheme = theme
	s.persistLocked(ctx)
	return nil
}

// SetDailySummary configures the daily summary. at is "HH:MM".
func (s *SettingsService) SetDailySummary(ctx context.Context, enabled bool, at string) error {
	if _, err := time.Parse("15:04", at); err != nil {
		return fmt.Errorf("invalid summary time %q: %w", at, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.DailySummaryEnabled = enabled
	s.settings.DailySummaryTime = at
	s.persistLocked(ctx)
	return nil
}

// ShouldSendDailySummary reports whether the summary is due at now.
func (s *SettingsService) ShouldSendDailySummary(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ShouldSendDailySummary(now)
}

func (s *SettingsService) MarkDailySummarySent(ctx context.Context, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.LastDailySummaryDate = &at
	s.persistLocked(ctx)
}

func (s *SettingsService) persistLocked(ctx context.Context) {
	s.settings.UpdatedAt = s.clock.Now()
	if s.store == nil {
		return
	}
	if err := store.SetJSON(ctx, s.store, store.KeySettings, s.settings); err != nil {
		s.log.Error().Err(err).Msg("failed to persist settings")
	}
}
