// Package app wires configuration, storage, schedulers and ledgers into one
// running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hray3182/fakturavakt/internal/attachment"
	"github.com/hray3182/fakturavakt/internal/bot"
	"github.com/hray3182/fakturavakt/internal/bot/handlers"
	"github.com/hray3182/fakturavakt/internal/config"
	"github.com/hray3182/fakturavakt/internal/database"
	"github.com/hray3182/fakturavakt/internal/invoice"
	"github.com/hray3182/fakturavakt/internal/ledger"
	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/hray3182/fakturavakt/internal/reminder"
	"github.com/hray3182/fakturavakt/internal/repository"
	"github.com/hray3182/fakturavakt/internal/scheduler"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Outbox is a notification gateway that can also be drained for delivery.
type Outbox interface {
	notify.Gateway
	notify.Outbox
}

// Options override the storage backends. Nil Store and Outbox connect to
// DATABASE_URI.
type Options struct {
	Clock  clockwork.Clock
	Store  store.Store
	Outbox Outbox
	// Runner executes gateway calls. Nil starts a background reminder.Queue.
	Runner reminder.Runner
	// ReadOnly opens the state without taking the writer lock. Writes
	// through the store fail.
	ReadOnly bool
}

// ErrBusy is returned by New when another process holds the writer lock.
var ErrBusy = errors.New("another fakturavakt process is writing, stop it or use a read-only command")

type App struct {
	Config      *config.Config
	Clock       clockwork.Clock
	DB          *database.DB
	Store       store.Store
	Outbox      Outbox
	Settings    *ledger.SettingsService
	Reminders   *reminder.Scheduler
	Bills       *ledger.BillLedger
	Family      *ledger.FamilyLedger
	Attachments *attachment.FileStore
	Extractor   *invoice.AIExtractor

	readOnly  bool
	unlock    func()
	queue     *reminder.Queue
	stopQueue context.CancelFunc
	logCloser io.Closer
	log       zerolog.Logger
}

// New builds the application and loads persisted state. Close releases
// everything New acquired.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	closer, err := logger.Setup(cfg.Log.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	a := &App{
		Config:    cfg,
		Clock:     opts.Clock,
		Store:     opts.Store,
		Outbox:    opts.Outbox,
		readOnly:  opts.ReadOnly,
		logCloser: closer,
		log:       logger.WithComponent("app"),
	}
	if a.Clock == nil {
		a.Clock = clockwork.NewRealClock()
	}
	cfg.LogConfig(a.log)

	if err := a.init(ctx, opts.Runner); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, runner reminder.Runner) error {
	cfg := a.Config
	loc := cfg.Location()

	if a.Store == nil || a.Outbox == nil {
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return err
		}
		a.DB = db
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if a.Store == nil {
			a.Store = repository.NewKVRepository(db)
		}
		if a.Outbox == nil {
			a.Outbox = repository.NewNotificationRepository(db)
		}
	}

	if err := a.lock(ctx); err != nil {
		return err
	}

	key, err := store.LoadOrCreateKey(ctx, a.Store, cfg.EncryptionKey, cfg.KeyFile)
	if err != nil {
		return err
	}
	encrypted, err := store.NewEncryptedStore(a.Store, key)
	if err != nil {
		return err
	}

	a.Settings = ledger.NewSettingsService(encrypted, a.Clock, logger.WithComponent("settings"))
	if err := a.Settings.Load(ctx); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if runner == nil {
		a.queue = reminder.NewQueue(logger.WithComponent("reminder-queue"))
		queueCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopQueue = cancel
		go a.queue.Start(queueCtx)
		runner = a.queue
	}

	a.Reminders = reminder.New(a.Outbox, a.Settings, reminder.Options{
		Store:    encrypted,
		Runner:   runner,
		Clock:    a.Clock,
		Hour:     cfg.ReminderHour,
		Location: loc,
		Logger:   logger.WithComponent("reminder"),
	})
	if err := a.Reminders.LoadIndex(ctx); err != nil {
		return fmt.Errorf("failed to load reminder index: %w", err)
	}

	a.Attachments, err = attachment.NewFileStore(cfg.AttachmentDir, a.Clock)
	if err != nil {
		return err
	}

	a.Bills = ledger.NewBillLedger(ledger.Deps{
		Store:       encrypted,
		Scheduler:   a.Reminders,
		Preferences: a.Settings,
		Attachments: a.Attachments,
		Clock:       a.Clock,
		Location:    loc,
		Logger:      logger.WithComponent("bills"),
	})
	if err := a.Bills.Load(ctx); err != nil {
		return fmt.Errorf("failed to load bills: %w", err)
	}

	a.Family = ledger.NewFamilyLedger(ledger.FamilyDeps{
		Store:       encrypted,
		Scheduler:   a.Reminders,
		Preferences: a.Settings,
		Clock:       a.Clock,
		Location:    loc,
		Logger:      logger.WithComponent("family"),
	})
	if err := a.Family.Load(ctx); err != nil {
		return fmt.Errorf("failed to load family entries: %w", err)
	}

	a.Settings.OnNotificationsChanged(func(ctx context.Context, enabled bool) {
		if !enabled {
			a.Reminders.CancelAll(ctx)
			return
		}
		a.Bills.RefreshNotifications(ctx)
		a.Family.RefreshReminders(ctx)
	})

	if cfg.AIEnabled() {
		a.Extractor = invoice.NewAIExtractor(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, a.Clock)
		a.log.Info().Str("model", cfg.AIModel).Msg("AI extraction enabled")
	}

	return nil
}

// lock takes the writer lock, or wraps the store read-only. Stores that
// cannot lock are trusted to have a single writer.
func (a *App) lock(ctx context.Context) error {
	if a.readOnly {
		a.Store = store.ReadOnly{Store: a.Store}
		return nil
	}

	locker, ok := a.Store.(store.Locker)
	if !ok {
		a.log.Warn().Msg("store cannot be locked, concurrent writers are not detected")
		return nil
	}
	unlock, err := locker.TryLock(ctx, store.LockWriter)
	if errors.Is(err, store.ErrLocked) {
		return ErrBusy
	}
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	a.unlock = unlock
	return nil
}

// Run starts the delivery loop and the Telegram bot and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireTelegram(); err != nil {
		return err
	}
	if a.readOnly {
		return errors.New("cannot run the bot on a read-only store")
	}

	api, err := bot.NewAPI(a.Config.TelegramToken)
	if err != nil {
		return err
	}
	if a.Config.TelegramChatID == 0 {
		a.log.Warn().Msg("TELEGRAM_CHAT_ID is not set, the bot only replies to /start with the caller's chat id and reminders are not delivered")
	}

	if a.Config.TelegramChatID != 0 {
		sched := a.DeliveryLoop(bot.NewNotifier(api, a.Config.TelegramChatID))
		go sched.Start(ctx)
	}

	b := bot.New(api, a.HandlerDeps())
	a.log.Info().Msg("starting bot")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// DeliveryLoop builds the scheduler that drains the outbox through sender.
func (a *App) DeliveryLoop(sender scheduler.Sender) *scheduler.Scheduler {
	return scheduler.New(a.Outbox, sender, a.Bills, a.Settings, scheduler.Options{
		Clock:    a.Clock,
		Interval: a.Config.DispatchInterval,
		Location: a.Config.Location(),
		Logger:   logger.WithComponent("scheduler"),
	})
}

// HandlerDeps returns the bot handler dependencies without an API client.
func (a *App) HandlerDeps() handlers.Deps {
	deps := handlers.Deps{
		Bills:    a.Bills,
		Family:   a.Family,
		Settings: a.Settings,
		Clock:    a.Clock,
		Location: a.Config.Location(),
		ChatID:   a.Config.TelegramChatID,
		Currency: a.Config.DefaultCurrency,
		Logger:   logger.WithComponent("bot"),
	}
	if a.Extractor != nil {
		deps.Extractor = a.Extractor
	}
	return deps
}

// Flush waits for queued gateway calls. Short-lived commands call it before
// exiting.
func (a *App) Flush() {
	if a.queue != nil {
		a.queue.Wait()
	}
}

func (a *App) Close() {
	if a.stopQueue != nil {
		a.stopQueue()
		<-a.queue.Done()
	}
	if a.unlock != nil {
		a.unlock()
		a.unlock = nil
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
