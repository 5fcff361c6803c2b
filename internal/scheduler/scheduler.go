// Package scheduler runs the delivery loop: it sends notifications whose
// trigger time has passed, keeps bill statuses current and posts the daily
// summary.
package scheduler

import (
	"context"
	"time"

	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/lifecycle"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval  = time.Minute
	DefaultRetention = 30 * 24 * time.Hour
)

// Sender delivers messages to the user.
type Sender interface {
	SendNotification(ctx context.Context, n notify.Notification) error
	SendText(ctx context.Context, text string) error
}

// Ledger is the part of the bill ledger the loop drives.
type Ledger interface {
	Reconcile(ctx context.Context) int
	OverdueBills() []models.Bill
	UpcomingBills() []models.Bill
}

// Summaries tracks whether today's digest is due.
type Summaries interface {
	ShouldSendDailySummary(now time.Time) bool
	MarkDailySummarySent(ctx context.Context, at time.Time)
}

// Purger is implemented by outboxes that keep delivered rows.
type Purger interface {
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
}

type Options struct {
	Clock      clockwork.Clock
	Interval   time.Duration
	StartDelay time.Duration
	Retention  time.Duration
	Location   *time.Location
	Logger     zerolog.Logger
}

type Scheduler struct {
	outbox    notify.Outbox
	sender    Sender
	ledger    Ledger
	summaries Summaries
	clock     clockwork.Clock
	interval  time.Duration
	delay     time.Duration
	retention time.Duration
	loc       *time.Location
	log       zerolog.Logger
	notifyCh  chan struct{}
}

func New(outbox notify.Outbox, sender Sender, ledger Ledger, summaries Summaries, opts Options) *Scheduler {
	s := &Scheduler{
		outbox:    outbox,
		sender:    sender,
		ledger:    ledger,
		summaries: summaries,
		clock:     opts.Clock,
		interval:  opts.Interval,
		delay:     opts.StartDelay,
		retention: opts.Retention,
		loc:       opts.Location,
		log:       opts.Logger,
		notifyCh:  make(chan struct{}, 1),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.delay):
		}
	}

	s.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.Chan():
			s.Check(ctx)
		case <-s.notifyCh:
			s.log.Debug().Msg("scheduler triggered")
			s.Check(ctx)
		}
	}
}

// Check runs one pass: reconcile, deliver, summarise, purge.
func (s *Scheduler) Check(ctx context.Context) {
	now := s.clock.Now().In(s.loc)

	if changed := s.ledger.Reconcile(ctx); changed > 0 {
		s.log.Info().Int("changed", changed).Msg("reconciled bill statuses")
	}
	s.deliver(ctx, now)
	s.dailySummary(ctx, now)
	s.purge(ctx, now)
}

func (s *Scheduler) deliver(ctx context.Context, now time.Time) int {
	due, err := s.outbox.Due(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get due notifications")
		return 0
	}

	sent := 0
	for _, n := range due {
		if err := s.sender.SendNotification(ctx, n); err != nil {
			// Left undelivered; the next pass retries.
			s.log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to send notification")
			continue
		}
		if err := s.outbox.MarkDelivered(ctx, n.ID, now); err != nil {
			s.log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to mark notification delivered")
			continue
		}
		sent++
		s.log.Info().Str("notification_id", n.ID).Str("bill_id", n.Data[notify.DataBillID]).Msg("sent notification")
	}
	return sent
}

func (s *Scheduler) dailySummary(ctx context.Context, now time.Time) {
	if s.summaries == nil || !s.summaries.ShouldSendDailySummary(now) {
		return
	}

	weekEnd := lifecycle.StartOfDay(now).AddDate(0, 0, 7)
	var week []models.Bill
	for _, b := range s.ledger.UpcomingBills() {
		if b.DueDate.Before(weekEnd) {
			week = append(week, b)
		}
	}

	text := format.DailySummary(now, s.ledger.OverdueBills(), week)
	if err := s.sender.SendText(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("failed to send daily summary")
		return
	}
	s.summaries.MarkDailySummarySent(ctx, now)
	s.log.Info().Int("week", len(week)).Msg("sent daily summary")
}

func (s *Scheduler) purge(ctx context.Context, now time.Time) {
	p, ok := s.outbox.(Purger)
	if !ok {
		return
	}
	n, err := p.PurgeDelivered(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to purge delivered notifications")
		return
	}
	if n > 0 {
		s.log.Debug().Int64("purged", n).Msg("purged delivered notifications")
	}
}
