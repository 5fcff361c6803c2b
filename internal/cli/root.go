// Package cli holds the fakturavakt command tree.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/app"
	"github.com/hray3182/fakturavakt/internal/config"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Env supplies configuration and the application to commands. Tests swap
// both for in-memory versions. Open with readOnly set must not take the
// writer lock.
type Env struct {
	LoadConfig func() (*config.Config, error)
	Open       func(ctx context.Context, cfg *config.Config, readOnly bool) (*app.App, error)
	Clock      clockwork.Clock
}

func (e Env) clock() clockwork.Clock {
	if e.Clock == nil {
		return clockwork.NewRealClock()
	}
	return e.Clock
}

// DefaultEnv reads the environment and connects to DATABASE_URI.
func DefaultEnv() Env {
	return Env{
		LoadConfig: config.Load,
		Open: func(ctx context.Context, cfg *config.Config, readOnly bool) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{ReadOnly: readOnly})
		},
	}
}

func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "fakturavakt",
		Short: "Keep track of bills, reminders and family care days",
		Long: `fakturavakt records recurring bills, schedules reminders ahead of each
due date and delivers them through a Telegram bot. It also keeps VAB days
and medical appointments for the family.

Configuration is read from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(env),
		newBillsCommand(env),
		newAddCommand(env),
		newPayCommand(env),
		newUnpayCommand(env),
		newPauseCommand(env),
		newRemoveCommand(env),
		newMetricsCommand(env),
		newFamilyCommand(env),
		newParseCommand(env),
		newNotificationsCommand(env),
	)
	return root
}

// withApp opens the application for the duration of fn. It fails with
// app.ErrBusy while another process, usually run, holds the writer lock.
func withApp(cmd *cobra.Command, env Env, fn func(ctx context.Context, a *app.App) error) error {
	return openApp(cmd, env, false, fn)
}

// withReadOnlyApp opens the application for commands that only read.
func withReadOnlyApp(cmd *cobra.Command, env Env, fn func(ctx context.Context, a *app.App) error) error {
	return openApp(cmd, env, true, fn)
}

func openApp(cmd *cobra.Command, env Env, readOnly bool, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := env.LoadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := env.Open(ctx, cfg, readOnly)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return err
	}
	a.Flush()
	return nil
}

func findBill(a *app.App, ref string) (models.Bill, error) {
	return a.Bills.FindBill(ref)
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}

// plain renders a chat-formatted message for the terminal.
func plain(text string) string {
	return format.ParseMarkdown(text).Text + "\n"
}
