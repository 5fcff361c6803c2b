package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hray3182/fakturavakt/internal/app"
	"github.com/hray3182/fakturavakt/internal/logger"
	"github.com/spf13/cobra"
)

func newRunCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Telegram bot and the reminder delivery loop",
		Long: `Start the Telegram bot and the reminder delivery loop.

Required environment variables:
  DATABASE_URI     - PostgreSQL connection string
  TELEGRAM_TOKEN   - Bot token from @BotFather
  TELEGRAM_CHAT_ID - Chat that receives reminders and may use the bot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				if err := a.Run(ctx); err != nil {
					return err
				}
				log := logger.WithComponent("cli")
				log.Info().Msg("shutting down")
				return nil
			})
		},
	}
}
