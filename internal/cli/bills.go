package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hray3182/fakturavakt/internal/app"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/invoice"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/rrule"
	"github.com/spf13/cobra"
)

func newBillsCommand(env Env) *cobra.Command {
	var view string
	cmd := &cobra.Command{
		Use:   "bills",
		Short: "List bills",
		Example: `  fakturavakt bills
  fakturavakt bills --view overdue
  fakturavakt bills --view all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadOnlyApp(cmd, env, func(ctx context.Context, a *app.App) error {
				var bills []models.Bill
				switch view {
				case "upcoming":
					bills = a.Bills.UpcomingBills()
				case "overdue":
					bills = a.Bills.OverdueBills()
				case "paid":
					bills = a.Bills.PaidBills()
				case "paused":
					bills = a.Bills.PausedBills()
				case "all":
					bills = a.Bills.Bills()
				default:
					return fmt.Errorf("unknown view %q, want upcoming, overdue, paid, paused or all", view)
				}
				writeBills(cmd.OutOrStdout(), bills, a.Clock.Now().In(a.Config.Location()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "upcoming", "upcoming, overdue, paid, paused or all")
	return cmd
}

func writeBills(out io.Writer, bills []models.Bill, now time.Time) {
	if len(bills) == 0 {
		fmt.Fprintln(out, "No bills.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAMOUNT\tDUE\tSTATUS\tREPEATS")
	for _, b := range bills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID[:min(8, len(b.ID))],
			b.ServiceName,
			format.Amount(b.Amount, b.Currency),
			b.DueDate.Format("2006-01-02"),
			format.DueLabel(b, now),
			rrule.HumanReadable(b.Frequency),
		)
	}
	w.Flush()
}

func newAddCommand(env Env) *cobra.Command {
	var (
		name, amount, currency, due, frequency, category, notes, reference string
		autopay                                                            bool
		remind                                                             []int
		attach                                                             []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a bill",
		Example: `  fakturavakt add --name Telia --amount 499 --due 2025-03-28 --frequency monthly --category internet
  fakturavakt add --name Vattenfall --amount "1 245,50" --due 2025-04-30 --remind 3,7 --attach faktura.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok := invoice.ParseAmount(amount)
			if !ok || value.IsNegative() {
				return fmt.Errorf("invalid amount %q", amount)
			}
			freq := models.Frequency(frequency)
			if freq != models.FrequencyOnce && !rrule.IsRecurring(freq) {
				return fmt.Errorf("unknown frequency %q", frequency)
			}
			cat := models.Category(category)
			if !cat.Valid() {
				return fmt.Errorf("unknown category %q", category)
			}

			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				loc := a.Config.Location()
				dueDate, err := parseDate(due, loc)
				if err != nil {
					return err
				}
				if currency == "" {
					currency = a.Config.DefaultCurrency
				}

				input := models.BillInput{
					ServiceName:     strings.TrimSpace(name),
					Amount:          value,
					Currency:        strings.ToUpper(currency),
					DueDate:         dueDate,
					Frequency:       freq,
					Category:        cat,
					Notes:           notes,
					ReferenceNumber: reference,
					IsAutoPay:       autopay,
				}
				for _, offset := range remind {
					input.RemindSettings = append(input.RemindSettings, models.ReminderSetting{OffsetDays: offset})
				}

				bill := a.Bills.AddBill(ctx, input)
				for _, path := range attach {
					att, err := a.Attachments.Import(ctx, bill.ID, path)
					if err != nil {
						return fmt.Errorf("bill %s added but attachment failed: %w", bill.ID, err)
					}
					bill, _ = a.Bills.AddAttachment(ctx, bill.ID, att)
				}

				fmt.Fprint(cmd.OutOrStdout(), plain(format.BillDetail(bill, a.Clock.Now().In(loc))))
				fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n", bill.ID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "service or company name")
	f.StringVar(&amount, "amount", "", "amount, e.g. 499 or 1 245,50")
	f.StringVar(&currency, "currency", "", "currency code (default DEFAULT_CURRENCY)")
	f.StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	f.StringVar(&frequency, "frequency", string(models.FrequencyOnce), "once, weekly, biweekly, monthly, bimonthly, quarterly, semiannually, annually or custom")
	f.StringVar(&category, "category", string(models.CategoryOther), "housing, utilities, internet, insurance, transport, streaming, health or other")
	f.StringVar(&notes, "notes", "", "free text notes")
	f.StringVar(&reference, "ref", "", "OCR or invoice reference")
	f.BoolVar(&autopay, "autopay", false, "the bill is paid by direct debit")
	f.IntSliceVar(&remind, "remind", nil, "reminder offsets in days before due (default from settings)")
	f.StringArrayVar(&attach, "attach", nil, "file to attach, may be repeated")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func newPayCommand(env Env) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Mark a bill paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				bill, err := findBill(a, args[0])
				if err != nil {
					return err
				}
				var paidAt *time.Time
				if date != "" {
					t, err := parseDate(date, a.Config.Location())
					if err != nil {
						return err
					}
					paidAt = &t
				}

				paid, _ := a.Bills.MarkPaid(ctx, bill.ID, paidAt)
				fmt.Fprintf(cmd.OutOrStdout(), "Paid %s (%s)\n", paid.ServiceName, format.Amount(paid.Amount, paid.Currency))
				if paid.NextOccurrence != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Next due %s\n", paid.NextOccurrence.Format("2006-01-02"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "payment date, YYYY-MM-DD (default now)")
	return cmd
}

func newUnpayCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "unpay <id>",
		Short: "Undo a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				bill, err := findBill(a, args[0])
				if err != nil {
					return err
				}
				bill, _ = a.Bills.MarkUnpaid(ctx, bill.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", bill.ServiceName, bill.Status)
				return nil
			})
		},
	}
}

func newPauseCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause or resume a bill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				bill, err := findBill(a, args[0])
				if err != nil {
					return err
				}
				bill, _ = a.Bills.TogglePause(ctx, bill.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", bill.ServiceName, bill.Status)
				return nil
			})
		},
	}
}

func newRemoveCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a bill, its reminders and its attachments",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				bill, err := findBill(a, args[0])
				if err != nil {
					return err
				}
				a.Bills.RemoveBill(ctx, bill.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", bill.ServiceName)
				return nil
			})
		},
	}
}

func newMetricsCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show monthly totals and top categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadOnlyApp(cmd, env, func(ctx context.Context, a *app.App) error {
				fmt.Fprint(cmd.OutOrStdout(), plain(format.Metrics(a.Bills.Metrics(), a.Config.DefaultCurrency)))
				return nil
			})
		},
	}
}

func newNotificationsCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:       "notifications on|off",
		Short:     "Turn reminders on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("want on or off, got %q", args[0])
			}
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				a.Settings.SetNotificationsEnabled(ctx, enabled)
				if enabled {
					fmt.Fprintln(cmd.OutOrStdout(), "Reminders are on")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Reminders are off, pending ones were cancelled")
				}
				return nil
			})
		},
	}
}
