package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/app"
	"github.com/hray3182/fakturavakt/internal/format"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/spf13/cobra"
)

func newFamilyCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "List VAB days and upcoming medical appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadOnlyApp(cmd, env, func(ctx context.Context, a *app.App) error {
				now := a.Clock.Now().In(a.Config.Location())
				text := format.Family(a.Family.VabEntries(), a.Family.UpcomingAppointments(), a.Family.TotalVabDays(now.Year()), now)
				fmt.Fprint(cmd.OutOrStdout(), plain(text))
				return nil
			})
		},
	}
	cmd.AddCommand(newVabCommand(env), newAppointmentCommand(env), newFamilyRemoveCommand(env))
	return cmd
}

func newVabCommand(env Env) *cobra.Command {
	var child, from, to, notes string
	var remind []int

	cmd := &cobra.Command{
		Use:     "vab",
		Short:   "Record days at home with a sick child",
		Example: `  fakturavakt family vab --child Elsa --from 2025-03-03 --to 2025-03-05`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				loc := a.Config.Location()
				start, err := parseDate(from, loc)
				if err != nil {
					return err
				}
				end := start
				if to != "" {
					if end, err = parseDate(to, loc); err != nil {
						return err
					}
				}

				entry := a.Family.AddVabEntry(ctx, models.VabEntryInput{
					ChildName:       child,
					StartDate:       start,
					EndDate:         end,
					Notes:           notes,
					ReminderOffsets: remind,
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d VAB days for %s\nid: %s\n", entry.Days(), entry.ChildName, entry.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&child, "child", "", "child's name")
	f.StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&to, "to", "", "last day, YYYY-MM-DD (default same day)")
	f.StringVar(&notes, "notes", "", "free text notes")
	f.IntSliceVar(&remind, "remind", nil, "reminder offsets in days after the last day")
	_ = cmd.MarkFlagRequired("child")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newAppointmentCommand(env Env) *cobra.Command {
	var title, date, person, location, notes string
	var remind []int

	cmd := &cobra.Command{
		Use:     "appointment",
		Aliases: []string{"appt"},
		Short:   "Book a medical appointment",
		Example: `  fakturavakt family appointment --title "BVC check" --date "2025-04-02 10:30" --person Elsa`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				at, err := parseDateTime(date, a.Config.Location())
				if err != nil {
					return err
				}
				appt := a.Family.AddAppointment(ctx, models.MedicalAppointmentInput{
					Title:           title,
					PersonName:      person,
					Date:            at,
					Location:        location,
					Notes:           notes,
					ReminderOffsets: remind,
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Booked %s on %s\nid: %s\n", appt.Title, appt.Date.Format("2006-01-02 15:04"), appt.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "what the appointment is for")
	f.StringVar(&date, "date", "", "YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"")
	f.StringVar(&person, "person", "", "who the appointment is for")
	f.StringVar(&location, "location", "", "clinic or address")
	f.StringVar(&notes, "notes", "", "free text notes")
	f.IntSliceVar(&remind, "remind", nil, "reminder offsets in days before the appointment")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newFamilyRemoveCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a VAB entry or an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, env, func(ctx context.Context, a *app.App) error {
				id := strings.TrimSpace(args[0])
				if a.Family.RemoveVabEntry(ctx, id) || a.Family.RemoveAppointment(ctx, id) {
					fmt.Fprintln(cmd.OutOrStdout(), "Removed")
					return nil
				}
				return fmt.Errorf("no VAB entry or appointment with id %q", id)
			})
		},
	}
}

func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, loc); err == nil {
		return t, nil
	}
	return parseDate(raw, loc)
}
