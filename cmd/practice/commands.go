package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/practice-local/internal/app"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/worker"
)

const dateLayout = "Mon 02 Jan 2006 15:04"

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", a.Version)
				return err
			})
		},
	}
	rootCmd.AddCommand(migrateCmd)

	var archived bool
	var search string
	patientsCmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients with their last and next appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				store := a.Stores.Patients
				if err := store.Fetch(ctx, archived); err != nil {
					return err
				}
				return printPatients(cmd.OutOrStdout(), store.Search(search))
			})
		},
	}
	patientsCmd.Flags().BoolVarP(&archived, "archived", "a", false, "Include archived patients")
	patientsCmd.Flags().StringVarP(&search, "search", "s", "", "Filter by name, email, phone or tag")
	rootCmd.AddCommand(patientsCmd)

	var follow bool
	todayCmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				store := a.Stores.Appointments
				if err := store.Fetch(ctx); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if err := printAppointments(out, store.Today(), time.Local); err != nil {
					return err
				}
				if !follow {
					return nil
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				w := worker.NewRefreshWorker(store, a.Stores.Patients, a.Config.Refresh.Interval, a.Log)
				w.OnTick(func() {
					fmt.Fprintf(out, "\n%s\n", time.Now().Format(dateLayout))
					_ = printAppointments(out, store.Today(), time.Local)
				})
				w.Start(ctx)
				return nil
			})
		},
	}
	todayCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep refreshing until interrupted")
	rootCmd.AddCommand(todayCmd)

	var markSent bool
	remindersCmd := &cobra.Command{
		Use:   "reminders",
		Short: "List appointments that still need a reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				store := a.Stores.Appointments
				if err := store.Fetch(ctx); err != nil {
					return err
				}
				due := store.NeedingReminder()
				if err := printAppointments(cmd.OutOrStdout(), due, time.Local); err != nil {
					return err
				}
				if !markSent {
					return nil
				}
				for _, appt := range due {
					if _, err := store.MarkReminderSent(ctx, appt.ID); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "marked %d reminders sent\n", len(due))
				return err
			})
		},
	}
	remindersCmd.Flags().BoolVar(&markSent, "mark-sent", false, "Record the listed reminders as sent")
	rootCmd.AddCommand(remindersCmd)

	var personal bool
	notesCmd := &cobra.Command{
		Use:   "notes [PATIENT_ID]",
		Short: "List a patient's notes, or personal notes with --personal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !personal && len(args) == 0 {
				return fmt.Errorf("PATIENT_ID or --personal required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				store := a.Stores.Notes
				if personal {
					if err := store.FetchPersonal(ctx); err != nil {
						return err
					}
				} else {
					id, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil {
						return fmt.Errorf("invalid patient id %q", args[0])
					}
					if err := store.FetchForPatient(ctx, id); err != nil {
						return err
					}
				}
				return printNotes(cmd.OutOrStdout(), store.Notes())
			})
		},
	}
	notesCmd.Flags().BoolVarP(&personal, "personal", "p", false, "List notes not attached to a patient")
	rootCmd.AddCommand(notesCmd)
}

func printPatients(w io.Writer, patients []model.PatientWithAppointments) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tAPPTS\tLAST\tNEXT")
	for _, p := range patients {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name(), p.Status, p.AppointmentCount, optionalDate(p.LastAppointment), optionalDate(p.NextAppointment))
	}
	return tw.Flush()
}

func printAppointments(w io.Writer, appointments []model.Appointment, loc *time.Location) error {
	if len(appointments) == 0 {
		_, err := fmt.Fprintln(w, "no appointments")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tWHEN\tMIN\tSTATUS\tREMINDER")
	for _, a := range appointments {
		reminder := "-"
		if a.ReminderSent {
			reminder = "sent"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\t%s\n",
			a.ID, a.PatientID, a.Date.In(loc).Format(dateLayout), a.Duration, a.Status, reminder)
	}
	return tw.Flush()
}

func printNotes(w io.Writer, notes []model.Note) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPINNED\tCREATED\tTITLE")
	for _, n := range notes {
		pinned := ""
		if n.Pinned {
			pinned = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", n.ID, n.Type, pinned, n.CreatedAt.Local().Format(dateLayout), n.Title)
	}
	return tw.Flush()
}

func optionalDate(t *model.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(dateLayout)
}
