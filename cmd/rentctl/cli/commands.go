package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

// exitRemindersFailed is returned when some reminders could not be delivered.
const exitRemindersFailed = 2

func newRemindersCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Payment and lease reminders",
	}

	var payload jobs.RemindersRunPayload
	send := &cobra.Command{
		Use:   "send",
		Short: "Send pending payment and lease reminders to tenants",
		Example: `  # Create today's reminders, then send everything due
  rentctl reminders send --create

  # Look further ahead
  rentctl reminders send --create --days-before 5 --lease-days 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				return runReminders(cmd, rt, payload)
			})
		},
	}
	send.Flags().BoolVar(&payload.Create, "create", false, "Create new reminders before sending")
	send.Flags().IntVar(&payload.DaysBeforeDue, "days-before", 0, "Days before due date to create payment reminders (default from REMINDER_DAYS_BEFORE_DUE)")
	send.Flags().IntVar(&payload.LeaseDays, "lease-days", 0, "Days before lease expiry to create reminders (default from REMINDER_LEASE_DAYS)")
	cmd.AddCommand(send)
	return cmd
}

func runReminders(cmd *cobra.Command, rt *Runtime, payload jobs.RemindersRunPayload) error {
	printf(cmd, "Starting reminder process...")
	job := jobs.NewRemindersJob(rt.Reminders, rt.Locker, rt.Defaults, rt.Logger, nil)
	summary, err := job.Run(cmd.Context(), payload)
	if errors.Is(err, jobs.ErrRunInProgress) {
		eprintf(cmd, "Another reminder run is in progress; nothing done.")
		return &ExitError{Code: exitRemindersFailed, Err: err}
	}
	if err != nil {
		return err
	}

	if payload.Create {
		printf(cmd, "Created %d payment due reminders.", summary.DueCreated)
		printf(cmd, "Created %d overdue payment reminders.", summary.OverdueCreated)
		printf(cmd, "Created %d lease expiry reminders.", summary.LeaseCreated)
		for _, createErr := range summary.CreateErrors {
			eprintf(cmd, "  ! %v", createErr)
		}
	}
	printf(cmd, "Sent %d reminders successfully.", len(summary.Sent))
	if n := len(summary.Failed); n > 0 {
		eprintf(cmd, "Failed to send %d reminders.", n)
		for _, failure := range summary.Failed {
			eprintf(cmd, "  - Reminder #%d: %v", failure.Reminder.ID, failure.Err)
		}
	}
	printf(cmd, "Reminder process completed.")

	if len(summary.Failed) > 0 || len(summary.CreateErrors) > 0 {
		return &ExitError{
			Code: exitRemindersFailed,
			Err:  fmt.Errorf("%d reminders failed, %d creation errors", len(summary.Failed), len(summary.CreateErrors)),
		}
	}
	return nil
}

func newInvoicesCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Monthly rent invoices",
	}

	var month string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate the monthly rent invoice for every active tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				period, err := money.ParseMonth(month, rt.Clock)
				if err != nil {
					return fmt.Errorf("invalid --month %q (expected YYYY-MM)", month)
				}
				run, err := rt.Invoices.GenerateMonthlyInvoicesForAllTenants(cmd.Context(), period)
				if err != nil {
					return err
				}
				printf(cmd, "Invoices for %s: %d generated, %d skipped.", period.Format("2006-01"), len(run.Generated), len(run.Skipped))
				for _, inv := range run.Generated {
					printf(cmd, "  %s  tenant %d  %s", inv.InvoiceNumber, inv.TenantID, money.Naira(inv.Amount))
				}
				for _, skipped := range run.Skipped {
					eprintf(cmd, "  - Tenant #%d: %v", skipped.Tenant.ID, skipped.Err)
				}
				if len(run.Skipped) > 0 {
					return &ExitError{Code: exitRemindersFailed, Err: fmt.Errorf("%d tenants skipped", len(run.Skipped))}
				}
				return nil
			})
		},
	}
	generate.Flags().StringVar(&month, "month", "", "Billing month as YYYY-MM (default current month)")

	sweep := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark unpaid invoices past their due date as overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				updated, err := rt.Invoices.UpdateOverdueInvoices(cmd.Context())
				printf(cmd, "Marked %d invoices overdue.", updated)
				return err
			})
		},
	}
	cmd.AddCommand(generate, sweep)
	return cmd
}

func newSeedTemplatesCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-templates",
		Short: "Install the default reminder templates, keeping existing edits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				templates, err := rt.Reminders.SeedDefaultTemplates(cmd.Context())
				for _, tpl := range templates {
					printf(cmd, "  %s (%s)", tpl.Name, tpl.Type)
				}
				if err != nil {
					return err
				}
				printf(cmd, "Seeded %d templates.", len(templates))
				return nil
			})
		},
	}
}

func newDBCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Migrate == nil {
					return errors.New("migrations not configured")
				}
				version, err := rt.Migrate()
				if err != nil {
					return err
				}
				printf(cmd, "Schema at version %d.", version)
				return nil
			})
		},
	})
	return cmd
}

func newJobsCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a scheduled job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskRemindersRun, jobs.TaskInvoicesGenerateMonthly, jobs.TaskInvoicesMarkOverdue},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				info, err := rt.Jobs.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printf(cmd, "Enqueued %s as %s on queue %s.", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	})

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				s, err := rt.Jobs.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
				}
				printf(cmd, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
				return nil
			})
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.AddCommand(stats)
	return cmd
}
