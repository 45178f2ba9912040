// Package cli implements the rentctl operational commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rent/internal/reminders"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

// ReminderService is what the reminder commands drive.
type ReminderService interface {
	jobs.ReminderRunner
	SeedDefaultTemplates(ctx context.Context) ([]reminders.Template, error)
}

// JobQueue is what the jobs commands drive.
type JobQueue interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Runtime holds the collaborators commands run against.
type Runtime struct {
	Reminders ReminderService
	Invoices  jobs.InvoiceRunner
	Locker    jobs.Locker
	Jobs      JobQueue
	Migrate   func() (uint, error)
	Defaults  jobs.RemindersRunPayload
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Opener builds a Runtime on first use, so `--help` needs no database.
// The returned func releases its resources.
type Opener func(ctx context.Context) (*Runtime, func(), error)

// ExitError carries a process exit status other than 1.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// NewRootCommand assembles the command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Operate rent invoicing, reminders and background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRemindersCommand(open),
		newInvoicesCommand(open),
		newSeedTemplatesCommand(open),
		newDBCommand(open),
		newJobsCommand(open),
	)
	return root
}

// withRuntime opens the runtime around fn.
func withRuntime(cmd *cobra.Command, open Opener, fn func(*Runtime) error) error {
	rt, closeFn, err := open(cmd.Context())
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Clock == nil {
		rt.Clock = time.Now
	}
	return fn(rt)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}

func eprintf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
