package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
)

// InvoiceRunner covers the scheduled invoice operations.
type InvoiceRunner interface {
	GenerateMonthlyInvoicesForAllTenants(ctx context.Context, month time.Time) (billing.MonthlyRun, error)
	UpdateOverdueInvoices(ctx context.Context) (int, error)
}

// InvoiceJobs handles the monthly invoice run and the overdue sweep.
type InvoiceJobs struct {
	invoices InvoiceRunner
	clock    money.Clock
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewInvoiceJobs builds the invoice handlers.
func NewInvoiceJobs(invoices InvoiceRunner, clock money.Clock, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceJobs {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &InvoiceJobs{invoices: invoices, clock: clock, logger: logger, metrics: metrics}
}

// HandleGenerateMonthly executes TaskInvoicesGenerateMonthly. Re-running it for
// the same month is harmless: tenants already billed keep their invoice.
func (j *InvoiceJobs) HandleGenerateMonthly(ctx context.Context, t *asynq.Task) (err error) {
	var payload GenerateMonthlyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("generate monthly: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	month, err := money.ParseMonth(payload.Month, j.clock)
	if err != nil {
		return fmt.Errorf("generate monthly: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(TaskInvoicesGenerateMonthly)
	defer func() {
		err = tracker.End(err)
	}()

	run, err := j.invoices.GenerateMonthlyInvoicesForAllTenants(ctx, month)
	if err != nil {
		return err
	}
	j.metrics.AddInvoices(len(run.Generated), len(run.Skipped))
	j.logger.Info("monthly invoices generated",
		slog.String("month", month.Format("2006-01")),
		slog.Int("generated", len(run.Generated)),
		slog.Int("skipped", len(run.Skipped)))
	return nil
}

// HandleMarkOverdue executes TaskInvoicesMarkOverdue.
func (j *InvoiceJobs) HandleMarkOverdue(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskInvoicesMarkOverdue)
	defer func() {
		err = tracker.End(err)
	}()

	updated, err := j.invoices.UpdateOverdueInvoices(ctx)
	j.metrics.AddOverdue(updated)
	if err != nil {
		j.logger.Error("overdue sweep incomplete", slog.Int("updated", updated), slog.Any("error", err))
		return err
	}
	j.logger.Info("overdue sweep finished", slog.Int("updated", updated))
	return nil
}
