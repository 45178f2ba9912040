package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/notify"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	stack, err := app.BuildStack(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer stack.Close()

	metrics := jobmetrics.NewMetrics(nil)
	sender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	mailJob := jobs.NewMailJob(sender, logger, metrics)
	remindersJob := jobs.NewRemindersJob(stack.Reminders, stack.Locker, cfg.ReminderDefaults(), logger, metrics)
	invoiceJobs := jobs.NewInvoiceJobs(stack.Billing, stack.Clock, logger, metrics)

	remindersTask, err := jobs.NewRemindersRunTask(jobs.RemindersRunPayload{Create: true})
	if err != nil {
		logger.Error("build reminders task", slog.Any("error", err))
		os.Exit(1)
	}
	monthlyTask, err := jobs.NewGenerateMonthlyTask("")
	if err != nil {
		logger.Error("build monthly invoice task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.RedisClientOpt(),
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskRemindersRun, Handler: remindersJob.Handle},
			{Type: jobs.TaskInvoicesGenerateMonthly, Handler: invoiceJobs.HandleGenerateMonthly},
			{Type: jobs.TaskInvoicesMarkOverdue, Handler: invoiceJobs.HandleMarkOverdue},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReminderCron, Task: remindersTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReminderAfternoonCron, Task: remindersTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.InvoiceCron, Task: monthlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.OverdueCron, Task: jobs.NewMarkOverdueTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
