package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-rent/cmd/rentctl/cli"
	"github.com/odyssey-erp/odyssey-rent/internal/app"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping cli startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(openRuntime)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "rentctl:", err)
		stop()
		os.Exit(cli.ExitCode(err))
	}
}

func openRuntime(ctx context.Context) (*cli.Runtime, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	stack, err := app.BuildStack(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	queue := cli.NewJobsCLI(cfg.RedisClientOpt(), cfg.ReminderDefaults())

	rt := &cli.Runtime{
		Reminders: stack.Reminders,
		Invoices:  stack.Billing,
		Locker:    stack.Locker,
		Jobs:      queue,
		Migrate: func() (uint, error) {
			m, err := db.NewMigrator(cfg.PGDSN, logger)
			if err != nil {
				return 0, err
			}
			defer func() {
				if err := m.Close(); err != nil {
					logger.Warn("migrator close", slog.Any("error", err))
				}
			}()
			return m.Up()
		},
		Defaults: cfg.ReminderDefaults(),
		Clock:    stack.Clock,
		Logger:   logger,
	}
	return rt, func() {
		if err := queue.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		stack.Close()
	}, nil
}
