package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/notify"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rent/internal/reminders"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

// Stack holds the clients and domain services every binary shares.
type Stack struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Queue     *jobs.Client
	Locker    *cache.Locker
	Clock     money.Clock
	Tenants   *tenants.Repository
	Billing   *billing.Service
	Reminders *reminders.Service
	Audit     *shared.AuditLogger

	logger *slog.Logger
}

// RedisClientOpt returns the asynq connection options for cfg.
func (c *Config) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// BuildStack connects to Postgres and Redis and wires the services.
// Reminder mail is queued as mail:send tasks for the worker to deliver.
func BuildStack(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stack, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, TimeZone: cfg.AppTimezone})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}
	queue, err := jobs.NewClient(cfg.RedisClientOpt())
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("app: queue client: %w", err)
	}

	clock := money.ClockIn(loc)
	tenantRepo := tenants.NewRepository(pool)
	billingService := billing.NewService(billing.NewRepository(pool), tenantRepo, clock, logger)
	notifier := notify.NewEmailNotifier(jobs.NewMailQueue(queue), cfg.AppBaseURL)
	reminderService := reminders.NewService(reminders.NewRepository(pool), billingService, tenantRepo, notifier, clock, logger)

	return &Stack{
		Pool:      pool,
		Redis:     redisClient,
		Queue:     queue,
		Locker:    cache.NewLocker(redisClient, "rent:lock:"),
		Clock:     clock,
		Tenants:   tenantRepo,
		Billing:   billingService,
		Reminders: reminderService,
		Audit:     shared.NewAuditLogger(pool),
		logger:    logger,
	}, nil
}

// Close releases every connection in reverse order of creation.
func (s *Stack) Close() {
	if err := s.Queue.Close(); err != nil {
		s.logger.Warn("queue close", slog.Any("error", err))
	}
	if err := s.Redis.Close(); err != nil {
		s.logger.Warn("redis close", slog.Any("error", err))
	}
	s.Pool.Close()
}

// ReminderDefaults are the configured look-ahead windows.
func (c *Config) ReminderDefaults() jobs.RemindersRunPayload {
	return jobs.RemindersRunPayload{DaysBeforeDue: c.ReminderDaysBeforeDue, LeaseDays: c.ReminderLeaseDays}
}
