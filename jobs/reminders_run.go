package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/reminders"
)

const remindersLockTTL = 30 * time.Minute

// ErrRunInProgress reports that another reminder run holds the lock.
var ErrRunInProgress = errors.New("jobs: reminder run already in progress")

// ReminderRunner performs one create-and-dispatch cycle.
type ReminderRunner interface {
	RunDaily(ctx context.Context, opts reminders.RunOptions) (reminders.RunSummary, error)
}

// Locker grants cross-process mutual exclusion.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// RemindersJob runs the daily reminder cycle. Two overlapping runs would race
// on the same reminders, so a run that cannot take the lock is skipped.
type RemindersJob struct {
	runner   ReminderRunner
	locker   Locker
	defaults RemindersRunPayload
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewRemindersJob builds the reminders:run handler. defaults fills fields the
// task payload leaves at zero. A nil locker disables overlap protection.
func NewRemindersJob(runner ReminderRunner, locker Locker, defaults RemindersRunPayload, logger *slog.Logger, metrics *jobmetrics.Metrics) *RemindersJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemindersJob{runner: runner, locker: locker, defaults: defaults, logger: logger, metrics: metrics}
}

// Handle executes TaskRemindersRun.
func (j *RemindersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.runner == nil {
		return errors.New("reminders run: handler not configured")
	}
	var payload RemindersRunPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("reminders run: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	if errors.Is(err, ErrRunInProgress) {
		j.logger.Info("reminder run already in progress, skipping")
		return nil
	}
	return err
}

// Run executes one reminder cycle. Per-reminder delivery failures are
// reported in the summary and do not fail the run.
func (j *RemindersJob) Run(ctx context.Context, payload RemindersRunPayload) (summary reminders.RunSummary, err error) {
	if payload.DaysBeforeDue <= 0 {
		payload.DaysBeforeDue = j.defaults.DaysBeforeDue
	}
	if payload.LeaseDays <= 0 {
		payload.LeaseDays = j.defaults.LeaseDays
	}
	logger := j.logger.With(
		slog.Bool("create", payload.Create),
		slog.Int("days_before_due", payload.DaysBeforeDue),
		slog.Int("lease_days", payload.LeaseDays),
	)

	if j.locker != nil {
		release, ok, lockErr := j.locker.TryLock(ctx, TaskRemindersRun, remindersLockTTL)
		if lockErr != nil {
			return summary, lockErr
		}
		if !ok {
			return summary, ErrRunInProgress
		}
		defer release()
	}

	tracker := j.metrics.Track(TaskRemindersRun)
	defer func() {
		err = tracker.End(err)
	}()

	summary, err = j.runner.RunDaily(ctx, reminders.RunOptions{
		Create:        payload.Create,
		DaysBeforeDue: payload.DaysBeforeDue,
		LeaseDays:     payload.LeaseDays,
	})
	if err != nil {
		logger.Error("reminder run failed", slog.Any("error", err))
		return summary, err
	}
	for _, createErr := range summary.CreateErrors {
		logger.Warn("reminder creation incomplete", slog.Any("error", createErr))
	}
	j.metrics.AddReminders(len(summary.Sent), len(summary.Failed))
	return summary, nil
}
