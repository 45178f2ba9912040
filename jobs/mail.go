package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rent/internal/jobs"
	"github.com/odyssey-erp/odyssey-rent/internal/notify"
)

// Enqueuer is the subset of asynq.Client used to queue mail.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MailQueue implements notify.Mailer by queueing a mail:send task, so a
// reminder counts as sent once its message is durably queued.
type MailQueue struct {
	client Enqueuer
}

// NewMailQueue wraps an asynq client.
func NewMailQueue(client Enqueuer) *MailQueue {
	return &MailQueue{client: client}
}

// Send queues msg.
func (q *MailQueue) Send(ctx context.Context, msg notify.Message) error {
	task, err := NewSendEmailTask(msg)
	if err != nil {
		return fmt.Errorf("jobs: build mail task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue mail: %w", err)
	}
	return nil
}

// MailJob delivers queued mail through a concrete sender.
type MailJob struct {
	sender  notify.Mailer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewMailJob builds the mail:send handler.
func NewMailJob(sender notify.Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailJob{sender: sender, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	var msg notify.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("jobs: decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: %w", notify.ErrNoRecipient, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.sender.Send(ctx, msg); err != nil {
		j.logger.Error("send email", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.Any("error", err))
		if errors.Is(err, notify.ErrSMTPNotConfigured) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
