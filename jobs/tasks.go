package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskRemindersRun creates and dispatches tenant reminders.
	TaskRemindersRun = "reminders:run"
	// TaskInvoicesGenerateMonthly bills every active tenant for a month.
	TaskInvoicesGenerateMonthly = "invoices:generate_monthly"
	// TaskInvoicesMarkOverdue sweeps unpaid invoices past their due date.
	TaskInvoicesMarkOverdue = "invoices:mark_overdue"
)

// RemindersRunPayload mirrors `reminders send --create --days-before --lease-days`.
type RemindersRunPayload struct {
	Create        bool `json:"create"`
	DaysBeforeDue int  `json:"days_before_due,omitempty"`
	LeaseDays     int  `json:"lease_days,omitempty"`
}

// GenerateMonthlyPayload selects the billing month as YYYY-MM. Empty means
// the month the task runs in.
type GenerateMonthlyPayload struct {
	Month string `json:"month,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(msg notify.Message) (*asynq.Task, error) {
	return newTask(TaskTypeSendEmail, msg, asynq.MaxRetry(5))
}

// NewRemindersRunTask constructs the reminder run task.
func NewRemindersRunTask(payload RemindersRunPayload) (*asynq.Task, error) {
	return newTask(TaskRemindersRun, payload)
}

// NewGenerateMonthlyTask constructs the monthly invoice task.
func NewGenerateMonthlyTask(month string) (*asynq.Task, error) {
	return newTask(TaskInvoicesGenerateMonthly, GenerateMonthlyPayload{Month: month})
}

// NewMarkOverdueTask constructs the overdue sweep task.
func NewMarkOverdueTask() *asynq.Task {
	return asynq.NewTask(TaskInvoicesMarkOverdue, nil)
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, opts...), nil
}
