package reminders

import (
	"time"
)

// Type classifies what a reminder is about.
type Type string

const (
	TypePaymentDue     Type = "payment_due"
	TypePaymentOverdue Type = "payment_overdue"
	TypeLeaseExpiry    Type = "lease_expiry"
	TypeCustom         Type = "custom"
)

// Status tracks dispatch progress. A reminder is claimed (dispatching)
// before the notifier runs and confirmed (sent) afterwards.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDispatching Status = "dispatching"
	StatusSent        Status = "sent"
	StatusCancelled   Status = "cancelled"
)

// Channel selects the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

// Reminder is a rendered message scheduled for a tenant.
type Reminder struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenant_id"`
	InvoiceID    *int64     `json:"invoice_id,omitempty"`
	Type         Type       `json:"type"`
	Subject      string     `json:"subject"`
	Message      string     `json:"message"`
	ReminderDate time.Time  `json:"reminder_date"`
	Status       Status     `json:"status"`
	Channel      Channel    `json:"channel"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Template is a staff-managed subject/message pair with {{var}} placeholders.
// A nil DaysBefore matches any reminder window.
type Template struct {
	ID            int64
	Name          string
	Type          Type
	Subject       string
	Message       string
	IsActive      bool
	DaysBefore    *int
	VariablesHelp map[string]string
}

// Rendered is a template after substitution.
type Rendered struct {
	Subject string
	Message string
}

// FailedReminder pairs a reminder with the reason it could not be sent.
type FailedReminder struct {
	Reminder Reminder
	Err      error
}

// DispatchResult summarises a send run.
type DispatchResult struct {
	Sent   []Reminder
	Failed []FailedReminder
}

// RunOptions configures the daily reminder run.
type RunOptions struct {
	Create        bool
	DaysBeforeDue int
	LeaseDays     int
}

// RunSummary reports what the daily run did.
type RunSummary struct {
	DueCreated     int
	OverdueCreated int
	LeaseCreated   int
	CreateErrors   []error
	DispatchResult
}
