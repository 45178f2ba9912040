// Package notify delivers reminder notifications by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/reminders"
)

// ErrNoRecipient is returned when the user has no email address.
var ErrNoRecipient = errors.New("notify: user has no email address")

// Message is a rendered plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer accepts a message for delivery.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmailNotifier renders reminders as email.
type EmailNotifier struct {
	mailer  Mailer
	baseURL string
}

// NewEmailNotifier builds an EmailNotifier. baseURL prefixes invoice links.
func NewEmailNotifier(mailer Mailer, baseURL string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Notify implements reminders.Notifier.
func (n *EmailNotifier) Notify(ctx context.Context, note reminders.Notification) error {
	to := strings.TrimSpace(note.User.Email)
	if to == "" {
		return fmt.Errorf("%w (user %d)", ErrNoRecipient, note.User.ID)
	}
	return n.mailer.Send(ctx, Message{
		To:      to,
		Subject: note.Reminder.Subject,
		Body:    n.Render(note),
	})
}

// Render builds the email body for a reminder.
func (n *EmailNotifier) Render(note reminders.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", note.User.Name)
	b.WriteString(note.Reminder.Message)
	b.WriteString("\n")

	if inv := note.Invoice; inv != nil {
		fmt.Fprintf(&b, "\nInvoice Number: %s\n", inv.InvoiceNumber)
		fmt.Fprintf(&b, "Amount Due: %s\n", money.Naira(inv.Balance))
		fmt.Fprintf(&b, "Due Date: %s\n", money.FormatLong(inv.DueDate))
		fmt.Fprintf(&b, "\nView Invoice: %s/invoices/%d\n", n.baseURL, inv.ID)
	}

	b.WriteString("\nThank you for your attention to this matter.\n")
	return b.String()
}
