package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

const (
	DefaultDaysBeforeDue = 3
	DefaultLeaseDays     = 30
)

// Repository persists reminders and templates.
type Repository interface {
	// FindPendingForInvoice returns a pending reminder of typ for the invoice,
	// restricted to one reminder date when on is set.
	FindPendingForInvoice(ctx context.Context, invoiceID int64, typ Type, on *time.Time) (*Reminder, error)
	FindPendingForTenant(ctx context.Context, tenantID int64, typ Type) (*Reminder, error)
	Create(ctx context.Context, r Reminder) (*Reminder, error)
	// ListDue returns pending reminders dated on or before asOf.
	ListDue(ctx context.Context, asOf time.Time) ([]Reminder, error)
	// Claim moves a reminder from pending to dispatching and reports whether
	// this caller won it.
	Claim(ctx context.Context, id int64, at time.Time) (bool, error)
	// Release returns a dispatching reminder to pending.
	Release(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// FindActiveTemplate picks the active template of typ whose days_before
	// equals daysBefore, falling back to one without a window.
	FindActiveTemplate(ctx context.Context, typ Type, daysBefore *int) (*Template, error)
	UpsertTemplate(ctx context.Context, t Template) (*Template, error)
}

// InvoiceLedger is the billing surface reminders depend on.
type InvoiceLedger interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]billing.Invoice, error)
	ListPastDue(ctx context.Context, before time.Time) ([]billing.Invoice, error)
	MarkOverdue(ctx context.Context, inv *billing.Invoice) (bool, error)
}

// TenantDirectory resolves tenants with their user and unit context.
type TenantDirectory interface {
	Get(ctx context.Context, id int64) (*tenants.Tenant, error)
	ListExpiringLeases(ctx context.Context, from, to time.Time) ([]tenants.Tenant, error)
}

// Notification is what a Notifier delivers for one reminder.
type Notification struct {
	User     tenants.User
	Tenant   tenants.Tenant
	Reminder Reminder
	Invoice  *billing.Invoice
}

// Notifier delivers reminder notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Service creates reminders from invoice and lease state and dispatches them.
type Service struct {
	repo      Repository
	invoices  InvoiceLedger
	tenants   TenantDirectory
	notifier  Notifier
	templates *TemplateService
	logger    *slog.Logger
	now       money.Clock
}

// NewService builds Service instance.
func NewService(repo Repository, invoices InvoiceLedger, directory TenantDirectory, notifier Notifier, clock money.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:      repo,
		invoices:  invoices,
		tenants:   directory,
		notifier:  notifier,
		templates: NewTemplateService(clock),
		logger:    logger,
		now:       clock,
	}
}

// Templates exposes the template engine bound to the service clock.
func (s *Service) Templates() *TemplateService {
	return s.templates
}

// CreatePaymentDueReminder schedules a reminder daysBeforeDue days before the
// invoice is due. It returns nil when the invoice is settled or the reminder
// date has already passed, and the existing reminder when one is pending.
func (s *Service) CreatePaymentDueReminder(ctx context.Context, inv billing.Invoice, daysBeforeDue int) (*Reminder, error) {
	r, _, err := s.createPaymentDue(ctx, inv, daysBeforeDue)
	return r, err
}

func (s *Service) createPaymentDue(ctx context.Context, inv billing.Invoice, daysBeforeDue int) (*Reminder, bool, error) {
	if inv.IsPaid() || inv.Status == billing.InvoiceCancelled {
		return nil, false, nil
	}
	existing, err := s.repo.FindPendingForInvoice(ctx, inv.ID, TypePaymentDue, nil)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("reminders: find pending due reminder: %w", err)
	}

	reminderDate := money.AddDays(inv.DueDate, -daysBeforeDue)
	if money.Before(reminderDate, s.today()) {
		return nil, false, nil
	}

	tenant, err := s.tenants.Get(ctx, inv.TenantID)
	if err != nil {
		return nil, false, fmt.Errorf("reminders: load tenant %d: %w", inv.TenantID, err)
	}
	text, err := s.render(ctx, TypePaymentDue, &daysBeforeDue,
		func() map[string]string { return s.templates.PaymentTemplateData(inv, *tenant) },
		func() Rendered { return fallbackPaymentDue(inv, *tenant, daysBeforeDue) })
	if err != nil {
		return nil, false, err
	}
	return s.create(ctx, Reminder{
		TenantID:     tenant.ID,
		InvoiceID:    &inv.ID,
		Type:         TypePaymentDue,
		Subject:      text.Subject,
		Message:      text.Message,
		ReminderDate: reminderDate,
	})
}

// CreateOverdueReminder schedules a reminder for today on an unpaid invoice
// past its due date. At most one such reminder is pending per invoice per day.
func (s *Service) CreateOverdueReminder(ctx context.Context, inv billing.Invoice) (*Reminder, error) {
	r, _, err := s.createOverdue(ctx, inv)
	return r, err
}

func (s *Service) createOverdue(ctx context.Context, inv billing.Invoice) (*Reminder, bool, error) {
	today := s.today()
	if inv.IsPaid() || inv.Status == billing.InvoiceCancelled || !inv.IsOverdue(today) {
		return nil, false, nil
	}
	existing, err := s.repo.FindPendingForInvoice(ctx, inv.ID, TypePaymentOverdue, &today)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("reminders: find pending overdue reminder: %w", err)
	}

	tenant, err := s.tenants.Get(ctx, inv.TenantID)
	if err != nil {
		return nil, false, fmt.Errorf("reminders: load tenant %d: %w", inv.TenantID, err)
	}
	daysOverdue := max(0, money.DaysBetween(inv.DueDate, today))
	text, err := s.render(ctx, TypePaymentOverdue, nil,
		func() map[string]string { return s.templates.PaymentTemplateData(inv, *tenant) },
		func() Rendered { return fallbackOverdue(inv, *tenant, daysOverdue) })
	if err != nil {
		return nil, false, err
	}
	return s.create(ctx, Reminder{
		TenantID:     tenant.ID,
		InvoiceID:    &inv.ID,
		Type:         TypePaymentOverdue,
		Subject:      text.Subject,
		Message:      text.Message,
		ReminderDate: today,
	})
}

// CreateLeaseExpiryReminder schedules a reminder daysBeforeExpiry days before
// an active lease ends.
func (s *Service) CreateLeaseExpiryReminder(ctx context.Context, tenant tenants.Tenant, daysBeforeExpiry int) (*Reminder, error) {
	r, _, err := s.createLeaseExpiry(ctx, tenant, daysBeforeExpiry)
	return r, err
}

func (s *Service) createLeaseExpiry(ctx context.Context, tenant tenants.Tenant, daysBeforeExpiry int) (*Reminder, bool, error) {
	if tenant.LeaseEndDate == nil || !tenant.IsActive() {
		return nil, false, nil
	}
	reminderDate := money.AddDays(*tenant.LeaseEndDate, -daysBeforeExpiry)
	if money.Before(reminderDate, s.today()) {
		return nil, false, nil
	}
	existing, err := s.repo.FindPendingForTenant(ctx, tenant.ID, TypeLeaseExpiry)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("reminders: find pending lease reminder: %w", err)
	}

	text, err := s.render(ctx, TypeLeaseExpiry, &daysBeforeExpiry,
		func() map[string]string { return s.templates.LeaseTemplateData(tenant) },
		func() Rendered { return fallbackLeaseExpiry(tenant, daysBeforeExpiry) })
	if err != nil {
		return nil, false, err
	}
	return s.create(ctx, Reminder{
		TenantID:     tenant.ID,
		Type:         TypeLeaseExpiry,
		Subject:      text.Subject,
		Message:      text.Message,
		ReminderDate: reminderDate,
	})
}

// CreateRemindersForDueInvoices creates payment due reminders for invoices
// falling due within the next daysBeforeDue days and returns how many were
// newly created.
func (s *Service) CreateRemindersForDueInvoices(ctx context.Context, daysBeforeDue int) (int, error) {
	today := s.today()
	invoices, err := s.invoices.ListDueBetween(ctx, today, money.AddDays(today, daysBeforeDue))
	if err != nil {
		return 0, fmt.Errorf("reminders: list due invoices: %w", err)
	}
	var (
		created int
		errs    []error
	)
	for _, inv := range invoices {
		_, isNew, err := s.createPaymentDue(ctx, inv, daysBeforeDue)
		if err != nil {
			s.logger.Error("create due reminder", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if isNew {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// CreateRemindersForOverdueInvoices flags past-due invoices as overdue and
// creates today's overdue reminder for each.
func (s *Service) CreateRemindersForOverdueInvoices(ctx context.Context) (int, error) {
	invoices, err := s.invoices.ListPastDue(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("reminders: list past due invoices: %w", err)
	}
	var (
		created int
		errs    []error
	)
	for i := range invoices {
		inv := &invoices[i]
		if _, err := s.invoices.MarkOverdue(ctx, inv); err != nil {
			s.logger.Error("mark invoice overdue", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		_, isNew, err := s.createOverdue(ctx, *inv)
		if err != nil {
			s.logger.Error("create overdue reminder", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if isNew {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// CreateRemindersForExpiringLeases creates lease expiry reminders for active
// leases ending within the next daysBeforeExpiry days.
func (s *Service) CreateRemindersForExpiringLeases(ctx context.Context, daysBeforeExpiry int) (int, error) {
	today := s.today()
	expiring, err := s.tenants.ListExpiringLeases(ctx, today, money.AddDays(today, daysBeforeExpiry))
	if err != nil {
		return 0, fmt.Errorf("reminders: list expiring leases: %w", err)
	}
	var (
		created int
		errs    []error
	)
	for _, tenant := range expiring {
		_, isNew, err := s.createLeaseExpiry(ctx, tenant, daysBeforeExpiry)
		if err != nil {
			s.logger.Error("create lease reminder", slog.Int64("tenant_id", tenant.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if isNew {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// SendPendingReminders dispatches every pending reminder dated today or
// earlier. Failures are collected and do not stop the batch.
func (s *Service) SendPendingReminders(ctx context.Context) (DispatchResult, error) {
	due, err := s.repo.ListDue(ctx, s.today())
	if err != nil {
		return DispatchResult{}, fmt.Errorf("reminders: list due reminders: %w", err)
	}
	var result DispatchResult
	for _, r := range due {
		err := s.SendReminder(ctx, r)
		switch {
		case err == nil:
			result.Sent = append(result.Sent, r)
		case errors.Is(err, ErrNotPending):
			s.logger.Info("reminder claimed elsewhere", slog.Int64("reminder_id", r.ID))
		default:
			s.logger.Error("Failed to send reminder", slog.Int64("reminder_id", r.ID), slog.Any("error", err))
			result.Failed = append(result.Failed, FailedReminder{Reminder: r, Err: err})
		}
	}
	return result, nil
}

// SendReminder delivers one reminder and marks it sent. The reminder is
// claimed before delivery so a concurrent dispatcher cannot send it twice;
// a failed delivery releases the claim.
func (s *Service) SendReminder(ctx context.Context, r Reminder) error {
	tenant, err := s.tenants.Get(ctx, r.TenantID)
	if err != nil {
		return fmt.Errorf("reminders: load tenant for reminder %d: %w", r.ID, err)
	}
	if tenant.User == nil {
		return fmt.Errorf("%w for reminder %d", ErrTenantUserMissing, r.ID)
	}
	if r.Channel == ChannelSMS {
		return fmt.Errorf("%w for reminder %d", ErrSMSUnsupported, r.ID)
	}

	var inv *billing.Invoice
	if r.InvoiceID != nil {
		inv, err = s.invoices.GetInvoice(ctx, *r.InvoiceID)
		if err != nil {
			return fmt.Errorf("reminders: load invoice for reminder %d: %w", r.ID, err)
		}
	}

	claimed, err := s.repo.Claim(ctx, r.ID, s.now())
	if err != nil {
		return fmt.Errorf("reminders: claim reminder %d: %w", r.ID, err)
	}
	if !claimed {
		return ErrNotPending
	}

	r.Status = StatusDispatching
	if err := s.notifier.Notify(ctx, Notification{User: *tenant.User, Tenant: *tenant, Reminder: r, Invoice: inv}); err != nil {
		if relErr := s.repo.Release(ctx, r.ID); relErr != nil {
			s.logger.Error("release reminder claim", slog.Int64("reminder_id", r.ID), slog.Any("error", relErr))
		}
		return fmt.Errorf("reminders: notify reminder %d: %w", r.ID, err)
	}
	if r.Channel == ChannelBoth {
		s.logger.Warn("sms delivery not available, reminder sent by email only", slog.Int64("reminder_id", r.ID))
	}

	if err := s.repo.MarkSent(ctx, r.ID, s.now()); err != nil {
		// Delivered but unconfirmed: the reminder stays dispatching and is not resent.
		return fmt.Errorf("reminders: mark reminder %d sent: %w", r.ID, err)
	}
	return nil
}

// RunDaily creates reminders (when opts.Create is set) and sends everything due.
func (s *Service) RunDaily(ctx context.Context, opts RunOptions) (RunSummary, error) {
	if opts.DaysBeforeDue <= 0 {
		opts.DaysBeforeDue = DefaultDaysBeforeDue
	}
	if opts.LeaseDays <= 0 {
		opts.LeaseDays = DefaultLeaseDays
	}
	var summary RunSummary
	if opts.Create {
		var err error
		if summary.DueCreated, err = s.CreateRemindersForDueInvoices(ctx, opts.DaysBeforeDue); err != nil {
			summary.CreateErrors = append(summary.CreateErrors, err)
		}
		if summary.OverdueCreated, err = s.CreateRemindersForOverdueInvoices(ctx); err != nil {
			summary.CreateErrors = append(summary.CreateErrors, err)
		}
		if summary.LeaseCreated, err = s.CreateRemindersForExpiringLeases(ctx, opts.LeaseDays); err != nil {
			summary.CreateErrors = append(summary.CreateErrors, err)
		}
	}
	result, err := s.SendPendingReminders(ctx)
	if err != nil {
		return summary, err
	}
	summary.DispatchResult = result
	s.logger.Info("reminder run finished",
		slog.Int("due_created", summary.DueCreated),
		slog.Int("overdue_created", summary.OverdueCreated),
		slog.Int("lease_created", summary.LeaseCreated),
		slog.Int("sent", len(summary.Sent)),
		slog.Int("failed", len(summary.Failed)))
	return summary, nil
}

// SeedDefaultTemplates stores the stock templates, keeping staff edits to
// templates that already exist.
func (s *Service) SeedDefaultTemplates(ctx context.Context) ([]Template, error) {
	var out []Template
	for _, tpl := range DefaultTemplates() {
		saved, err := s.repo.UpsertTemplate(ctx, tpl)
		if err != nil {
			return out, fmt.Errorf("reminders: seed template %q: %w", tpl.Name, err)
		}
		out = append(out, *saved)
	}
	return out, nil
}

func (s *Service) render(ctx context.Context, typ Type, daysBefore *int, data func() map[string]string, fallback func() Rendered) (Rendered, error) {
	tpl, err := s.repo.FindActiveTemplate(ctx, typ, daysBefore)
	if errors.Is(err, ErrTemplateNotFound) {
		return fallback(), nil
	}
	if err != nil {
		return Rendered{}, fmt.Errorf("reminders: find template for %s: %w", typ, err)
	}
	return s.templates.Render(*tpl, data()), nil
}

func (s *Service) create(ctx context.Context, r Reminder) (*Reminder, bool, error) {
	r.Status = StatusPending
	r.Channel = ChannelEmail
	saved, err := s.repo.Create(ctx, r)
	if err != nil {
		return nil, false, fmt.Errorf("reminders: create %s reminder: %w", r.Type, err)
	}
	s.logger.Info("reminder created",
		slog.Int64("reminder_id", saved.ID),
		slog.String("type", string(saved.Type)),
		slog.Int64("tenant_id", saved.TenantID),
		slog.String("reminder_date", saved.ReminderDate.Format(time.DateOnly)))
	return saved, true, nil
}

func (s *Service) today() time.Time {
	return money.Today(s.now)
}
