package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

const (
	// dueAfterDays is the gap between invoice date and due date for monthly rent.
	dueAfterDays = 7

	maxNumberAttempts = 5
	maxTxAttempts     = 3
)

// Repository defines invoice and payment persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	FindInvoiceForPeriod(ctx context.Context, tenantID int64, year, month int) (*Invoice, error)
	// ListDueBetween returns unpaid, non-cancelled invoices due within [from, to].
	ListDueBetween(ctx context.Context, from, to time.Time) ([]Invoice, error)
	// ListPastDue returns unpaid, non-cancelled invoices due before the given day.
	ListPastDue(ctx context.Context, before time.Time) ([]Invoice, error)
	// UpdateInvoiceStatus moves an invoice to status `to` only when its current
	// status is one of `from`. It reports whether a row changed.
	UpdateInvoiceStatus(ctx context.Context, id int64, from []InvoiceStatus, to InvoiceStatus) (bool, error)
	// NextInvoiceSequence atomically allocates the next number for the day.
	NextInvoiceSequence(ctx context.Context, day time.Time) (int, error)
	CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
}

// TxRepository is the subset available inside a unit of work.
type TxRepository interface {
	// LockInvoice reads the invoice and holds its row until the unit of work ends.
	LockInvoice(ctx context.Context, id int64) (*Invoice, error)
	SaveInvoicePayment(ctx context.Context, inv Invoice) error
	// InsertPayment fails with ErrDuplicateReference when the transaction
	// reference is already recorded.
	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
}

// TenantLister provides the tenants billed each month.
type TenantLister interface {
	ListActive(ctx context.Context) ([]tenants.Tenant, error)
}

// Service handles invoice business logic.
type Service struct {
	repo    Repository
	tenants TenantLister
	logger  *slog.Logger
	now     money.Clock
}

// NewService builds Service instance.
func NewService(repo Repository, tenantLister TenantLister, clock money.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, tenants: tenantLister, logger: logger, now: clock}
}

// Today returns the service's current civil date.
func (s *Service) Today() time.Time {
	return money.Today(s.now)
}

// GetInvoice loads an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListDueBetween proxies the repository for reminder scans.
func (s *Service) ListDueBetween(ctx context.Context, from, to time.Time) ([]Invoice, error) {
	return s.repo.ListDueBetween(ctx, from, to)
}

// ListPastDue proxies the repository for overdue scans.
func (s *Service) ListPastDue(ctx context.Context, before time.Time) ([]Invoice, error) {
	return s.repo.ListPastDue(ctx, before)
}

// GenerateInvoiceNumber allocates INV-YYYYMMDD-NNNN for today.
func (s *Service) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	day := s.Today()
	seq, err := s.repo.NextInvoiceSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("billing: next invoice sequence: %w", err)
	}
	return FormatInvoiceNumber(day, seq), nil
}

// FormatInvoiceNumber renders the invoice number for a day and sequence.
func FormatInvoiceNumber(day time.Time, seq int) string {
	return fmt.Sprintf("INV-%s-%04d", day.Format("20060102"), seq)
}

// GenerateMonthlyInvoice returns the tenant's invoice for the month of `month`,
// creating a draft one when none exists.
func (s *Service) GenerateMonthlyInvoice(ctx context.Context, tenant tenants.Tenant, month time.Time) (*Invoice, error) {
	period := money.StartOfMonth(month)
	existing, err := s.repo.FindInvoiceForPeriod(ctx, tenant.ID, period.Year(), int(period.Month()))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, fmt.Errorf("billing: find invoice for period: %w", err)
	}

	label := period.Format(money.MonthLayout)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := s.GenerateInvoiceNumber(ctx)
		if err != nil {
			return nil, err
		}
		created, err := s.repo.CreateInvoice(ctx, Invoice{
			TenantID:      tenant.ID,
			InvoiceNumber: number,
			InvoiceDate:   period,
			DueDate:       money.AddDays(period, dueAfterDays),
			PeriodYear:    period.Year(),
			PeriodMonth:   int(period.Month()),
			Amount:        tenant.MonthlyRent,
			PaidAmount:    decimal.Zero,
			Balance:       tenant.MonthlyRent,
			Status:        InvoiceDraft,
			Description:   "Monthly rent for " + label,
			LineItems:     []LineItem{{Description: "Monthly Rent - " + label, Amount: tenant.MonthlyRent}},
		})
		switch {
		case err == nil:
			s.logger.Info("invoice generated",
				slog.Int64("tenant_id", tenant.ID),
				slog.String("invoice_number", created.InvoiceNumber),
				slog.String("period", label))
			return created, nil
		case errors.Is(err, ErrDuplicatePeriod):
			// Another run billed this tenant for the month first.
			return s.repo.FindInvoiceForPeriod(ctx, tenant.ID, period.Year(), int(period.Month()))
		case errors.Is(err, ErrDuplicateInvoiceNumber):
			s.logger.Warn("invoice number collision", slog.String("invoice_number", number))
			continue
		default:
			return nil, fmt.Errorf("billing: create invoice: %w", err)
		}
	}
	return nil, ErrNumberingExhausted
}

// GenerateMonthlyInvoicesForAllTenants bills every active tenant. A failure for
// one tenant is recorded and the batch continues.
func (s *Service) GenerateMonthlyInvoicesForAllTenants(ctx context.Context, month time.Time) (MonthlyRun, error) {
	active, err := s.tenants.ListActive(ctx)
	if err != nil {
		return MonthlyRun{}, fmt.Errorf("billing: list active tenants: %w", err)
	}
	var run MonthlyRun
	for _, tenant := range active {
		inv, err := s.GenerateMonthlyInvoice(ctx, tenant, month)
		if err != nil {
			s.logger.Error("monthly invoice failed", slog.Int64("tenant_id", tenant.ID), slog.Any("error", err))
			run.Skipped = append(run.Skipped, SkippedTenant{Tenant: tenant, Err: err})
			continue
		}
		run.Generated = append(run.Generated, *inv)
	}
	return run, nil
}

// MarkInvoiceAsSent moves a draft invoice to sent. Any other status is left alone.
func (s *Service) MarkInvoiceAsSent(ctx context.Context, id int64) (*Invoice, error) {
	if _, err := s.repo.UpdateInvoiceStatus(ctx, id, []InvoiceStatus{InvoiceDraft}, InvoiceSent); err != nil {
		return nil, fmt.Errorf("billing: mark sent: %w", err)
	}
	return s.repo.GetInvoice(ctx, id)
}

// MarkOverdue flips an unpaid invoice whose due date has passed to overdue.
// It is the single overdue transition used by the invoice sweep and the
// reminder scan. It reports whether the status changed.
func (s *Service) MarkOverdue(ctx context.Context, inv *Invoice) (bool, error) {
	if inv.IsPaid() || inv.Status == InvoiceOverdue || inv.Status == InvoiceCancelled {
		return false, nil
	}
	if !money.Before(inv.DueDate, s.Today()) {
		return false, nil
	}
	changed, err := s.repo.UpdateInvoiceStatus(ctx, inv.ID, []InvoiceStatus{InvoiceDraft, InvoiceSent}, InvoiceOverdue)
	if err != nil {
		return false, fmt.Errorf("billing: mark overdue %d: %w", inv.ID, err)
	}
	if changed {
		inv.Status = InvoiceOverdue
	}
	return changed, nil
}

// UpdateInvoiceStatus re-evaluates the overdue status of a single invoice.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.MarkOverdue(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateOverdueInvoices sweeps every unpaid invoice past its due date and
// returns how many changed status.
func (s *Service) UpdateOverdueInvoices(ctx context.Context) (int, error) {
	invoices, err := s.repo.ListPastDue(ctx, s.Today())
	if err != nil {
		return 0, fmt.Errorf("billing: list past due: %w", err)
	}
	var (
		updated int
		errs    []error
	)
	for i := range invoices {
		changed, err := s.MarkOverdue(ctx, &invoices[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			updated++
		}
	}
	return updated, errors.Join(errs...)
}

// RecordPayment applies amount to the invoice balance under a row lock.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*Invoice, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var updated Invoice
	err := s.retryTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		updated = applyPayment(*inv, amount, s.now())
		return tx.SaveInvoicePayment(ctx, updated)
	})
	if err != nil {
		return nil, fmt.Errorf("billing: record payment on invoice %d: %w", invoiceID, err)
	}
	return &updated, nil
}

// CreatePayment stores a payment and, for completed payments linked to an
// invoice, applies it to the balance atomically. A repeated transaction
// reference is reported as a duplicate, not an error.
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (*PaymentOutcome, error) {
	if !in.Amount.IsPositive() && in.Status == PaymentCompleted {
		return nil, ErrInvalidAmount
	}
	now := s.now()
	payment := Payment{
		TenantID:             in.TenantID,
		InvoiceID:            in.InvoiceID,
		Amount:               in.Amount,
		PaymentDate:          money.DateOf(now),
		PaymentMethod:        in.Method,
		Status:               in.Status,
		TransactionReference: strings.TrimSpace(in.TransactionReference),
		Notes:                in.Notes,
	}
	if payment.Status == "" {
		payment.Status = PaymentCompleted
	}
	if in.IssueReceipt {
		payment.ReceiptNumber = receiptNumber(now)
	}

	var outcome PaymentOutcome
	err := s.retryTx(ctx, func(ctx context.Context, tx TxRepository) error {
		outcome = PaymentOutcome{}
		saved, err := tx.InsertPayment(ctx, payment)
		if errors.Is(err, ErrDuplicateReference) {
			outcome.Duplicate = true
			return nil
		}
		if err != nil {
			return err
		}
		outcome.Payment = saved
		if saved.Status != PaymentCompleted || saved.InvoiceID == nil {
			return nil
		}
		inv, err := tx.LockInvoice(ctx, *saved.InvoiceID)
		if err != nil {
			return err
		}
		applied := applyPayment(*inv, saved.Amount, now)
		if err := tx.SaveInvoicePayment(ctx, applied); err != nil {
			return err
		}
		outcome.Invoice = &applied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billing: create payment: %w", err)
	}

	if outcome.Duplicate {
		existing, err := s.repo.GetPaymentByReference(ctx, payment.TransactionReference)
		if err != nil {
			return nil, fmt.Errorf("billing: load duplicate payment: %w", err)
		}
		outcome.Payment = existing
		s.logger.Info("payment already recorded", slog.String("transaction_reference", payment.TransactionReference))
		return &outcome, nil
	}

	attrs := []any{
		slog.Int64("payment_id", outcome.Payment.ID),
		slog.String("status", string(outcome.Payment.Status)),
		slog.String("amount", outcome.Payment.Amount.StringFixed(2)),
	}
	if outcome.Invoice != nil {
		attrs = append(attrs, slog.Int64("invoice_id", outcome.Invoice.ID), slog.String("invoice_status", string(outcome.Invoice.Status)))
	}
	s.logger.Info("payment recorded", attrs...)
	return &outcome, nil
}

// GetPaymentByReference looks up a payment by gateway transaction reference.
func (s *Service) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	return s.repo.GetPaymentByReference(ctx, reference)
}

// retryTx reruns fn when the unit of work lost a serialization race.
func (s *Service) retryTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}
		s.logger.Warn("retrying billing transaction", slog.Int("attempt", attempt+1))
	}
	return err
}

// applyPayment computes the invoice state after receiving amount at now.
func applyPayment(inv Invoice, amount decimal.Decimal, now time.Time) Invoice {
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.Balance = money.Balance(inv.Amount, inv.PaidAmount)
	today := money.DateOf(now)
	switch {
	case !inv.Balance.IsPositive():
		inv.Status = InvoicePaid
		inv.PaidAt = &today
	case money.Before(inv.DueDate, today):
		inv.Status = InvoiceOverdue
		inv.PaidAt = nil
	default:
		inv.Status = InvoiceSent
		inv.PaidAt = nil
	}
	return inv
}

func receiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RCP-%s-%s", now.Format("20060102"), suffix)
}
