package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

type staticTenants []tenants.Tenant

func (s staticTenants) ListActive(context.Context) ([]tenants.Tenant, error) {
	var out []tenants.Tenant
	for _, t := range s {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var today = time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(repo *billingtest.Memory, ts ...tenants.Tenant) *billing.Service {
	return billing.NewService(repo, staticTenants(ts), fixedClock(today), nil)
}

func TestGenerateInvoiceNumberSequencesPerDay(t *testing.T) {
	svc := newService(billingtest.NewMemory())
	ctx := context.Background()

	first, err := svc.GenerateInvoiceNumber(ctx)
	require.NoError(t, err)
	second, err := svc.GenerateInvoiceNumber(ctx)
	require.NoError(t, err)

	require.Equal(t, "INV-20261015-0001", first)
	require.Equal(t, "INV-20261015-0002", second)
	require.Equal(t, "INV-20261016-0001", billing.FormatInvoiceNumber(date(2026, 10, 16), 1))
}

func TestGenerateInvoiceNumberConcurrentCallersNeverCollide(t *testing.T) {
	svc := newService(billingtest.NewMemory())
	const callers = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.GenerateInvoiceNumber(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			numbers = append(numbers, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(numbers)
	require.Len(t, numbers, callers)
	for i, n := range numbers {
		require.Equal(t, fmt.Sprintf("INV-20261015-%04d", i+1), n)
	}
}

func TestGenerateMonthlyInvoiceIsIdempotentPerPeriod(t *testing.T) {
	repo := billingtest.NewMemory()
	tenant := tenants.Tenant{ID: 7, MonthlyRent: dec("150000"), LeaseStatus: tenants.LeaseActive}
	svc := newService(repo, tenant)
	ctx := context.Background()

	first, err := svc.GenerateMonthlyInvoice(ctx, tenant, date(2026, 10, 20))
	require.NoError(t, err)
	again, err := svc.GenerateMonthlyInvoice(ctx, tenant, date(2026, 10, 3))
	require.NoError(t, err)

	require.Equal(t, first.ID, again.ID)
	require.Len(t, repo.Invoices(), 1)
	require.Equal(t, billing.InvoiceDraft, first.Status)
	require.Equal(t, date(2026, 10, 1), first.InvoiceDate)
	require.Equal(t, date(2026, 10, 8), first.DueDate)
	require.True(t, first.Balance.Equal(dec("150000")))
	require.True(t, first.PaidAmount.IsZero())
	require.Equal(t, "Monthly rent for October 2026", first.Description)
	require.Equal(t, []billing.LineItem{{Description: "Monthly Rent - October 2026", Amount: dec("150000")}}, first.LineItems)
}

func TestGenerateMonthlyInvoiceIgnoresEditedDescription(t *testing.T) {
	repo := billingtest.NewMemory()
	tenant := tenants.Tenant{ID: 7, MonthlyRent: dec("150000"), LeaseStatus: tenants.LeaseActive}
	svc := newService(repo, tenant)

	existing := repo.PutInvoice(billing.Invoice{
		TenantID: 7, InvoiceNumber: "INV-20261001-0001", PeriodYear: 2026, PeriodMonth: 10,
		Amount: dec("150000"), Balance: dec("150000"), Status: billing.InvoiceSent,
		Description: "Rent (adjusted by staff)",
	})

	got, err := svc.GenerateMonthlyInvoice(context.Background(), tenant, date(2026, 10, 1))
	require.NoError(t, err)
	require.Equal(t, existing.ID, got.ID)
	require.Len(t, repo.Invoices(), 1)
}

func TestGenerateMonthlyInvoiceRetriesTakenNumber(t *testing.T) {
	repo := billingtest.NewMemory()
	repo.PutInvoice(billing.Invoice{TenantID: 99, InvoiceNumber: "INV-20261015-0001", Status: billing.InvoicePaid})
	tenant := tenants.Tenant{ID: 7, MonthlyRent: dec("90000"), LeaseStatus: tenants.LeaseActive}
	svc := newService(repo, tenant)

	inv, err := svc.GenerateMonthlyInvoice(context.Background(), tenant, today)
	require.NoError(t, err)
	require.Equal(t, "INV-20261015-0002", inv.InvoiceNumber)
}

func TestGenerateMonthlyInvoicesForAllTenantsBillsActiveOnly(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo,
		tenants.Tenant{ID: 1, MonthlyRent: dec("100000"), LeaseStatus: tenants.LeaseActive},
		tenants.Tenant{ID: 2, MonthlyRent: dec("80000"), LeaseStatus: tenants.LeaseTerminated},
		tenants.Tenant{ID: 3, MonthlyRent: dec("120000"), LeaseStatus: tenants.LeaseActive},
	)

	run, err := svc.GenerateMonthlyInvoicesForAllTenants(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, run.Generated, 2)
	require.Empty(t, run.Skipped)

	rerun, err := svc.GenerateMonthlyInvoicesForAllTenants(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, rerun.Generated, 2)
	require.Len(t, repo.Invoices(), 2)
}

func TestMarkInvoiceAsSentOnlyFromDraft(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	draft := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceDraft, Amount: dec("10"), Balance: dec("10"), DueDate: date(2026, 10, 20)})
	paid := repo.PutInvoice(billing.Invoice{Status: billing.InvoicePaid, Amount: dec("10"), PaidAmount: dec("10"), DueDate: date(2026, 10, 20)})

	got, err := svc.MarkInvoiceAsSent(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, billing.InvoiceSent, got.Status)

	got, err = svc.MarkInvoiceAsSent(context.Background(), paid.ID)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, got.Status)
}

func TestUpdateOverdueInvoices(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	late := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceSent, Amount: dec("10"), Balance: dec("10"), DueDate: date(2026, 10, 14)})
	dueToday := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceSent, Amount: dec("10"), Balance: dec("10"), DueDate: date(2026, 10, 15)})
	cancelled := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceCancelled, Amount: dec("10"), Balance: dec("10"), DueDate: date(2026, 9, 1)})
	settled := repo.PutInvoice(billing.Invoice{Status: billing.InvoicePaid, Amount: dec("10"), PaidAmount: dec("10"), DueDate: date(2026, 9, 1)})

	updated, err := svc.UpdateOverdueInvoices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	status := func(id int64) billing.InvoiceStatus {
		inv, _ := repo.Invoice(id)
		return inv.Status
	}
	require.Equal(t, billing.InvoiceOverdue, status(late.ID))
	require.Equal(t, billing.InvoiceSent, status(dueToday.ID))
	require.Equal(t, billing.InvoiceCancelled, status(cancelled.ID))
	require.Equal(t, billing.InvoicePaid, status(settled.ID))

	again, err := svc.UpdateOverdueInvoices(context.Background())
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestRecordPaymentFullSettlement(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceSent, Amount: dec("100000"), PaidAmount: decimal.Zero, Balance: dec("100000"), DueDate: date(2026, 10, 20)})

	got, err := svc.RecordPayment(context.Background(), inv.ID, dec("100000"))
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
	require.Equal(t, billing.InvoicePaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Equal(t, date(2026, 10, 15), *got.PaidAt)
}

func TestRecordPaymentPartialAfterDueDateStaysOverdue(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceOverdue, Amount: dec("100000"), PaidAmount: dec("40000"), Balance: dec("60000"), DueDate: date(2026, 10, 14)})

	got, err := svc.RecordPayment(context.Background(), inv.ID, dec("30000"))
	require.NoError(t, err)
	require.True(t, got.PaidAmount.Equal(dec("70000")))
	require.True(t, got.Balance.Equal(dec("30000")))
	require.Equal(t, billing.InvoiceOverdue, got.Status)
	require.Nil(t, got.PaidAt)
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceSent, Amount: dec("100"), Balance: dec("100"), DueDate: date(2026, 10, 20)})

	_, err := svc.RecordPayment(context.Background(), inv.ID, decimal.Zero)
	require.ErrorIs(t, err, billing.ErrInvalidAmount)
	_, err = svc.RecordPayment(context.Background(), 404, dec("1"))
	require.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestConcurrentPaymentsDoNotLoseUpdates(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{Status: billing.InvoiceSent, Amount: dec("100000"), Balance: dec("100000"), DueDate: date(2026, 10, 20)})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(context.Background(), inv.ID, dec("2500"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, ok := repo.Invoice(inv.ID)
	require.True(t, ok)
	require.True(t, got.PaidAmount.Equal(dec("50000")), got.PaidAmount.String())
	require.True(t, got.Balance.Equal(dec("50000")))
}

func TestCreatePaymentSameReferenceAppliesOnce(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{TenantID: 3, Status: billing.InvoiceSent, Amount: dec("100000"), Balance: dec("100000"), DueDate: date(2026, 10, 20)})

	input := billing.PaymentInput{
		TenantID: 3, InvoiceID: &inv.ID, Amount: dec("100000"),
		Method: billing.MethodCard, Status: billing.PaymentCompleted, TransactionReference: "4455667",
	}
	first, err := svc.CreatePayment(context.Background(), input)
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	require.Equal(t, billing.InvoicePaid, first.Invoice.Status)

	second, err := svc.CreatePayment(context.Background(), input)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Payment.ID, second.Payment.ID)

	require.Len(t, repo.Payments(), 1)
	got, _ := repo.Invoice(inv.ID)
	require.True(t, got.PaidAmount.Equal(dec("100000")))
}

func TestCreatePaymentFailedStatusLeavesBalance(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	inv := repo.PutInvoice(billing.Invoice{TenantID: 3, Status: billing.InvoiceSent, Amount: dec("100000"), Balance: dec("100000"), DueDate: date(2026, 10, 20)})

	out, err := svc.CreatePayment(context.Background(), billing.PaymentInput{
		TenantID: 3, InvoiceID: &inv.ID, Amount: dec("100000"),
		Status: billing.PaymentFailed, TransactionReference: "998",
	})
	require.NoError(t, err)
	require.Nil(t, out.Invoice)
	require.Equal(t, billing.PaymentFailed, out.Payment.Status)

	got, _ := repo.Invoice(inv.ID)
	require.True(t, got.Balance.Equal(dec("100000")))
}

func TestCreatePaymentRollsBackOnInvoiceFailure(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)
	missing := int64(404)

	_, err := svc.CreatePayment(context.Background(), billing.PaymentInput{
		TenantID: 3, InvoiceID: &missing, Amount: dec("10"),
		Status: billing.PaymentCompleted, TransactionReference: "tx-1",
	})
	require.ErrorIs(t, err, billing.ErrInvoiceNotFound)
	require.Empty(t, repo.Payments())
}

func TestCreatePaymentIssuesReceipt(t *testing.T) {
	repo := billingtest.NewMemory()
	svc := newService(repo)

	out, err := svc.CreatePayment(context.Background(), billing.PaymentInput{
		TenantID: 3, Amount: dec("5000"), Method: billing.MethodCash, IssueReceipt: true,
	})
	require.NoError(t, err)
	require.Regexp(t, `^RCP-20261015-[0-9A-F]{8}$`, out.Payment.ReceiptNumber)
	require.Equal(t, billing.PaymentCompleted, out.Payment.Status)
	require.Nil(t, out.Invoice)
}

func TestCreatePaymentPropagatesStorageErrors(t *testing.T) {
	repo := billingtest.NewMemory()
	repo.FailInsertPayment = errors.New("disk full")
	svc := newService(repo)

	_, err := svc.CreatePayment(context.Background(), billing.PaymentInput{TenantID: 1, Amount: dec("1")})
	require.ErrorContains(t, err, "disk full")
}
