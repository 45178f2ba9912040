package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// PaymentMethod enumerates how money arrived. The zero value means unknown.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCash         PaymentMethod = "cash"
	MethodOther        PaymentMethod = "other"
)

// PaymentStatus enumerates payment outcomes.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// LineItem is one billed row on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a rent bill owed by a tenant.
type Invoice struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	PeriodYear    int             `json:"period_year,omitempty"`
	PeriodMonth   int             `json:"period_month,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Status        InvoiceStatus   `json:"status"`
	Description   string          `json:"description"`
	LineItems     []LineItem      `json:"line_items"`
	Notes         string          `json:"notes,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsPaid reports whether nothing is owed on the invoice.
func (i Invoice) IsPaid() bool {
	return i.Status == InvoicePaid || !i.Balance.IsPositive()
}

// IsOverdue reports whether the invoice is flagged overdue or its due date
// has passed while unpaid.
func (i Invoice) IsOverdue(today time.Time) bool {
	if i.Status == InvoiceOverdue {
		return true
	}
	return money.Before(i.DueDate, today) && !i.IsPaid()
}

// Payment is money received from a tenant, optionally applied to an invoice.
type Payment struct {
	ID                   int64           `json:"id"`
	TenantID             int64           `json:"tenant_id"`
	InvoiceID            *int64          `json:"invoice_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	PaymentDate          time.Time       `json:"payment_date"`
	PaymentMethod        PaymentMethod   `json:"payment_method,omitempty"`
	Status               PaymentStatus   `json:"status"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	ReceiptNumber        string          `json:"receipt_number,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// PaymentInput describes a payment to record. Completed payments linked to an
// invoice are applied to its balance in the same unit of work.
type PaymentInput struct {
	TenantID             int64
	InvoiceID            *int64
	Amount               decimal.Decimal
	Method               PaymentMethod
	Status               PaymentStatus
	TransactionReference string
	Notes                string
	IssueReceipt         bool
}

// PaymentOutcome reports what CreatePayment did.
type PaymentOutcome struct {
	Payment *Payment `json:"payment"`
	Invoice *Invoice `json:"invoice,omitempty"`
	// Duplicate is set when a payment with the same transaction reference
	// already existed; nothing was written.
	Duplicate bool `json:"duplicate"`
}

// SkippedTenant records a tenant the monthly run could not bill.
type SkippedTenant struct {
	Tenant tenants.Tenant
	Err    error
}

// MonthlyRun summarises a monthly invoice batch.
type MonthlyRun struct {
	Generated []Invoice
	Skipped   []SkippedTenant
}
