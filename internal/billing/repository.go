package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
)

const (
	constraintInvoiceNumber = "invoices_invoice_number_key"
	constraintInvoicePeriod = "invoices_tenant_period_key"
	constraintPaymentRef    = "payments_transaction_reference_key"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed billing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
	if db.SerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

const invoiceColumns = `id, tenant_id, invoice_number, invoice_date, due_date,
       period_year, period_month, amount::text, paid_amount::text, balance::text,
       status, description, line_items, notes, paid_at, created_at, updated_at`

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return r.oneInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *repository) LockInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return r.oneInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) FindInvoiceForPeriod(ctx context.Context, tenantID int64, year, month int) (*Invoice, error) {
	return r.oneInvoice(ctx, `SELECT `+invoiceColumns+`
FROM invoices WHERE tenant_id = $1 AND period_year = $2 AND period_month = $3`, tenantID, year, month)
}

func (r *repository) ListDueBetween(ctx context.Context, from, to time.Time) ([]Invoice, error) {
	return r.listInvoices(ctx, `SELECT `+invoiceColumns+`
FROM invoices
WHERE status NOT IN ('paid', 'cancelled') AND balance > 0
  AND due_date BETWEEN $1 AND $2
ORDER BY due_date, id`, from, to)
}

func (r *repository) ListPastDue(ctx context.Context, before time.Time) ([]Invoice, error) {
	return r.listInvoices(ctx, `SELECT `+invoiceColumns+`
FROM invoices
WHERE status NOT IN ('paid', 'cancelled') AND balance > 0
  AND due_date < $1
ORDER BY due_date, id`, before)
}

func (r *repository) UpdateInvoiceStatus(ctx context.Context, id int64, from []InvoiceStatus, to InvoiceStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = ANY($3)`, id, string(to), allowed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) NextInvoiceSequence(ctx context.Context, day time.Time) (int, error) {
	var next int
	err := r.db.QueryRow(ctx, `INSERT INTO invoice_number_sequences (day, last_value) VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET last_value = invoice_number_sequences.last_value + 1
RETURNING last_value`, day).Scan(&next)
	return next, err
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO invoices
    (tenant_id, invoice_number, invoice_date, due_date, period_year, period_month,
     amount, paid_amount, balance, status, description, line_items, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`,
		inv.TenantID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate,
		nullInt(inv.PeriodYear), nullInt(inv.PeriodMonth),
		inv.Amount, inv.PaidAmount, inv.Balance, string(inv.Status),
		inv.Description, items, inv.Notes).Scan(&id)
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case constraintInvoicePeriod:
			return nil, ErrDuplicatePeriod
		default:
			return nil, ErrDuplicateInvoiceNumber
		}
	}
	if err != nil {
		return nil, err
	}
	return r.GetInvoice(ctx, id)
}

func (r *repository) SaveInvoicePayment(ctx context.Context, inv Invoice) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices
SET paid_amount = $2, balance = $3, status = $4, paid_at = $5, updated_at = NOW()
WHERE id = $1`, inv.ID, inv.PaidAmount, inv.Balance, string(inv.Status), inv.PaidAt)
	return err
}

const paymentColumns = `id, tenant_id, invoice_id, amount::text, payment_date, payment_method,
       status, transaction_reference, receipt_number, notes, created_at`

func (r *repository) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO payments
    (tenant_id, invoice_id, amount, payment_date, payment_method, status,
     transaction_reference, receipt_number, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (transaction_reference) DO NOTHING
RETURNING `+paymentColumns,
		p.TenantID, p.InvoiceID, p.Amount, p.PaymentDate, nullString(string(p.PaymentMethod)),
		string(p.Status), nullString(p.TransactionReference), nullString(p.ReceiptNumber), p.Notes)
	saved, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateReference
	}
	if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintPaymentRef {
		return nil, ErrDuplicateReference
	}
	return saved, err
}

func (r *repository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_reference = $1`, reference)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (r *repository) oneInvoice(ctx context.Context, query string, args ...any) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

func (r *repository) listInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                     Invoice
		periodYear, periodMonth pgtype.Int4
		amount, paid, balance   string
		status                  string
		items                   []byte
		paidAt                  pgtype.Date
	)
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
		&periodYear, &periodMonth, &amount, &paid, &balance,
		&status, &inv.Description, &items, &inv.Notes, &paidAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invoice amount: %w", err)
	}
	if inv.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("invoice paid_amount: %w", err)
	}
	if inv.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invoice balance: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("invoice line_items: %w", err)
		}
	}
	inv.Status = InvoiceStatus(status)
	inv.InvoiceDate = inv.InvoiceDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	if periodYear.Valid {
		inv.PeriodYear = int(periodYear.Int32)
	}
	if periodMonth.Valid {
		inv.PeriodMonth = int(periodMonth.Int32)
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		inv.PaidAt = &t
	}
	return &inv, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p         Payment
		invoiceID pgtype.Int8
		amount    string
		method    pgtype.Text
		status    string
		reference pgtype.Text
		receipt   pgtype.Text
	)
	if err := row.Scan(&p.ID, &p.TenantID, &invoiceID, &amount, &p.PaymentDate, &method,
		&status, &reference, &receipt, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("payment amount: %w", err)
	}
	if invoiceID.Valid {
		id := invoiceID.Int64
		p.InvoiceID = &id
	}
	p.PaymentDate = p.PaymentDate.UTC()
	p.PaymentMethod = PaymentMethod(method.String)
	p.Status = PaymentStatus(status)
	p.TransactionReference = reference.String
	p.ReceiptNumber = receipt.String
	return &p, nil
}

func nullString(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullInt(v int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(v), Valid: v != 0}
}
