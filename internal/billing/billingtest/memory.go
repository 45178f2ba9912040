// Package billingtest provides an in-memory billing repository for tests.
package billingtest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/money"
)

// Memory implements billing.Repository. A unit of work holds the repository
// lock for its whole duration, which stands in for row locks, and its writes
// are discarded when the callback fails.
type Memory struct {
	mu        sync.Mutex
	invoices  map[int64]billing.Invoice
	payments  map[int64]billing.Payment
	sequences map[string]int
	nextInv   int64
	nextPay   int64

	// FailInsertPayment, when set, is returned by the next InsertPayment.
	FailInsertPayment error
}

// NewMemory builds an empty repository.
func NewMemory() *Memory {
	return &Memory{
		invoices:  make(map[int64]billing.Invoice),
		payments:  make(map[int64]billing.Payment),
		sequences: make(map[string]int),
	}
}

// PutInvoice stores inv, assigning an id when it has none.
func (m *Memory) PutInvoice(inv billing.Invoice) billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == 0 {
		m.nextInv++
		inv.ID = m.nextInv
	} else if inv.ID > m.nextInv {
		m.nextInv = inv.ID
	}
	m.invoices[inv.ID] = inv
	return inv
}

// Invoice returns a stored invoice.
func (m *Memory) Invoice(id int64) (billing.Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	return inv, ok
}

// Invoices returns all invoices ordered by id.
func (m *Memory) Invoices() []billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]billing.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments returns all payments ordered by id.
func (m *Memory) Payments() []billing.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]billing.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, billing.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{m: m, invoices: make(map[int64]billing.Invoice)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, inv := range tx.invoices {
		m.invoices[id] = inv
	}
	for _, p := range tx.payments {
		m.payments[p.ID] = p
	}
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id int64) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (m *Memory) FindInvoiceForPeriod(_ context.Context, tenantID int64, year, month int) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.PeriodYear == year && inv.PeriodMonth == month {
			return &inv, nil
		}
	}
	return nil, billing.ErrInvoiceNotFound
}

func (m *Memory) ListDueBetween(_ context.Context, from, to time.Time) ([]billing.Invoice, error) {
	return m.filter(func(inv billing.Invoice) bool {
		return open(inv) && !money.Before(inv.DueDate, from) && !money.Before(to, inv.DueDate)
	}), nil
}

func (m *Memory) ListPastDue(_ context.Context, before time.Time) ([]billing.Invoice, error) {
	return m.filter(func(inv billing.Invoice) bool {
		return open(inv) && money.Before(inv.DueDate, before)
	}), nil
}

func (m *Memory) UpdateInvoiceStatus(_ context.Context, id int64, from []billing.InvoiceStatus, to billing.InvoiceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return false, billing.ErrInvoiceNotFound
	}
	if !slices.Contains(from, inv.Status) {
		return false, nil
	}
	inv.Status = to
	m.invoices[id] = inv
	return true, nil
}

func (m *Memory) NextInvoiceSequence(_ context.Context, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.Format("20060102")
	m.sequences[key]++
	return m.sequences[key], nil
}

func (m *Memory) CreateInvoice(_ context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return nil, billing.ErrDuplicateInvoiceNumber
		}
		if inv.PeriodYear != 0 && existing.TenantID == inv.TenantID &&
			existing.PeriodYear == inv.PeriodYear && existing.PeriodMonth == inv.PeriodMonth {
			return nil, billing.ErrDuplicatePeriod
		}
	}
	m.nextInv++
	inv.ID = m.nextInv
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.ID] = inv
	return &inv, nil
}

func (m *Memory) GetPaymentByReference(_ context.Context, reference string) (*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if reference != "" && p.TransactionReference == reference {
			return &p, nil
		}
	}
	return nil, billing.ErrPaymentNotFound
}

func (m *Memory) filter(keep func(billing.Invoice) bool) []billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range m.invoices {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func open(inv billing.Invoice) bool {
	return inv.Status != billing.InvoicePaid && inv.Status != billing.InvoiceCancelled && inv.Balance.IsPositive()
}

type memoryTx struct {
	m        *Memory
	invoices map[int64]billing.Invoice
	payments []billing.Payment
}

func (tx *memoryTx) LockInvoice(_ context.Context, id int64) (*billing.Invoice, error) {
	if inv, ok := tx.invoices[id]; ok {
		return &inv, nil
	}
	inv, ok := tx.m.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (tx *memoryTx) SaveInvoicePayment(_ context.Context, inv billing.Invoice) error {
	if _, ok := tx.m.invoices[inv.ID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	tx.invoices[inv.ID] = inv
	return nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, p billing.Payment) (*billing.Payment, error) {
	if err := tx.m.FailInsertPayment; err != nil {
		tx.m.FailInsertPayment = nil
		return nil, err
	}
	if p.TransactionReference != "" {
		for _, existing := range tx.m.payments {
			if existing.TransactionReference == p.TransactionReference {
				return nil, billing.ErrDuplicateReference
			}
		}
		for _, staged := range tx.payments {
			if staged.TransactionReference == p.TransactionReference {
				return nil, billing.ErrDuplicateReference
			}
		}
	}
	tx.m.nextPay++
	p.ID = tx.m.nextPay
	p.CreatedAt = time.Now()
	tx.payments = append(tx.payments, p)
	return &p, nil
}
