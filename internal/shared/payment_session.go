package shared

import "strconv"

const (
	pendingPaymentRefKey     = "pending_payment_ref"
	pendingPaymentInvoiceKey = "pending_payment_invoice_id"
)

// PendingPayment is the checkout started by this browser session.
type PendingPayment struct {
	TxRef     string
	InvoiceID int64
}

// SetPendingPayment remembers the checkout so the callback can fall back to it.
func (s *Session) SetPendingPayment(p PendingPayment) {
	s.Set(pendingPaymentRefKey, p.TxRef)
	s.Set(pendingPaymentInvoiceKey, strconv.FormatInt(p.InvoiceID, 10))
}

// PendingPayment returns the checkout started by this session, if any.
func (s *Session) PendingPayment() (PendingPayment, bool) {
	if s == nil {
		return PendingPayment{}, false
	}
	id, err := strconv.ParseInt(s.Get(pendingPaymentInvoiceKey), 10, 64)
	if err != nil || id <= 0 {
		return PendingPayment{}, false
	}
	return PendingPayment{TxRef: s.Get(pendingPaymentRefKey), InvoiceID: id}, true
}

// ClearPendingPayment forgets the checkout once it has been reconciled.
func (s *Session) ClearPendingPayment() {
	s.Delete(pendingPaymentRefKey)
	s.Delete(pendingPaymentInvoiceKey)
}
