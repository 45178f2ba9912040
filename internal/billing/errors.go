package billing

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

var (
	ErrInvoiceNotFound = fmt.Errorf("billing: invoice %w", httpx.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("billing: payment %w", httpx.ErrNotFound)
	ErrInvalidAmount   = fmt.Errorf("billing: amount must be positive: %w", httpx.ErrValidation)

	// ErrDuplicateInvoiceNumber is returned by the repository when the
	// invoice number is already taken.
	ErrDuplicateInvoiceNumber = fmt.Errorf("billing: invoice number %w", httpx.ErrDuplicate)
	// ErrDuplicatePeriod is returned when the tenant already has an invoice
	// for the billing month.
	ErrDuplicatePeriod = fmt.Errorf("billing: invoice period %w", httpx.ErrDuplicate)
	// ErrDuplicateReference is returned when a payment with the same
	// transaction reference exists.
	ErrDuplicateReference = fmt.Errorf("billing: transaction reference %w", httpx.ErrDuplicate)

	// ErrConcurrentUpdate signals a serialization failure; the unit of work
	// may be retried.
	ErrConcurrentUpdate = errors.New("billing: concurrent update")
	// ErrNumberingExhausted is returned when no free invoice number could be
	// allocated after several attempts.
	ErrNumberingExhausted = errors.New("billing: could not allocate invoice number")
)
