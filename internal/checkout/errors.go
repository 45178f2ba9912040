package checkout

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

// Failure is an error whose message is safe to show to the payer.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind error, format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...), Err: kind}
}

var (
	ErrInvoicePaid     = &Failure{Message: "This invoice has already been paid.", Err: httpx.ErrValidation}
	ErrUnauthorized    = &Failure{Message: "Unauthorized to pay this invoice.", Err: httpx.ErrForbidden}
	ErrNotConfigured   = &Failure{Message: "Payment gateway is not configured. Please contact support.", Err: httpx.ErrUnavailable}
	ErrInvalidCallback = &Failure{Message: "Invalid payment callback.", Err: httpx.ErrValidation}
	ErrVerification    = &Failure{Message: "Payment verification failed. Please contact support.", Err: httpx.ErrBadGateway}
	ErrInvoiceUnknown  = &Failure{Message: "Invoice not found. Please contact support.", Err: httpx.ErrNotFound}
	ErrGatewayTimeout  = &Failure{Message: "The payment provider did not respond in time. Please try again.", Err: httpx.ErrUnavailable}
)

// UserMessage returns the text to show for err, with fallback for
// unexpected errors.
func UserMessage(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return fallback
}
