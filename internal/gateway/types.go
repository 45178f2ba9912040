package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// StatusSuccessful is the transaction status of a captured charge.
const StatusSuccessful = "successful"

// EventChargeCompleted is the only webhook event acted upon.
const EventChargeCompleted = "charge.completed"

// FlexID decodes identifiers the gateway sends either as JSON numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("gateway: id %s: %w", b, err)
	}
	*f = FlexID(n.String())
	return nil
}

// Int64 parses the identifier as a positive integer.
func (f FlexID) Int64() (int64, bool) {
	v, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Customer identifies the payer on the hosted checkout page.
type Customer struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Customizations brand the hosted checkout page.
type Customizations struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// PaymentMeta travels with the transaction and comes back on verify and webhooks.
type PaymentMeta struct {
	InvoiceID     int64  `json:"invoice_id" validate:"required"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	TenantID      int64  `json:"tenant_id,omitempty"`
}

// CreatePaymentRequest opens a hosted checkout.
type CreatePaymentRequest struct {
	TxRef          string          `json:"tx_ref" validate:"required,max=100"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	PaymentOptions string          `json:"payment_options,omitempty"`
	RedirectURL    string          `json:"redirect_url" validate:"required,url"`
	Customer       Customer        `json:"customer"`
	Customizations Customizations  `json:"customizations"`
	Meta           PaymentMeta     `json:"meta"`
}

// Checkout is the result of a successful create call.
type Checkout struct {
	PaymentURL           string
	TransactionReference string
}

// TransactionMeta is the metadata echoed back by the gateway.
type TransactionMeta struct {
	InvoiceID FlexID `json:"invoice_id"`
}

// Transaction is the gateway's view of a charge.
type Transaction struct {
	ID          FlexID          `json:"id"`
	TxRef       string          `json:"tx_ref"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentType string          `json:"payment_type"`
	Meta        TransactionMeta `json:"meta"`
}

// Successful reports whether the charge was captured.
func (t Transaction) Successful() bool {
	return t.Status == StatusSuccessful
}

// WebhookEvent is the body of a webhook delivery.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// ParseWebhook decodes a verified webhook body.
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &ev, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errorMessage prefers data.message, then the top-level message.
func (e envelope) errorMessage(fallback string) string {
	var nested struct {
		Message string `json:"message"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}
