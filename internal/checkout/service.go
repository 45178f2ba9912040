// Package checkout reconciles hosted gateway payments with invoices.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/gateway"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

const (
	defaultPhone   = "08000000000"
	checkoutTitle  = "Property Rent Payment"
	notApplicable  = "N/A"
	fallbackMethod = "card"
)

// Invoices is the billing surface used by reconciliation.
type Invoices interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
	GetPaymentByReference(ctx context.Context, reference string) (*billing.Payment, error)
	CreatePayment(ctx context.Context, in billing.PaymentInput) (*billing.PaymentOutcome, error)
}

// Tenants resolves the lease behind an invoice.
type Tenants interface {
	Get(ctx context.Context, id int64) (*tenants.Tenant, error)
}

// Gateway is the hosted payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.Checkout, error)
	VerifyTransaction(ctx context.Context, transactionID string) (*gateway.Transaction, error)
	SecretHash() string
}

// AuditRecorder persists reconciliation events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer counts reconciliation outcomes.
type Observer interface {
	ObserveReconciliation(source, outcome string)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Invoices    Invoices
	Tenants     Tenants
	Gateway     Gateway
	Audit       AuditRecorder
	Observer    Observer
	RedirectURL string
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Service runs initiation, callback and webhook reconciliation.
type Service struct {
	invoices    Invoices
	tenants     Tenants
	gateway     Gateway
	audit       AuditRecorder
	observer    Observer
	redirectURL string
	now         func() time.Time
	logger      *slog.Logger
	inflight    singleflight.Group
}

// NewService wires a Service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		invoices:    deps.Invoices,
		tenants:     deps.Tenants,
		gateway:     deps.Gateway,
		audit:       deps.Audit,
		observer:    deps.Observer,
		redirectURL: deps.RedirectURL,
		now:         deps.Clock,
		logger:      deps.Logger,
	}
}

// Source says which path delivered a transaction.
type Source string

const (
	SourceCallback Source = "callback"
	SourceWebhook  Source = "webhook"
)

// Outcome is the result of reconciling one transaction.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeIgnored          Outcome = "ignored"
)

// Result describes what reconciliation did.
type Result struct {
	Outcome   Outcome
	InvoiceID int64
	Payment   *billing.Payment
	Invoice   *billing.Invoice
}

// CustomerOverride replaces the payer details taken from the tenant account.
type CustomerOverride struct {
	Email string
	Name  string
	Phone string
}

// InitiateInput starts a hosted checkout.
type InitiateInput struct {
	InvoiceID int64
	Caller    shared.Caller
	Customer  CustomerOverride
}

// Initiation is a started checkout the payer must be redirected to.
type Initiation struct {
	InvoiceID  int64
	TxRef      string
	PaymentURL string
}

// Initiate opens a hosted checkout for the outstanding balance of an invoice.
// Nothing is written; a Payment only exists once the gateway confirms.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*Initiation, error) {
	s.logger.Info("payment initiation started",
		slog.Int64("invoice_id", in.InvoiceID),
		slog.Int64("user_id", in.Caller.UserID),
		slog.String("user_role", in.Caller.Role))

	inv, err := s.invoices.GetInvoice(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		s.logger.Warn("payment attempt on already paid invoice", slog.Int64("invoice_id", inv.ID))
		return nil, ErrInvoicePaid
	}
	tenant, err := s.tenants.Get(ctx, inv.TenantID)
	if err != nil {
		return nil, fmt.Errorf("checkout: load tenant %d: %w", inv.TenantID, err)
	}
	if in.Caller.IsTenant() && !tenant.OwnedBy(in.Caller.UserID) {
		s.logger.Warn("unauthorized payment attempt",
			slog.Int64("invoice_id", inv.ID),
			slog.Int64("user_id", in.Caller.UserID),
			slog.Int64("invoice_tenant_id", inv.TenantID))
		return nil, ErrUnauthorized
	}

	req := s.paymentRequest(*inv, *tenant, in.Customer)
	out, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.logger.Error("payment initialization failed",
			slog.Int64("invoice_id", inv.ID),
			slog.String("tx_ref", req.TxRef),
			slog.Any("error", err))
		return nil, gatewayFailure(err, "Failed to initialize payment. Please try again.")
	}

	s.record(ctx, shared.AuditLog{
		ActorID:  actor(in.Caller),
		Action:   "payment.initiated",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     map[string]any{"tx_ref": out.TransactionReference, "amount": req.Amount.StringFixed(2)},
	})
	return &Initiation{InvoiceID: inv.ID, TxRef: out.TransactionReference, PaymentURL: out.PaymentURL}, nil
}

func (s *Service) paymentRequest(inv billing.Invoice, tenant tenants.Tenant, override CustomerOverride) gateway.CreatePaymentRequest {
	customer := gateway.Customer{Email: tenant.Email(), Name: tenant.Name(), PhoneNumber: defaultPhone}
	if tenant.User != nil && tenant.User.Phone != "" {
		customer.PhoneNumber = tenant.User.Phone
	}
	if override.Email != "" {
		customer.Email = override.Email
	}
	if override.Name != "" {
		customer.Name = override.Name
	}
	if override.Phone != "" {
		customer.PhoneNumber = override.Phone
	}
	return gateway.CreatePaymentRequest{
		TxRef:       fmt.Sprintf("INV-%d-%d", inv.ID, s.now().Unix()),
		Amount:      inv.Balance,
		RedirectURL: s.redirectURL,
		Customer:    customer,
		Customizations: gateway.Customizations{
			Title:       checkoutTitle,
			Description: fmt.Sprintf("Payment for Invoice #%s - %s", inv.InvoiceNumber, tenant.PropertyName()),
		},
		Meta: gateway.PaymentMeta{InvoiceID: inv.ID, InvoiceNumber: inv.InvoiceNumber, TenantID: tenant.ID},
	}
}

// CallbackInput is what the payer's browser brings back from the gateway.
type CallbackInput struct {
	TransactionID string
	// Status is the status query parameter; it is only used in notes.
	Status string
	// FallbackInvoiceID comes from the session when the gateway drops metadata.
	FallbackInvoiceID int64
}

// HandleCallback reconciles a transaction after the payer is redirected back.
// Declined transactions are stored as failed payments without touching the
// invoice balance.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) (*Result, error) {
	txID := strings.TrimSpace(in.TransactionID)
	if txID == "" {
		return nil, ErrInvalidCallback
	}
	res, err := s.coalesce(ctx, SourceCallback, txID, func(ctx context.Context) (*Result, error) {
		return s.reconcileCallback(ctx, txID, in)
	})
	s.observe(SourceCallback, res, err)
	return res, err
}

func (s *Service) reconcileCallback(ctx context.Context, txID string, in CallbackInput) (*Result, error) {
	tx, err := s.gateway.VerifyTransaction(ctx, txID)
	if err != nil {
		s.logger.Error("payment verification failed", slog.String("transaction_id", txID), slog.Any("error", err))
		return nil, verifyFailure(err)
	}

	invoiceID, ok := tx.Meta.InvoiceID.Int64()
	if !ok {
		invoiceID = in.FallbackInvoiceID
	}
	if invoiceID <= 0 {
		s.logger.Error("invoice id not found in payment callback",
			slog.String("transaction_id", txID),
			slog.String("tx_ref", tx.TxRef))
		return nil, ErrInvoiceUnknown
	}
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		return nil, fail(err, "Invoice not found.")
	}
	if err != nil {
		return nil, err
	}

	existing, done, err := s.alreadyRecorded(ctx, txID)
	if err != nil {
		return nil, err
	}
	if done {
		return &Result{Outcome: OutcomeAlreadyProcessed, InvoiceID: inv.ID, Payment: existing}, nil
	}

	paymentType := tx.PaymentType
	if paymentType == "" {
		paymentType = fallbackMethod
	}
	input := billing.PaymentInput{
		TenantID:             inv.TenantID,
		InvoiceID:            &inv.ID,
		Method:               MapPaymentMethod(paymentType),
		TransactionReference: txID,
	}
	outcome := OutcomeCompleted
	if tx.Successful() {
		input.Amount = tx.Amount
		input.Status = billing.PaymentCompleted
		input.Notes = "Payment via Flutterwave. Payment Type: " + orNA(tx.PaymentType)
	} else {
		outcome = OutcomeFailed
		input.Amount = tx.Amount
		if !input.Amount.IsPositive() {
			input.Amount = inv.Balance
		}
		input.Status = billing.PaymentFailed
		status := in.Status
		if status == "" {
			status = tx.Status
		}
		input.Notes = "Payment failed via Flutterwave. Status: " + status
	}
	s.checkCurrency(tx, inv.ID)

	return s.createPayment(ctx, SourceCallback, input, outcome)
}

// HandleWebhook processes a signed out-of-band notification. Unverified
// payloads are rejected before anything is read from them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if err := gateway.VerifySignature(payload, signature, s.gateway.SecretHash()); err != nil {
		s.logger.Warn("webhook signature verification failed", slog.Any("error", err))
		return nil, err
	}
	event, err := gateway.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}
	txID := string(event.Data.ID)
	if event.Event != gateway.EventChargeCompleted || txID == "" {
		s.logger.Info("webhook event ignored", slog.String("event", event.Event))
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	res, err := s.coalesce(ctx, SourceWebhook, txID, func(ctx context.Context) (*Result, error) {
		return s.reconcileWebhook(ctx, txID, event)
	})
	s.observe(SourceWebhook, res, err)
	return res, err
}

func (s *Service) reconcileWebhook(ctx context.Context, txID string, event *gateway.WebhookEvent) (*Result, error) {
	invoiceID, ok := event.Data.Meta.InvoiceID.Int64()
	if !ok {
		s.logger.Warn("webhook without invoice id", slog.String("transaction_id", txID))
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		s.logger.Warn("webhook for unknown invoice", slog.String("transaction_id", txID), slog.Int64("invoice_id", invoiceID))
		return &Result{Outcome: OutcomeIgnored, InvoiceID: invoiceID}, nil
	}
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		return &Result{Outcome: OutcomeIgnored, InvoiceID: inv.ID, Invoice: inv}, nil
	}

	// A redelivery of a recorded transaction stops here. Nothing else is
	// remembered about a delivery, so one that was ignored or failed can
	// succeed when the gateway sends it again.
	existing, done, err := s.alreadyRecorded(ctx, txID)
	if err != nil {
		return nil, err
	}
	if done {
		return &Result{Outcome: OutcomeAlreadyProcessed, InvoiceID: inv.ID, Payment: existing}, nil
	}

	// The payload amount is never trusted; the gateway is asked again.
	tx, err := s.gateway.VerifyTransaction(ctx, txID)
	if err != nil {
		s.logger.Error("webhook verification failed", slog.String("transaction_id", txID), slog.Any("error", err))
		return nil, verifyFailure(err)
	}
	if !tx.Successful() {
		s.logger.Info("webhook transaction not successful",
			slog.String("transaction_id", txID),
			slog.String("status", tx.Status))
		return &Result{Outcome: OutcomeIgnored, InvoiceID: inv.ID}, nil
	}
	s.checkCurrency(tx, inv.ID)

	paymentType := tx.PaymentType
	if paymentType == "" {
		paymentType = fallbackMethod
	}
	return s.createPayment(ctx, SourceWebhook, billing.PaymentInput{
		TenantID:             inv.TenantID,
		InvoiceID:            &inv.ID,
		Amount:               tx.Amount,
		Method:               MapPaymentMethod(paymentType),
		Status:               billing.PaymentCompleted,
		TransactionReference: txID,
		Notes:                "Payment via Flutterwave webhook. Payment Type: " + orNA(tx.PaymentType),
	}, OutcomeCompleted)
}

// createPayment stores the payment; a concurrent insert of the same
// reference by the other path is reported as already processed.
func (s *Service) createPayment(ctx context.Context, source Source, in billing.PaymentInput, outcome Outcome) (*Result, error) {
	res, err := s.invoices.CreatePayment(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("checkout: record %s payment %s: %w", source, in.TransactionReference, err)
	}
	invoiceID := *in.InvoiceID
	if res.Duplicate {
		return &Result{Outcome: OutcomeAlreadyProcessed, InvoiceID: invoiceID, Payment: res.Payment}, nil
	}
	s.record(ctx, shared.AuditLog{
		Action:   "payment." + string(outcome),
		Entity:   "payment",
		EntityID: strconv.FormatInt(res.Payment.ID, 10),
		Meta: map[string]any{
			"source":                string(source),
			"invoice_id":            invoiceID,
			"transaction_reference": in.TransactionReference,
			"amount":                in.Amount.StringFixed(2),
		},
	})
	return &Result{Outcome: outcome, InvoiceID: invoiceID, Payment: res.Payment, Invoice: res.Invoice}, nil
}

func (s *Service) alreadyRecorded(ctx context.Context, reference string) (*billing.Payment, bool, error) {
	existing, err := s.invoices.GetPaymentByReference(ctx, reference)
	switch {
	case err == nil:
		return existing, true, nil
	case errors.Is(err, billing.ErrPaymentNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("checkout: look up payment %s: %w", reference, err)
	}
}

// coalesce collapses concurrent deliveries of one transaction on one path.
func (s *Service) coalesce(ctx context.Context, source Source, txID string, fn func(context.Context) (*Result, error)) (*Result, error) {
	v, err, _ := s.inflight.Do(string(source)+":"+txID, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) checkCurrency(tx *gateway.Transaction, invoiceID int64) {
	if c, ok := s.gateway.(interface{ Currency() string }); ok && tx.Currency != "" && !strings.EqualFold(tx.Currency, c.Currency()) {
		s.logger.Warn("transaction currency differs from configured currency",
			slog.Int64("invoice_id", invoiceID),
			slog.String("transaction_id", string(tx.ID)),
			slog.String("currency", tx.Currency))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	log.At = s.now()
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) observe(source Source, res *Result, err error) {
	if s.observer == nil {
		return
	}
	outcome := "error"
	if err == nil && res != nil {
		outcome = string(res.Outcome)
	}
	s.observer.ObserveReconciliation(string(source), outcome)
}

func gatewayFailure(err error, fallback string) error {
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		return ErrNotConfigured
	case errors.Is(err, gateway.ErrTimeout):
		return ErrGatewayTimeout
	case errors.As(err, &apiErr):
		return fail(ErrVerification.Err, "%s", apiErr.Message)
	default:
		return fail(ErrVerification.Err, "%s", fallback)
	}
}

func verifyFailure(err error) error {
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		return ErrNotConfigured
	case errors.Is(err, gateway.ErrTimeout):
		return ErrGatewayTimeout
	default:
		return ErrVerification
	}
}

func actor(c shared.Caller) *int64 {
	if c.UserID <= 0 {
		return nil
	}
	id := c.UserID
	return &id
}

func orNA(s string) string {
	if s == "" {
		return notApplicable
	}
	return s
}
