package checkout

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-rent/internal/gateway"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

const (
	// WebhookPath receives gateway notifications. It is exempt from CSRF.
	WebhookPath  = "/webhooks/flutterwave"
	CallbackPath = "/payments/callback"

	maxWebhookBytes = 1 << 20
	dashboardPath   = "/"
)

// Handler exposes the payment flow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountInvoiceRoutes registers the pay action under an /invoices router.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/{id}/pay", h.initiate)
}

// MountRoutes registers the callback and webhook endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get(CallbackPath, h.callback)
	r.With(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post(WebhookPath, h.webhook)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid invoice id")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	caller, ok := sess.Caller()
	if !ok {
		httpx.RespondError(w, shared.ErrNotSignedIn)
		return
	}

	out, err := h.service.Initiate(r.Context(), InitiateInput{
		InvoiceID: invoiceID,
		Caller:    caller,
		Customer: CustomerOverride{
			Email: r.PostFormValue("email"),
			Name:  r.PostFormValue("name"),
			Phone: r.PostFormValue("phone"),
		},
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized), errors.Is(err, httpx.ErrNotFound):
		httpx.RespondError(w, err)
		return
	default:
		if !errors.As(err, new(*Failure)) {
			h.logger.Error("payment initiation error", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
		}
		h.redirectWithFlash(w, r, invoicePath(invoiceID), "error",
			UserMessage(err, "An error occurred while initializing payment. Please try again."))
		return
	}

	sess.SetPendingPayment(shared.PendingPayment{TxRef: out.TxRef, InvoiceID: out.InvoiceID})
	http.Redirect(w, r, out.PaymentURL, http.StatusSeeOther)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	in := CallbackInput{
		TransactionID: r.URL.Query().Get("transaction_id"),
		Status:        r.URL.Query().Get("status"),
	}
	if pending, ok := sess.PendingPayment(); ok {
		in.FallbackInvoiceID = pending.InvoiceID
	}

	res, err := h.service.HandleCallback(r.Context(), in)
	if err != nil {
		if !errors.As(err, new(*Failure)) {
			h.logger.Error("payment callback error", slog.String("transaction_id", in.TransactionID), slog.Any("error", err))
		}
		h.redirectWithFlash(w, r, dashboardPath, "error",
			UserMessage(err, "An error occurred while processing your payment. Please contact support."))
		return
	}

	target := invoicePath(res.InvoiceID)
	switch res.Outcome {
	case OutcomeCompleted:
		if sess != nil {
			sess.ClearPendingPayment()
		}
		h.redirectWithFlash(w, r, target, "success", "Payment completed successfully!")
	case OutcomeAlreadyProcessed:
		h.redirectWithFlash(w, r, target, "success", "Payment has already been processed.")
	default:
		h.redirectWithFlash(w, r, target, "error", "Payment was not successful. Please try again.")
	}
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, map[string]string{"message": "Unreadable payload"})
		return
	}

	res, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(gateway.SignatureHeader))
	switch {
	case errors.Is(err, gateway.ErrSignatureMissing):
		httpx.JSON(w, http.StatusBadRequest, map[string]string{"message": "Missing signature"})
	case errors.Is(err, gateway.ErrSignatureInvalid):
		httpx.JSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid signature"})
	case errors.Is(err, gateway.ErrMalformedPayload):
		httpx.JSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payload"})
	case err != nil:
		// A non-2xx answer makes the gateway redeliver.
		h.logger.Error("webhook processing failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Webhook processing failed"})
	default:
		h.logger.Info("webhook processed", slog.String("outcome", string(res.Outcome)), slog.Int64("invoice_id", res.InvoiceID))
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(kind, message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func invoicePath(id int64) string {
	if id <= 0 {
		return dashboardPath
	}
	return fmt.Sprintf("/invoices/%d", id)
}
