package billing

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rent/internal/money"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
)

// Handler exposes staff invoice endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/monthly", h.generateMonthly)
	r.Post("/overdue-sweep", h.sweepOverdue)
	r.Get("/{id}", h.showInvoice)
	r.Post("/{id}/send", h.markSent)
	r.Post("/{id}/payments", h.recordManualPayment)
}

type monthlyRequest struct {
	Month string `json:"month" validate:"omitempty,datetime=2006-01"`
}

type skippedTenantResponse struct {
	TenantID int64  `json:"tenant_id"`
	Error    string `json:"error"`
}

type monthlyResponse struct {
	Generated []Invoice               `json:"generated"`
	Skipped   []skippedTenantResponse `json:"skipped"`
}

func (h *Handler) generateMonthly(w http.ResponseWriter, r *http.Request) {
	var req monthlyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	month, err := money.ParseMonth(req.Month, h.service.now)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: month", httpx.ErrValidation))
		return
	}
	run, err := h.service.GenerateMonthlyInvoicesForAllTenants(r.Context(), month)
	if err != nil {
		h.logger.Error("generate monthly invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := monthlyResponse{Generated: run.Generated, Skipped: make([]skippedTenantResponse, 0, len(run.Skipped))}
	for _, skip := range run.Skipped {
		resp.Skipped = append(resp.Skipped, skippedTenantResponse{TenantID: skip.Tenant.ID, Error: skip.Err.Error()})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) sweepOverdue(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.UpdateOverdueInvoices(r.Context())
	if err != nil {
		h.logger.Error("overdue sweep", slog.Int("updated", updated), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.UpdateInvoiceStatus(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) markSent(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkInvoiceAsSent(r.Context(), id)
	if err != nil {
		h.logger.Error("mark invoice sent", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type manualPaymentRequest struct {
	Amount               string `json:"amount" validate:"required,numeric"`
	PaymentMethod        string `json:"payment_method" validate:"omitempty,oneof=bank_transfer card mobile_money cash other"`
	TransactionReference string `json:"transaction_reference" validate:"max=255"`
	Notes                string `json:"notes" validate:"max=2000"`
}

func (h *Handler) recordManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req manualPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httpx.RespondError(w, ErrInvalidAmount)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.CreatePayment(r.Context(), PaymentInput{
		TenantID:             inv.TenantID,
		InvoiceID:            &inv.ID,
		Amount:               amount,
		Method:               PaymentMethod(req.PaymentMethod),
		Status:               PaymentCompleted,
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
		IssueReceipt:         true,
	})
	if err != nil {
		h.logger.Error("record manual payment", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if outcome.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, outcome)
}

func invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Invoice", "invoice id must be a positive integer")
		return 0, false
	}
	return id, true
}
