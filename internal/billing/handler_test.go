package billing_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-rent/internal/tenants"
)

func newInvoiceRouter(repo *billingtest.Memory, ts ...tenants.Tenant) chi.Router {
	h := billing.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(repo, ts...))
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func openInvoice(repo *billingtest.Memory) billing.Invoice {
	return repo.PutInvoice(billing.Invoice{
		TenantID: 7, InvoiceNumber: "INV-20261001-0001",
		InvoiceDate: date(2026, 10, 1), DueDate: date(2026, 10, 31),
		PeriodYear: 2026, PeriodMonth: 10,
		Amount: dec("150000"), PaidAmount: dec("0"), Balance: dec("150000"),
		Status: billing.InvoiceDraft,
	})
}

func TestGenerateMonthlyEndpoint(t *testing.T) {
	repo := billingtest.NewMemory()
	r := newInvoiceRouter(repo,
		tenants.Tenant{ID: 7, MonthlyRent: dec("150000"), LeaseStatus: tenants.LeaseActive},
		tenants.Tenant{ID: 8, MonthlyRent: dec("90000"), LeaseStatus: tenants.LeaseActive},
	)

	rec := post(r, "/invoices/monthly", `{"month":"2026-11"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Generated []billing.Invoice `json:"generated"`
		Skipped   []json.RawMessage `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Generated, 2)
	require.Empty(t, resp.Skipped)
	for _, inv := range resp.Generated {
		require.Equal(t, 2026, inv.PeriodYear)
		require.Equal(t, 11, inv.PeriodMonth)
		require.Equal(t, billing.InvoiceDraft, inv.Status)
	}

	// A rerun for the same month returns the existing invoices.
	rec = post(r, "/invoices/monthly", `{"month":"2026-11"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.Invoices(), 2)
}

func TestGenerateMonthlyDefaultsToCurrentMonth(t *testing.T) {
	repo := billingtest.NewMemory()
	r := newInvoiceRouter(repo, tenants.Tenant{ID: 7, MonthlyRent: dec("150000"), LeaseStatus: tenants.LeaseActive})

	rec := post(r, "/invoices/monthly", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	invoices := repo.Invoices()
	require.Len(t, invoices, 1)
	require.Equal(t, 10, invoices[0].PeriodMonth)
}

func TestGenerateMonthlyRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"month name":      `{"month":"March"}`,
		"month overflow":  `{"month":"2026-13"}`,
		"full date":       `{"month":"2026-11-01"}`,
		"unknown field":   `{"month":"2026-11","tenant":7}`,
		"malformed json":  `{"month":`,
		"wrong json type": `{"month":202611}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			repo := billingtest.NewMemory()
			r := newInvoiceRouter(repo, tenants.Tenant{ID: 7, MonthlyRent: dec("150000"), LeaseStatus: tenants.LeaseActive})

			rec := post(r, "/invoices/monthly", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Empty(t, repo.Invoices())
		})
	}
}

func TestOverdueSweepEndpoint(t *testing.T) {
	repo := billingtest.NewMemory()
	late := repo.PutInvoice(billing.Invoice{
		TenantID: 7, InvoiceNumber: "INV-20260901-0001",
		InvoiceDate: date(2026, 9, 1), DueDate: date(2026, 9, 30),
		Amount: dec("150000"), PaidAmount: dec("0"), Balance: dec("150000"),
		Status: billing.InvoiceSent,
	})
	current := openInvoice(repo)
	r := newInvoiceRouter(repo)

	rec := post(r, "/invoices/overdue-sweep", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"updated":1}`, rec.Body.String())

	got, _ := repo.Invoice(late.ID)
	require.Equal(t, billing.InvoiceOverdue, got.Status)
	got, _ = repo.Invoice(current.ID)
	require.Equal(t, billing.InvoiceDraft, got.Status)

	rec = post(r, "/invoices/overdue-sweep", "")
	require.JSONEq(t, `{"updated":0}`, rec.Body.String())
}

func TestMarkSentEndpoint(t *testing.T) {
	repo := billingtest.NewMemory()
	inv := openInvoice(repo)
	r := newInvoiceRouter(repo)

	rec := post(r, "/invoices/1/send", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, inv.ID, got.ID)
	require.Equal(t, billing.InvoiceSent, got.Status)

	require.Equal(t, http.StatusNotFound, post(r, "/invoices/99/send", "").Code)
	require.Equal(t, http.StatusBadRequest, post(r, "/invoices/abc/send", "").Code)
	require.Equal(t, http.StatusBadRequest, post(r, "/invoices/0/send", "").Code)
}

func TestManualPaymentEndpoint(t *testing.T) {
	repo := billingtest.NewMemory()
	inv := openInvoice(repo)
	r := newInvoiceRouter(repo)

	rec := post(r, "/invoices/1/payments", `{"amount":"50000","payment_method":"cash","transaction_reference":"DESK-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var outcome billing.PaymentOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.False(t, outcome.Duplicate)
	require.NotNil(t, outcome.Payment)
	require.Equal(t, billing.PaymentCompleted, outcome.Payment.Status)
	require.NotEmpty(t, outcome.Payment.ReceiptNumber)
	require.NotNil(t, outcome.Invoice)
	require.True(t, dec("100000").Equal(outcome.Invoice.Balance))

	stored, _ := repo.Invoice(inv.ID)
	require.True(t, dec("50000").Equal(stored.PaidAmount))
	require.Equal(t, billing.InvoiceSent, stored.Status)

	// The same reference again is reported, not applied twice.
	rec = post(r, "/invoices/1/payments", `{"amount":"50000","payment_method":"cash","transaction_reference":"DESK-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, repo.Payments(), 1)
	stored, _ = repo.Invoice(inv.ID)
	require.True(t, dec("100000").Equal(stored.Balance))
}

func TestManualPaymentEndpointRejections(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"missing amount", "/invoices/1/payments", `{"payment_method":"cash"}`, http.StatusBadRequest},
		{"non numeric amount", "/invoices/1/payments", `{"amount":"lots"}`, http.StatusBadRequest},
		{"zero amount", "/invoices/1/payments", `{"amount":"0"}`, http.StatusBadRequest},
		{"negative amount", "/invoices/1/payments", `{"amount":"-10"}`, http.StatusBadRequest},
		{"unknown method", "/invoices/1/payments", `{"amount":"100","payment_method":"cheque"}`, http.StatusBadRequest},
		{"long reference", "/invoices/1/payments", `{"amount":"100","transaction_reference":"` + strings.Repeat("r", 256) + `"}`, http.StatusBadRequest},
		{"unknown field", "/invoices/1/payments", `{"amount":"100","tenant_id":9}`, http.StatusBadRequest},
		{"empty body", "/invoices/1/payments", "", http.StatusBadRequest},
		{"bad id", "/invoices/abc/payments", `{"amount":"100"}`, http.StatusBadRequest},
		{"unknown invoice", "/invoices/42/payments", `{"amount":"100"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := billingtest.NewMemory()
			inv := openInvoice(repo)
			r := newInvoiceRouter(repo)

			rec := post(r, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Empty(t, repo.Payments())
			stored, _ := repo.Invoice(inv.ID)
			require.True(t, dec("150000").Equal(stored.Balance))
		})
	}
}
