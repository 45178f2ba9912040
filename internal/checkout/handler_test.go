package checkout_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/checkout"
	"github.com/odyssey-erp/odyssey-rent/internal/gateway"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

func newRouter(f *fixture) chi.Router {
	h := checkout.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/invoices", h.MountInvoiceRoutes)
	h.MountRoutes(r)
	return r
}

func newSession(t *testing.T) *shared.Session {
	t.Helper()
	sm := shared.NewSessionManager(nil, "", time.Hour, false)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sess
}

func serve(r http.Handler, req *http.Request, sess *shared.Session) *httptest.ResponseRecorder {
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPayRequiresSignedInUser(t *testing.T) {
	f := newFixture(t)
	rec := serve(newRouter(f), httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/%d/pay", f.invoice.ID), nil), newSession(t))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPayRedirectsToGatewayAndRemembersCheckout(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	sess.SetUser(ownerUserID, shared.RoleTenant)

	rec := serve(newRouter(f), httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/%d/pay", f.invoice.ID), nil), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://checkout.example/INV-"))

	pending, ok := sess.PendingPayment()
	require.True(t, ok)
	require.Equal(t, f.invoice.ID, pending.InvoiceID)
	require.Equal(t, fmt.Sprintf("INV-%d-%d", f.invoice.ID, now.Unix()), pending.TxRef)
}

func TestPayForbiddenForOtherTenant(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	sess.SetUser(ownerUserID+1, shared.RoleTenant)

	rec := serve(newRouter(f), httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/%d/pay", f.invoice.ID), nil), sess)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPayGatewayErrorFlashesMessage(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = &gateway.APIError{StatusCode: 400, Message: "Invalid currency"}
	sess := newSession(t)
	sess.SetUser(ownerUserID, shared.RoleTenant)

	rec := serve(newRouter(f), httptest.NewRequest(http.MethodPost, fmt.Sprintf("/invoices/%d/pay", f.invoice.ID), nil), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, fmt.Sprintf("/invoices/%d", f.invoice.ID), rec.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "error", flash.Kind)
	require.Equal(t, "Invalid currency", flash.Message)
	_, ok := sess.PendingPayment()
	require.False(t, ok)
}

func TestCallbackUsesSessionFallbackAndClearsIt(t *testing.T) {
	f := newFixture(t)
	f.gateway.txs["8001"] = gateway.Transaction{ID: "8001", Status: gateway.StatusSuccessful, Amount: f.invoice.Balance, PaymentType: "card"}
	sess := newSession(t)
	sess.SetPendingPayment(shared.PendingPayment{TxRef: "INV-1-1", InvoiceID: f.invoice.ID})

	q := url.Values{"transaction_id": {"8001"}, "status": {"successful"}, "tx_ref": {"INV-1-1"}}
	rec := serve(newRouter(f), httptest.NewRequest(http.MethodGet, "/payments/callback?"+q.Encode(), nil), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, fmt.Sprintf("/invoices/%d", f.invoice.ID), rec.Header().Get("Location"))
	require.Equal(t, "Payment completed successfully!", sess.PopFlash().Message)
	_, ok := sess.PendingPayment()
	require.False(t, ok)

	rec = serve(newRouter(f), httptest.NewRequest(http.MethodGet, "/payments/callback?"+q.Encode(), nil), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "Payment has already been processed.", sess.PopFlash().Message)
	require.Len(t, f.repo.Payments(), 1)
}

func TestCallbackWithoutTransactionGoesToDashboard(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	rec := serve(newRouter(f), httptest.NewRequest(http.MethodGet, "/payments/callback?status=cancelled", nil), sess)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Equal(t, "Invalid payment callback.", sess.PopFlash().Message)
}

func TestWebhookEndpoint(t *testing.T) {
	f := newFixture(t)
	f.verified("9001", gateway.StatusSuccessful, "150000", "card")
	body := f.webhookBody("9001", "150000")
	r := newRouter(f)

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, checkout.WebhookPath, bytes.NewReader(body))
		if sig != "" {
			req.Header.Set(gateway.SignatureHeader, sig)
		}
		return serve(r, req, nil)
	}
	message := func(rec *httptest.ResponseRecorder) string {
		var out map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out["message"]
	}

	rec := post("")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Missing signature", message(rec))

	rec = post("deadbeef")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid signature", message(rec))
	require.Empty(t, f.repo.Payments())

	rec = post(gateway.Sign(body, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Webhook processed", message(rec))

	rec = post(gateway.Sign(body, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.repo.Payments(), 1)
}
