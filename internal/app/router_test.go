package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rent/internal/checkout"
	"github.com/odyssey-erp/odyssey-rent/internal/gateway"
	"github.com/odyssey-erp/odyssey-rent/internal/observability"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := checkout.NewService(checkout.Deps{
		Gateway: gateway.NewClient(gateway.Config{SecretHash: "hash"}, logger),
		Logger:  logger,
	})
	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		SessionManager:  shared.NewSessionManager(client, "", time.Hour, false),
		CSRFManager:     shared.NewCSRFManager("csrf"),
		CheckoutHandler: checkout.NewHandler(logger, svc),
		Metrics:         observability.NewMetrics(),
	})
}

func TestHomeIssuesCSRFTokenAndSessionCookie(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body homeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.CSRFToken)
	require.Contains(t, rec.Header().Get("Set-Cookie"), "rent_session=")
}

func TestUnsafeRequestsNeedCSRFToken(t *testing.T) {
	router := newTestRouter(t)

	home := httptest.NewRecorder()
	router.ServeHTTP(home, httptest.NewRequest(http.MethodGet, "/", nil))
	var body homeResponse
	require.NoError(t, json.Unmarshal(home.Body.Bytes(), &body))
	cookie := home.Result().Cookies()[0]

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/1/pay", nil)
	req.AddCookie(cookie)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/invoices/1/pay", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, body.CSRFToken)
	router.ServeHTTP(rec, req)
	// Past CSRF; no signed-in user on this session.
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookBypassesCSRFAndSession(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, checkout.WebhookPath, strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Missing signature")
	require.Empty(t, rec.Result().Cookies())
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `rent_http_requests_total{code="200",route="/healthz"} 1`)
}
