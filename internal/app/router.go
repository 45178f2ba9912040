package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/checkout"
	"github.com/odyssey-erp/odyssey-rent/internal/observability"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	BillingHandler  *billing.Handler
	CheckoutHandler *checkout.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

type homeResponse struct {
	Status    string               `json:"status"`
	CSRFToken string               `json:"csrf_token,omitempty"`
	Flash     *shared.FlashMessage `json:"flash,omitempty"`
}

// NewRouter constructs the chi.Router with the server defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		MachinePaths:   []string{checkout.WebhookPath},
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Landing target for payment redirects: surfaces the pending flash and
	// hands browser clients their CSRF token.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		out := homeResponse{Status: "ok"}
		if sess != nil {
			token, err := params.CSRFManager.EnsureToken(sess)
			if err != nil {
				params.Logger.Error("issue csrf token", slog.Any("error", err))
			}
			out.CSRFToken = token
			out.Flash = sess.PopFlash()
		}
		httpx.JSON(w, http.StatusOK, out)
	})

	r.Route("/invoices", func(r chi.Router) {
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.CheckoutHandler != nil {
			params.CheckoutHandler.MountInvoiceRoutes(r)
		}
	})
	if params.CheckoutHandler != nil {
		params.CheckoutHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
