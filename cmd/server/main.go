package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/app"
	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/internal/checkout"
	"github.com/odyssey-erp/odyssey-rent/internal/gateway"
	"github.com/odyssey-erp/odyssey-rent/internal/observability"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	stack, err := app.BuildStack(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer stack.Close()

	sessionManager := shared.NewSessionManager(stack.Redis, "rent_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.FlwBaseURL,
		PublicKey:  cfg.FlwPublicKey,
		SecretKey:  cfg.FlwSecretKey,
		SecretHash: cfg.FlwSecretHash,
		Currency:   cfg.FlwCurrency,
		Timeout:    cfg.FlwTimeout,
	}, logger)
	checkoutService := checkout.NewService(checkout.Deps{
		Invoices:    stack.Billing,
		Tenants:     stack.Tenants,
		Gateway:     gatewayClient,
		Audit:       stack.Audit,
		Observer:    metrics,
		RedirectURL: cfg.PaymentRedirectURL(checkout.CallbackPath),
		Clock:       stack.Clock,
		Logger:      logger,
	})

	inspector := asynq.NewInspector(cfg.RedisClientOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		BillingHandler:  billing.NewHandler(logger, stack.Billing),
		CheckoutHandler: checkout.NewHandler(logger, checkoutService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
