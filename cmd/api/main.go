package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tablerewards-backend/api/routes"
	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	stripewebhook "github.com/angelmondragon/tablerewards-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/db"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/metrics"
	"github.com/angelmondragon/tablerewards-backend/pkg/migrate"
	"github.com/angelmondragon/tablerewards-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/tablerewards-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	providerMetrics := metrics.NewProviderMetrics(prometheus.DefaultRegisterer)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	billingRepo := billing.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())
	billingClient := subscriptions.NewStripeClient(stripeClient, cfg.Breaker, providerMetrics)

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:     billingRepo,
		Provider: subscriptions.NewPlanProvider(billingClient),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:       billingRepo,
		UserRepo:          userRepo,
		StripeClient:      billingClient,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           providerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		UserRepo:          userRepo,
		StripeClient:      billingClient,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           webhookMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, stripewebhook.DefaultIdempotencyScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			IdempotencyStore:     redisClient,
			RateLimiter:          redisClient,
			SubscriptionsService: subscriptionsService,
			BillingService:       billingService,
			StripeWebhookService: webhookService,
			StripeSigner:         stripeClient,
			StripeWebhookGuard:   webhookGuard,
			MetricsHandler:       promhttp.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
