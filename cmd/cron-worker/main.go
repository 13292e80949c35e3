package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/cron"
	"github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/db"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/metrics"
	"github.com/angelmondragon/tablerewards-backend/pkg/migrate"
	"github.com/angelmondragon/tablerewards-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/tablerewards-backend/pkg/stripe"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	billingRepo := billing.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	reconcileJob, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:       logg,
		DB:           dbClient,
		BillingRepo:  billingRepo,
		UserRepo:     userRepo,
		StripeClient: subscriptions.NewStripeClient(stripeClient, cfg.Breaker, providerMetrics),
		Limit:        cfg.Cron.ReconcileBatchSize,
		Lookback:     cfg.Cron.ReconcileLookback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewPendingExpiryJob(cron.PendingExpiryJobParams{
		Logger:      logg,
		DB:          dbClient,
		BillingRepo: billingRepo,
		TTL:         cfg.Cron.PendingSubscriptionTTL,
		Limit:       cfg.Cron.ReconcileBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob, expiryJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"lockOwner":   lock.Owner(),
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
