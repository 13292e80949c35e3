package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubscriptionReconcileJobParams configures the subscription sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	BillingRepo  billing.Repository
	UserRepo     *users.Repository
	StripeClient subscriptions.StripeBillingClient
	Limit        int
	Lookback     time.Duration
}

// NewSubscriptionReconcileJob builds a job that pulls provider state for
// linked subscriptions, catching up on webhooks that never arrived.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:        params.Logger,
		db:          params.DB,
		billingRepo: params.BillingRepo,
		userRepo:    params.UserRepo,
		stripe:      params.StripeClient,
		limit:       limit,
		lookback:    lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg        *logger.Logger
	db          txRunner
	billingRepo billing.Repository
	userRepo    *users.Repository
	stripe      subscriptions.StripeBillingClient
	limit       int
	lookback    time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	snapshot, err := j.billingRepo.ListSubscriptionsForReconciliation(ctx, j.limit, j.lookback)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}
	var errs error
	synced := 0
	for i := range snapshot {
		changed, err := j.reconcileSubscription(ctx, &snapshot[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			synced++
		}
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(snapshot),
		"synced":     synced,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcileSubscription(ctx context.Context, sub *models.UserSubscription) (bool, error) {
	if !sub.IsLinked() {
		return false, nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"subscription_id":        sub.ID,
		"user_id":                sub.UserID,
		"stripe_subscription_id": *sub.StripeSubscriptionID,
	})
	remote, err := j.stripe.GetSubscription(logCtx, *sub.StripeSubscriptionID)
	if err != nil {
		return false, fmt.Errorf("fetch stripe subscription %s: %w", *sub.StripeSubscriptionID, err)
	}
	if remote == nil {
		j.logg.Info(logCtx, "stripe subscription not found; skipping")
		return false, nil
	}

	previous := sub.Status
	if !subscriptions.ApplyProviderState(sub, remote) {
		return false, nil
	}
	if err := subscriptions.SyncProviderState(logCtx, j.db, j.billingRepo, j.userRepo, sub); err != nil {
		return false, fmt.Errorf("persist subscription %s: %w", sub.ID, err)
	}
	successCtx := j.logg.WithFields(logCtx, map[string]any{
		"from_status":   string(previous),
		"to_status":     string(sub.Status),
		"stripe_status": string(remote.Status),
	})
	if sub.Status == enums.SubscriptionStatusActive && previous != enums.SubscriptionStatusActive {
		j.logg.Warn(successCtx, "subscription active at provider before invoice webhook")
		return true, nil
	}
	j.logg.Info(successCtx, "subscription reconciled")
	return true, nil
}
