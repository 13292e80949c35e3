package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"gorm.io/gorm"
)

const defaultPendingTTL = 24 * time.Hour

// PendingExpiryJobParams configures the abandoned setup cleanup.
type PendingExpiryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	BillingRepo billing.Repository
	TTL         time.Duration
	Limit       int
}

// NewPendingExpiryJob marks unlinked PENDING subscriptions older than the TTL
// as FAILED, so abandoned setup flows do not linger as open.
func NewPendingExpiryJob(params PendingExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &pendingExpiryJob{
		logg:        params.Logger,
		db:          params.DB,
		billingRepo: params.BillingRepo,
		ttl:         ttl,
		limit:       limit,
		now:         time.Now,
	}, nil
}

type pendingExpiryJob struct {
	logg        *logger.Logger
	db          txRunner
	billingRepo billing.Repository
	ttl         time.Duration
	limit       int
	now         func() time.Time
}

func (j *pendingExpiryJob) Name() string { return "pending-subscription-expiry" }

func (j *pendingExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.ttl)
	stale, err := j.billingRepo.ListStalePendingSubscriptions(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale pending subscriptions: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.billingRepo.WithTx(tx)
		for i := range stale {
			sub := &stale[i]
			sub.Status = enums.SubscriptionStatusFailed
			sub.FailedAt = &now
			if err := repo.UpdateSubscription(ctx, sub); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("expire pending subscriptions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": len(stale),
	})
	j.logg.Info(logCtx, "pending subscriptions expired")
	return nil
}
