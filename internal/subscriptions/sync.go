package subscriptions

import (
	"context"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"gorm.io/gorm"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SyncProviderState persists a provider-driven change and mirrors it onto the
// owning user. A failed subscription flags the user; a canceled one downgrades
// the user once no other ACTIVE subscription remains.
func SyncProviderState(ctx context.Context, runner TxRunner, billingRepo billing.Repository, userRepo *users.Repository, sub *models.UserSubscription) error {
	return runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := billingRepo.WithTx(tx)
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		userTx := userRepo.WithTx(tx)
		switch sub.Status {
		case enums.SubscriptionStatusFailed:
			return userTx.SetSubscriptionStatus(ctx, sub.UserID, enums.SubscriptionStatusFailed)
		case enums.SubscriptionStatusCanceled:
			active, err := repo.FindLatestSubscriptionByStatus(ctx, sub.UserID, enums.SubscriptionStatusActive)
			if err != nil {
				return err
			}
			if active != nil {
				return nil
			}
			return userTx.DowngradeToFree(ctx, sub.UserID)
		default:
			return nil
		}
	})
}
