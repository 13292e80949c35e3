package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
)

// UserSubscription is one subscription attempt for a user and plan. The setup
// intent id correlates provider webhooks back to the row.
type UserSubscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID               uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	StripeSetupIntentID  *string                  `gorm:"column:stripe_setup_intent_id;uniqueIndex"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null;default:'PENDING'"`
	PlanStartedAt        *time.Time               `gorm:"column:plan_started_at"`
	PlanEndedAt          *time.Time               `gorm:"column:plan_ended_at"`
	PaidAt               *time.Time               `gorm:"column:paid_at"`
	FailedAt             *time.Time               `gorm:"column:failed_at"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// IsLinked reports whether a provider subscription is attached.
func (s *UserSubscription) IsLinked() bool {
	return s != nil && s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}
