package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
)

// User is the account projection the billing flow reads and writes.
type User struct {
	ID                     uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email                  string                    `gorm:"type:text;not null;uniqueIndex"`
	Name                   string                    `gorm:"column:name;not null"`
	Role                   enums.UserRole            `gorm:"column:role;not null;default:'user'"`
	StripeCustomerID       *string                   `gorm:"column:stripe_customer_id"`
	DefaultPaymentMethodID *string                   `gorm:"column:default_payment_method_id"`
	CurrentPlanID          *uuid.UUID                `gorm:"column:current_plan_id;type:uuid"`
	Membership             enums.Membership          `gorm:"column:membership;not null;default:'FREE'"`
	SubscriptionStatus     *enums.SubscriptionStatus `gorm:"column:subscription_status"`
	TrialEndsAt            *time.Time                `gorm:"column:trial_ends_at"`
	CreatedAt              time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
