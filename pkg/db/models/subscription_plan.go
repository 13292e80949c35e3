package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
)

// SubscriptionPlan is a purchasable plan linked to a provider product/price.
type SubscriptionPlan struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string              `gorm:"column:name;not null"`
	Description     *string             `gorm:"column:description"`
	Price           decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency        string              `gorm:"column:currency;not null"`
	BillingPeriod   enums.BillingPeriod `gorm:"column:billing_period;not null"`
	StripeProductID string              `gorm:"column:stripe_product_id;not null"`
	StripePriceID   string              `gorm:"column:stripe_price_id;not null;uniqueIndex"`
	Status          enums.PlanStatus    `gorm:"column:status;not null;default:'ACTIVE'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
