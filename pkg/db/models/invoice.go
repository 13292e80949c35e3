package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
)

// Invoice is an append-only ledger row for a paid provider invoice.
type Invoice struct {
	ID                 uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	UserSubscriptionID uuid.UUID           `gorm:"column:user_subscription_id;type:uuid;not null"`
	StripeInvoiceID    string              `gorm:"column:stripe_invoice_id;not null;uniqueIndex"`
	AmountPaid         int64               `gorm:"column:amount_paid;not null"`
	Currency           string              `gorm:"column:currency;not null"`
	Status             enums.InvoiceStatus `gorm:"column:status;not null"`
	PeriodStart        *time.Time          `gorm:"column:period_start"`
	PeriodEnd          *time.Time          `gorm:"column:period_end"`
	PaidAt             time.Time           `gorm:"column:paid_at;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
}
