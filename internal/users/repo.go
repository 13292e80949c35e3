package users

import (
	"context"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes the user persistence operations the billing flow needs.
type Repository struct {
	db *gorm.DB
}

// BillingProfile is the provider linkage written once a setup intent succeeds.
type BillingProfile struct {
	StripeCustomerID       string
	DefaultPaymentMethodID string
	CurrentPlanID          uuid.UUID
	SubscriptionStatus     enums.SubscriptionStatus
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetStripeCustomerID stores the provider customer created for the user.
func (r *Repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.updateFields(ctx, id, map[string]any{
		"stripe_customer_id": customerID,
	})
}

// UpdateBillingProfile links the user to a provider customer, payment method and plan.
func (r *Repository) UpdateBillingProfile(ctx context.Context, id uuid.UUID, profile BillingProfile) error {
	fields := map[string]any{
		"current_plan_id":     profile.CurrentPlanID,
		"subscription_status": profile.SubscriptionStatus,
	}
	if profile.StripeCustomerID != "" {
		fields["stripe_customer_id"] = profile.StripeCustomerID
	}
	if profile.DefaultPaymentMethodID != "" {
		fields["default_payment_method_id"] = profile.DefaultPaymentMethodID
	}
	return r.updateFields(ctx, id, fields)
}

// PromoteToVIP grants VIP membership with an ACTIVE subscription and clears any trial end.
func (r *Repository) PromoteToVIP(ctx context.Context, id uuid.UUID, planID uuid.UUID) error {
	return r.updateFields(ctx, id, map[string]any{
		"membership":          enums.MembershipVIP,
		"subscription_status": enums.SubscriptionStatusActive,
		"current_plan_id":     planID,
		"trial_ends_at":       nil,
	})
}

// SetSubscriptionStatus mirrors a subscription status onto the user.
func (r *Repository) SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus) error {
	return r.updateFields(ctx, id, map[string]any{
		"subscription_status": status,
	})
}

// DowngradeToFree marks the user as not subscribed.
func (r *Repository) DowngradeToFree(ctx context.Context, id uuid.UUID) error {
	return r.updateFields(ctx, id, map[string]any{
		"membership":          enums.MembershipFree,
		"subscription_status": enums.SubscriptionStatusCanceled,
	})
}

func (r *Repository) updateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
