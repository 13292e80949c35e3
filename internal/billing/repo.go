package billing

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/angelmondragon/tablerewards-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles billing persistence for plans, user subscriptions and invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error
	FindPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindPlanByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error)
	ListPlans(ctx context.Context, params ListPlansQuery) ([]models.SubscriptionPlan, error)

	CreateSubscription(ctx context.Context, subscription *models.UserSubscription) error
	UpdateSubscription(ctx context.Context, subscription *models.UserSubscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error)
	FindSubscriptionBySetupIntentID(ctx context.Context, setupIntentID string) (*models.UserSubscription, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error)
	FindSubscriptionByUserAndPlan(ctx context.Context, userID, planID uuid.UUID) (*models.UserSubscription, error)
	FindLatestOpenSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	FindLatestSubscriptionByStatus(ctx context.Context, userID uuid.UUID, status enums.SubscriptionStatus) (*models.UserSubscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error)
	ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.UserSubscription, error)
	ListStalePendingSubscriptions(ctx context.Context, cutoff time.Time, limit int) ([]models.UserSubscription, error)
	UnlinkDuplicateSubscriptions(ctx context.Context, stripeSubscriptionID string, keepID uuid.UUID, at time.Time) (int64, error)

	InvoiceExists(ctx context.Context, stripeInvoiceID string) (bool, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	ListInvoices(ctx context.Context, params ListInvoicesQuery) ([]models.Invoice, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// ListPlansQuery configures plan list queries.
type ListPlansQuery struct {
	Status *enums.PlanStatus
}

// ListInvoicesQuery configures invoice ledger queries.
type ListInvoicesQuery struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	return firstOrNil(&plan, r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error)
}

func (r *repository) FindPlanByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error) {
	if priceID == "" {
		return nil, nil
	}
	var plan models.SubscriptionPlan
	return firstOrNil(&plan, r.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error)
}

func (r *repository) ListPlans(ctx context.Context, params ListPlansQuery) ([]models.SubscriptionPlan, error) {
	query := r.db.WithContext(ctx).Model(&models.SubscriptionPlan{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var plans []models.SubscriptionPlan
	if err := query.Order("price ASC, name ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.UserSubscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error)
}

func (r *repository) FindSubscriptionBySetupIntentID(ctx context.Context, setupIntentID string) (*models.UserSubscription, error) {
	if setupIntentID == "" {
		return nil, nil
	}
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).
		Where("stripe_setup_intent_id = ?", setupIntentID).
		First(&sub).Error)
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.UserSubscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error)
}

func (r *repository) FindSubscriptionByUserAndPlan(ctx context.Context, userID, planID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ?", userID, planID).
		Order("created_at DESC").
		First(&sub).Error)
}

func (r *repository) FindLatestOpenSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, openStatuses()).
		Order("created_at DESC").
		First(&sub).Error)
}

func (r *repository) FindLatestSubscriptionByStatus(ctx context.Context, userID uuid.UUID, status enums.SubscriptionStatus) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	return firstOrNil(&sub, r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC").
		First(&sub).Error)
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.UserSubscription, error) {
	if limit <= 0 {
		limit = 250
	}
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-lookback)

	var subs []models.UserSubscription
	if err := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''").
		Where("(status IN ? OR plan_ended_at >= ?)", openStatuses(), cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListStalePendingSubscriptions(ctx context.Context, cutoff time.Time, limit int) ([]models.UserSubscription, error) {
	if limit <= 0 {
		limit = 250
	}
	var subs []models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusPending).
		Where("stripe_subscription_id IS NULL").
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// UnlinkDuplicateSubscriptions cancels every row other than keepID that still
// references stripeSubscriptionID and clears its link.
func (r *repository) UnlinkDuplicateSubscriptions(ctx context.Context, stripeSubscriptionID string, keepID uuid.UUID, at time.Time) (int64, error) {
	if stripeSubscriptionID == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("stripe_subscription_id = ? AND id <> ?", stripeSubscriptionID, keepID).
		Updates(map[string]any{
			"status":                 enums.SubscriptionStatusCanceled,
			"stripe_subscription_id": nil,
			"canceled_at":            at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) InvoiceExists(ctx context.Context, stripeInvoiceID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) ListInvoices(ctx context.Context, params ListInvoicesQuery) ([]models.Invoice, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("user_id = ?", params.UserID)
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var invoices []models.Invoice
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&invoices).Error; err != nil {
		return nil, nil, err
	}

	if len(invoices) > limit {
		last := invoices[limit-1]
		invoices = invoices[:limit]
		return invoices, &pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		}, nil
	}

	return invoices, nil, nil
}

func openStatuses() []enums.SubscriptionStatus {
	return []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusPending,
	}
}

func firstOrNil[T any](dest *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dest, nil
}
