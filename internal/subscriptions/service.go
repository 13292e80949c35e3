package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// Service defines the user-facing subscription lifecycle.
type Service interface {
	Start(ctx context.Context, userID, planID uuid.UUID) (*StartResult, error)
	CancelImmediately(ctx context.Context, userID uuid.UUID) error
	GetCurrent(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UserRepo          *users.Repository
	StripeClient      StripeBillingClient
	TransactionRunner TxRunner
	Logger            *logger.Logger
	Metrics           *metrics.ProviderMetrics
	Now               func() time.Time
}

// StartResult is returned to the client so it can confirm the setup intent.
type StartResult struct {
	Subscription  *models.UserSubscription `json:"subscription"`
	ClientSecret  string                   `json:"client_secret"`
	SetupIntentID string                   `json:"setup_intent_id"`
	CustomerID    string                   `json:"customer_id"`
}

type service struct {
	billingRepo billing.Repository
	userRepo    *users.Repository
	stripe      StripeBillingClient
	txRunner    TxRunner
	logg        *logger.Logger
	metrics     *metrics.ProviderMetrics
	now         func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repo required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		billingRepo: params.BillingRepo,
		userRepo:    params.UserRepo,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         func() time.Time { return now().UTC() },
	}, nil
}

// Start opens a subscription attempt: it makes sure the user has a provider
// customer, creates an off-session setup intent and records a PENDING row
// keyed by the setup intent id.
func (s *service) Start(ctx context.Context, userID, planID uuid.UUID) (*StartResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	plan, err := s.billingRepo.FindPlanByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not available")
	}

	active, err := s.billingRepo.FindLatestSubscriptionByStatus(ctx, userID, enums.SubscriptionStatusActive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
	}
	if active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "user already has an active subscription")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	subscriptionID := uuid.New()
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata(MetadataUserID, userID.String())
	params.AddMetadata(MetadataPlanID, planID.String())
	params.AddMetadata(MetadataPriceID, plan.StripePriceID)
	params.AddMetadata(MetadataSubscriptionID, subscriptionID.String())
	params.SetIdempotencyKey("seti-create:" + subscriptionID.String())

	intent, err := s.stripe.CreateSetupIntent(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create setup intent")
	}

	sub := &models.UserSubscription{
		ID:                  subscriptionID,
		UserID:              userID,
		PlanID:              planID,
		StripeSetupIntentID: trimmedPtr(intent.ID),
		Status:              enums.SubscriptionStatusPending,
	}
	if err := s.billingRepo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist subscription")
	}

	return &StartResult{
		Subscription:  sub,
		ClientSecret:  intent.ClientSecret,
		SetupIntentID: intent.ID,
		CustomerID:    customerID,
	}, nil
}

func (s *service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && strings.TrimSpace(*user.StripeCustomerID) != "" {
		return strings.TrimSpace(*user.StripeCustomerID), nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
	}
	params.AddMetadata(MetadataUserID, user.ID.String())
	params.SetIdempotencyKey("cus-create:" + user.ID.String())

	cust, err := s.stripe.CreateCustomer(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	if err := s.userRepo.SetStripeCustomerID(ctx, user.ID, cust.ID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist customer id")
	}
	return cust.ID, nil
}

// CancelImmediately ends the user's current subscription right away. A failed
// provider cancel is logged and counted but never blocks the local downgrade.
func (s *service) CancelImmediately(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	sub, err := s.billingRepo.FindLatestOpenSubscription(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load current subscription")
	}

	var remote *stripe.Subscription
	if sub.IsLinked() {
		remote, err = s.stripe.CancelSubscription(ctx, *sub.StripeSubscriptionID, &stripe.SubscriptionCancelParams{
			InvoiceNow: stripe.Bool(false),
			Prorate:    stripe.Bool(false),
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "stripe_subscription_id", *sub.StripeSubscriptionID), "provider cancel failed, continuing with local cancel", err)
			s.metrics.IncSwallowedCancelFailure()
			remote = nil
		}
	}

	now := s.now()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if sub != nil {
			sub.Status = enums.SubscriptionStatusCanceled
			sub.CanceledAt = &now
			sub.PlanEndedAt = cancelEndTime(sub.PlanEndedAt, remote, now)
			if err := s.billingRepo.WithTx(tx).UpdateSubscription(ctx, sub); err != nil {
				return err
			}
		}
		return s.userRepo.WithTx(tx).DowngradeToFree(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel subscription")
	}

	s.logg.Info(ctx, "subscription canceled")
	return nil
}

// cancelEndTime prefers the provider's end timestamp, then an end that has
// already passed, and otherwise ends the plan now.
func cancelEndTime(existing *time.Time, remote *stripe.Subscription, now time.Time) *time.Time {
	if remote != nil {
		if endedAt := UnixToTime(remote.EndedAt); endedAt != nil {
			return endedAt
		}
	}
	if existing != nil && !existing.After(now) {
		return existing
	}
	return &now
}

// GetCurrent returns the latest ACTIVE or PENDING subscription, or nil.
func (s *service) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.billingRepo.FindLatestOpenSubscription(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load current subscription")
	}
	return sub, nil
}
