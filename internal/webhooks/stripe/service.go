package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/internal/users"
	"github.com/angelmondragon/tablerewards-backend/pkg/db"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the webhook reconciliation service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UserRepo          *users.Repository
	StripeClient      subscriptions.StripeBillingClient
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.WebhookMetrics
	Now               func() time.Time
}

// Service applies provider events to local subscription, user and invoice state.
type Service struct {
	billingRepo billing.Repository
	userRepo    *users.Repository
	stripe      subscriptions.StripeBillingClient
	txRunner    txRunner
	logg        *logger.Logger
	metrics     *metrics.WebhookMetrics
	now         func() time.Time
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) (string, error)

var errInvoiceRecorded = errors.New("invoice already recorded")

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		billingRepo: params.BillingRepo,
		userRepo:    params.UserRepo,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         func() time.Time { return now().UTC() },
	}, nil
}

// HandleEvent dispatches a verified event by type. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithEvent(ctx, event.ID, eventType)
	started := time.Now()
	defer func() { s.metrics.ObserveDuration(eventType, time.Since(started)) }()

	handler := s.handlerFor(event.Type)
	if handler == nil {
		s.logg.Info(ctx, "ignoring unhandled stripe event")
		s.metrics.IncEvent(eventType, metrics.OutcomeIgnored)
		return nil
	}

	outcome, err := handler(ctx, event.Data.Raw)
	if err != nil {
		s.logg.Error(ctx, "stripe event failed", err)
		s.metrics.IncEvent(eventType, metrics.OutcomeFailed)
		return err
	}
	s.metrics.IncEvent(eventType, outcome)
	return nil
}

func (s *Service) handlerFor(eventType stripe.EventType) handlerFunc {
	switch eventType {
	case stripe.EventTypeSetupIntentSucceeded:
		return s.handleSetupIntentSucceeded
	case stripe.EventTypeSetupIntentSetupFailed, stripe.EventTypeSetupIntentCanceled:
		return s.handleSetupIntentFailed
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionUpdated
	case stripe.EventTypeInvoicePaid:
		return s.handleInvoicePaid
	default:
		return nil
	}
}

func (s *Service) handleSetupIntentSucceeded(ctx context.Context, raw json.RawMessage) (string, error) {
	var intent stripe.SetupIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode setup intent")
	}
	ctx = s.logg.WithField(ctx, "setup_intent_id", intent.ID)

	sub, err := s.billingRepo.FindSubscriptionBySetupIntentID(ctx, intent.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		s.logg.Info(ctx, "no local subscription for setup intent")
		return metrics.OutcomeIgnored, nil
	}
	if sub.IsLinked() {
		return metrics.OutcomeDuplicate, nil
	}

	customerID := ""
	if intent.Customer != nil {
		customerID = strings.TrimSpace(intent.Customer.ID)
	}
	paymentMethodID := ""
	if intent.PaymentMethod != nil {
		paymentMethodID = strings.TrimSpace(intent.PaymentMethod.ID)
	}
	if customerID == "" || paymentMethodID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "setup intent missing customer or payment method")
	}

	priceID, err := s.resolvePriceID(ctx, sub, intent.Metadata)
	if err != nil {
		return "", err
	}

	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(customerID),
		DefaultPaymentMethod: stripe.String(paymentMethodID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.AddMetadata(subscriptions.MetadataUserID, sub.UserID.String())
	params.AddMetadata(subscriptions.MetadataPlanID, sub.PlanID.String())
	params.AddMetadata(subscriptions.MetadataSubscriptionID, sub.ID.String())
	params.SetIdempotencyKey("sub-create:" + intent.ID)

	remote, err := s.stripe.CreateSubscription(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider subscription")
	}
	ctx = s.logg.WithField(ctx, "stripe_subscription_id", remote.ID)

	now := s.now()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		unlinked, err := repo.UnlinkDuplicateSubscriptions(ctx, remote.ID, sub.ID, now)
		if err != nil {
			return err
		}
		if unlinked > 0 {
			s.logg.Warn(ctx, "unlinked duplicate subscriptions sharing provider id")
		}

		sub.StripeSubscriptionID = &remote.ID
		sub.Status = enums.SubscriptionStatusPending
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return s.userRepo.WithTx(tx).UpdateBillingProfile(ctx, sub.UserID, users.BillingProfile{
			StripeCustomerID:       customerID,
			DefaultPaymentMethodID: paymentMethodID,
			CurrentPlanID:          sub.PlanID,
			SubscriptionStatus:     enums.SubscriptionStatusPending,
		})
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link subscription")
	}

	s.logg.Info(ctx, "subscription linked")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) resolvePriceID(ctx context.Context, sub *models.UserSubscription, metadata map[string]string) (string, error) {
	plan, err := s.billingRepo.FindPlanByID(ctx, sub.PlanID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan != nil && plan.StripePriceID != "" {
		return plan.StripePriceID, nil
	}
	if priceID := strings.TrimSpace(metadata[subscriptions.MetadataPriceID]); priceID != "" {
		return priceID, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeNotFound, "plan price not found")
}

func (s *Service) handleSetupIntentFailed(ctx context.Context, raw json.RawMessage) (string, error) {
	var intent stripe.SetupIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode setup intent")
	}
	ctx = s.logg.WithField(ctx, "setup_intent_id", intent.ID)

	sub, err := s.billingRepo.FindSubscriptionBySetupIntentID(ctx, intent.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		s.logg.Info(ctx, "no local subscription for setup intent")
		return metrics.OutcomeIgnored, nil
	}
	if sub.Status != enums.SubscriptionStatusPending || sub.IsLinked() {
		return metrics.OutcomeDuplicate, nil
	}

	now := s.now()
	sub.Status = enums.SubscriptionStatusFailed
	sub.FailedAt = &now
	if err := s.billingRepo.UpdateSubscription(ctx, sub); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark subscription failed")
	}
	s.logg.Info(ctx, "subscription setup failed")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, raw json.RawMessage) (string, error) {
	var remote stripe.Subscription
	if err := json.Unmarshal(raw, &remote); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	ctx = s.logg.WithField(ctx, "stripe_subscription_id", remote.ID)

	sub, err := s.billingRepo.FindSubscriptionByStripeID(ctx, remote.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		s.logg.Info(ctx, "no local subscription for provider subscription")
		return metrics.OutcomeIgnored, nil
	}
	if !subscriptions.ApplyProviderState(sub, &remote) {
		return metrics.OutcomeIgnored, nil
	}

	if err := subscriptions.SyncProviderState(ctx, s.txRunner, s.billingRepo, s.userRepo, sub); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync subscription")
	}
	s.logg.Info(s.logg.WithField(ctx, "status", string(sub.Status)), "subscription status synced")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, raw json.RawMessage) (string, error) {
	var inv invoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	if strings.TrimSpace(inv.ID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	ctx = s.logg.WithField(ctx, "stripe_invoice_id", inv.ID)

	sub, err := s.resolveInvoiceSubscription(ctx, &inv)
	if err != nil {
		return "", err
	}
	if sub == nil {
		s.logg.Info(ctx, "no local subscription for invoice")
		return metrics.OutcomeIgnored, nil
	}

	exists, err := s.billingRepo.InvoiceExists(ctx, inv.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check invoice")
	}

	now := s.now()
	paidAt := now
	if ts := subscriptions.UnixToTime(inv.StatusTransitions.PaidAt); ts != nil {
		paidAt = *ts
	}
	periodStart := subscriptions.UnixToTime(inv.PeriodStart)
	var periodEnd *time.Time
	if line := inv.firstLine(); line != nil {
		periodEnd = subscriptions.UnixToTime(line.Period.End)
	}
	stripeSubID := inv.subscriptionID()

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		if stripeSubID != "" {
			unlinked, err := repo.UnlinkDuplicateSubscriptions(ctx, stripeSubID, sub.ID, now)
			if err != nil {
				return err
			}
			if unlinked > 0 {
				s.logg.Warn(ctx, "unlinked duplicate subscriptions sharing provider id")
			}
			sub.StripeSubscriptionID = &stripeSubID
		}

		sub.Status = enums.SubscriptionStatusActive
		sub.PlanStartedAt = periodStart
		sub.PlanEndedAt = periodEnd
		sub.PaidAt = &paidAt
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := s.userRepo.WithTx(tx).PromoteToVIP(ctx, sub.UserID, sub.PlanID); err != nil {
			return err
		}
		if exists {
			return nil
		}

		err := repo.CreateInvoice(ctx, &models.Invoice{
			UserID:             sub.UserID,
			UserSubscriptionID: sub.ID,
			StripeInvoiceID:    inv.ID,
			AmountPaid:         inv.AmountPaid,
			Currency:           strings.ToLower(inv.Currency),
			Status:             enums.InvoiceStatusPaid,
			PeriodStart:        periodStart,
			PeriodEnd:          periodEnd,
			PaidAt:             paidAt,
		})
		if db.IsUniqueViolation(err, "") {
			return errInvoiceRecorded
		}
		return err
	})
	if errors.Is(err, errInvoiceRecorded) {
		s.logg.Info(ctx, "invoice recorded by concurrent delivery")
		return metrics.OutcomeDuplicate, nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply invoice")
	}

	if exists {
		s.logg.Info(ctx, "invoice already recorded, status reapplied")
		return metrics.OutcomeDuplicate, nil
	}
	s.logg.Info(ctx, "invoice recorded")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) resolveInvoiceSubscription(ctx context.Context, inv *invoicePayload) (*models.UserSubscription, error) {
	if stripeSubID := inv.subscriptionID(); stripeSubID != "" {
		sub, err := s.billingRepo.FindSubscriptionByStripeID(ctx, stripeSubID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}
		if sub != nil {
			return sub, nil
		}
	}

	userID, planID, ok := inv.ownerIDs()
	if !ok {
		return nil, nil
	}
	sub, err := s.billingRepo.FindSubscriptionByUserAndPlan(ctx, userID, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	return sub, nil
}
