package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanPriceInput describes the recurring price to create at the provider.
type PlanPriceInput struct {
	Name        string
	Description string
	UnitAmount  int64
	Currency    string
	Interval    string
	PlanID      uuid.UUID
}

// PlanPrice holds the provider identifiers for a created plan price.
type PlanPrice struct {
	ProductID string
	PriceID   string
}

// PlanProvider creates catalogue entries at the billing provider.
type PlanProvider interface {
	CreatePlanPrice(ctx context.Context, input PlanPriceInput) (*PlanPrice, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo     Repository
	Provider PlanProvider
}

// Service exposes the plan catalogue and invoice ledger.
type Service struct {
	repo     Repository
	provider PlanProvider
}

// CreatePlanInput is the admin payload for a new plan.
type CreatePlanInput struct {
	Name          string
	Description   *string
	Price         decimal.Decimal
	Currency      string
	BillingPeriod enums.BillingPeriod
}

// ListInvoicesParams configures a page of the user's invoice ledger.
type ListInvoicesParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// InvoiceList is one page of invoices plus the cursor for the next page.
type InvoiceList struct {
	Items  []models.Invoice `json:"items"`
	Cursor string           `json:"cursor,omitempty"`
}

var zeroDecimalCurrencies = map[string]struct{}{
	"jpy": {},
	"krw": {},
	"vnd": {},
	"clp": {},
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Provider == nil {
		return nil, errors.New("plan provider is required")
	}
	return &Service{repo: params.Repo, provider: params.Provider}, nil
}

// ListPlans returns the plans open for subscription.
func (s *Service) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	status := enums.PlanStatusActive
	plans, err := s.repo.ListPlans(ctx, ListPlansQuery{Status: &status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return plans, nil
}

// CreatePlan registers the plan with the provider and persists it locally.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.SubscriptionPlan, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if !input.BillingPeriod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing period")
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}

	unitAmount, err := ToMinorUnits(input.Price, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price precision")
	}

	planID := uuid.New()
	description := ""
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}

	price, err := s.provider.CreatePlanPrice(ctx, PlanPriceInput{
		Name:        name,
		Description: description,
		UnitAmount:  unitAmount,
		Currency:    currency,
		Interval:    input.BillingPeriod.RecurringInterval(),
		PlanID:      planID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider price")
	}

	plan := &models.SubscriptionPlan{
		ID:              planID,
		Name:            name,
		Description:     input.Description,
		Price:           input.Price,
		Currency:        currency,
		BillingPeriod:   input.BillingPeriod,
		StripeProductID: price.ProductID,
		StripePriceID:   price.PriceID,
		Status:          enums.PlanStatusActive,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist plan")
	}
	return plan, nil
}

// ListInvoices returns a page of the user's invoice ledger, newest first.
func (s *Service) ListInvoices(ctx context.Context, params ListInvoicesParams) (*InvoiceList, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, next, err := s.repo.ListInvoices(ctx, ListInvoicesQuery{
		UserID: params.UserID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}

	result := &InvoiceList{Items: items}
	if result.Items == nil {
		result.Items = []models.Invoice{}
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// ToMinorUnits converts a major-unit amount into the provider's integer minor units.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	scaled := amount
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; !ok {
		scaled = amount.Shift(2)
	}
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, errors.New("amount has more precision than the currency allows")
	}
	return scaled.IntPart(), nil
}
