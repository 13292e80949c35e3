package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablerewards-backend/api/responses"
	"github.com/angelmondragon/tablerewards-backend/api/validators"
	billingsvc "github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

const (
	maxPlanNameLength        = 120
	maxPlanDescriptionLength = 1000
)

// PlanService describes the plan catalogue methods used by the HTTP controllers.
type PlanService interface {
	ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	CreatePlan(ctx context.Context, input billingsvc.CreatePlanInput) (*models.SubscriptionPlan, error)
}

type planResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	BillingPeriod   string    `json:"billing_period"`
	StripeProductID string    `json:"stripe_product_id"`
	StripePriceID   string    `json:"stripe_price_id"`
	Status          string    `json:"status"`
	CreatedAt       string    `json:"created_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

type planCreateRequest struct {
	Name          string          `json:"name" validate:"required"`
	Description   *string         `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency" validate:"required,currency"`
	BillingPeriod string          `json:"billing_period" validate:"required,billing_period"`
}

func PlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		plans, err := svc.ListPlans(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func AdminPlanCreate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		period, err := enums.ParseBillingPeriod(strings.ToUpper(strings.TrimSpace(payload.BillingPeriod)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing_period"))
			return
		}

		var description *string
		if payload.Description != nil {
			trimmed := validators.SanitizeString(*payload.Description, maxPlanDescriptionLength)
			if trimmed != "" {
				description = &trimmed
			}
		}

		plan, err := svc.CreatePlan(ctx, billingsvc.CreatePlanInput{
			Name:          validators.SanitizeString(payload.Name, maxPlanNameLength),
			Description:   description,
			Price:         payload.Price,
			Currency:      payload.Currency,
			BillingPeriod: period,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, planToResponse(plan))
	}
}

func plansToResponse(plans []models.SubscriptionPlan) []planResponse {
	result := make([]planResponse, 0, len(plans))
	for i := range plans {
		result = append(result, planToResponse(&plans[i]))
	}
	return result
}

func planToResponse(plan *models.SubscriptionPlan) planResponse {
	return planResponse{
		ID:              plan.ID,
		Name:            plan.Name,
		Description:     plan.Description,
		Price:           plan.Price.StringFixed(2),
		Currency:        plan.Currency,
		BillingPeriod:   string(plan.BillingPeriod),
		StripeProductID: plan.StripeProductID,
		StripePriceID:   plan.StripePriceID,
		Status:          string(plan.Status),
		CreatedAt:       plan.CreatedAt.UTC().Format(time.RFC3339),
	}
}
