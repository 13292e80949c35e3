package subscriptions

import (
	"context"
	"errors"

	"github.com/angelmondragon/tablerewards-backend/internal/billing"
	"github.com/stripe/stripe-go/v84"
)

type planProvider struct {
	client StripeBillingClient
}

// NewPlanProvider adapts the Stripe client to the billing catalogue.
func NewPlanProvider(client StripeBillingClient) billing.PlanProvider {
	return &planProvider{client: client}
}

// CreatePlanPrice creates a product and a recurring price for the plan.
func (p *planProvider) CreatePlanPrice(ctx context.Context, input billing.PlanPriceInput) (*billing.PlanPrice, error) {
	if p.client == nil {
		return nil, errors.New("stripe client not configured")
	}

	productParams := &stripe.ProductParams{Name: stripe.String(input.Name)}
	if input.Description != "" {
		productParams.Description = stripe.String(input.Description)
	}
	productParams.AddMetadata(MetadataPlanID, input.PlanID.String())
	productParams.SetIdempotencyKey("plan-product:" + input.PlanID.String())

	prod, err := p.client.CreateProduct(ctx, productParams)
	if err != nil {
		return nil, err
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		UnitAmount: stripe.Int64(input.UnitAmount),
		Currency:   stripe.String(input.Currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(input.Interval),
		},
	}
	priceParams.AddMetadata(MetadataPlanID, input.PlanID.String())
	priceParams.SetIdempotencyKey("plan-price:" + input.PlanID.String())

	pr, err := p.client.CreatePrice(ctx, priceParams)
	if err != nil {
		return nil, err
	}

	return &billing.PlanPrice{ProductID: prod.ID, PriceID: pr.ID}, nil
}
