package subscriptions

import (
	"context"
	"errors"
	"net/http"

	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/tablerewards-backend/pkg/stripe"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/product"
	"github.com/stripe/stripe-go/v84/setupintent"
	"github.com/stripe/stripe-go/v84/subscription"
)

const breakerName = "stripe"

// StripeBillingClient exposes the subset of Stripe operations required by the billing flows.
type StripeBillingClient interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
}

type stripeClientWrapper struct {
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.ProviderMetrics
}

// NewStripeClient wraps the Stripe resource clients behind a circuit breaker.
func NewStripeClient(api *pkgstripe.Client, cfg config.BreakerConfig, m *metrics.ProviderMetrics) StripeBillingClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{
		breaker: newBreaker(cfg, m),
		metrics: m,
	}
}

func newBreaker(cfg config.BreakerConfig, m *metrics.ProviderMetrics) *gobreaker.CircuitBreaker[any] {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(name, int(to))
		},
		IsSuccessful: isBreakerSuccess,
	})
}

// isBreakerSuccess keeps client-side Stripe errors (bad params, declined cards)
// from tripping the breaker; only transport and 5xx failures count.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError
	}
	return false
}

func call[T any](w *stripeClientWrapper, operation string, fn func() (T, error)) (T, error) {
	result, err := w.breaker.Execute(func() (any, error) {
		return fn()
	})
	w.metrics.IncCall(operation, err)
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (w *stripeClientWrapper) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "create_customer", func() (*stripe.Customer, error) {
		return customer.New(params)
	})
}

func (w *stripeClientWrapper) CreateSetupIntent(ctx context.Context, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "create_setup_intent", func() (*stripe.SetupIntent, error) {
		return setupintent.New(params)
	})
}

func (w *stripeClientWrapper) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "create_subscription", func() (*stripe.Subscription, error) {
		return subscription.New(params)
	})
}

func (w *stripeClientWrapper) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return call(w, "get_subscription", func() (*stripe.Subscription, error) {
		return subscription.Get(id, params)
	})
}

func (w *stripeClientWrapper) CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "cancel_subscription", func() (*stripe.Subscription, error) {
		return subscription.Cancel(id, params)
	})
}

func (w *stripeClientWrapper) CreateProduct(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "create_product", func() (*stripe.Product, error) {
		return product.New(params)
	})
}

func (w *stripeClientWrapper) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	if params != nil {
		params.Context = ctx
	}
	return call(w, "create_price", func() (*stripe.Price, error) {
		return price.New(params)
	})
}
