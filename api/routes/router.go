package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tablerewards-backend/api/controllers"
	billingcontrollers "github.com/angelmondragon/tablerewards-backend/api/controllers/billing"
	subscriptioncontrollers "github.com/angelmondragon/tablerewards-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/tablerewards-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tablerewards-backend/api/middleware"
	subscriptionsvc "github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/redis"
)

// BillingService is the plan catalogue plus invoice ledger surface.
type BillingService interface {
	billingcontrollers.PlanService
	subscriptioncontrollers.InvoiceLister
}

// RouterParams groups the dependencies mounted on the HTTP router.
type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   controllers.Pinger
	Redis                controllers.Pinger
	IdempotencyStore     redis.IdempotencyStore
	RateLimiter          redis.RateLimiter
	SubscriptionsService subscriptionsvc.Service
	BillingService       BillingService
	StripeWebhookService webhookcontrollers.StripeWebhookService
	StripeSigner         webhookcontrollers.SigningSecretProvider
	StripeWebhookGuard   webhookcontrollers.EventGuard
	MetricsHandler       http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	startPolicy := middleware.NewRateLimitPolicy(
		"subscription_start",
		cfg.RateLimit.SubscriptionStartWindow,
		cfg.RateLimit.SubscriptionStartLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookService, p.StripeSigner, p.StripeWebhookGuard, logg))
	})

	r.Get("/api/v1/plans", billingcontrollers.PlansList(p.BillingService, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/subscriptions", func(r chi.Router) {
			r.With(middleware.RateLimit(startPolicy, p.RateLimiter, logg)).
				Post("/", subscriptioncontrollers.SubscriptionStart(p.SubscriptionsService, logg))
			r.Get("/current", subscriptioncontrollers.SubscriptionCurrent(p.SubscriptionsService, logg))
			r.Post("/cancel", subscriptioncontrollers.SubscriptionCancel(p.SubscriptionsService, logg))
			r.Get("/invoices", subscriptioncontrollers.SubscriptionInvoices(p.BillingService, logg))
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/ping", controllers.AdminPing())
			r.Post("/plans", billingcontrollers.AdminPlanCreate(p.BillingService, logg))
			r.Post("/users/{userId}/subscription/cancel", subscriptioncontrollers.AdminSubscriptionCancel(p.SubscriptionsService, logg))
		})
	})

	return r
}
