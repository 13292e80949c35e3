package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/tablerewards-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

const maxWebhookBodyBytes = int64(1 << 20)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventGuard marks provider event ids as processed.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// SigningSecretProvider supplies the webhook signing secret.
type SigningSecretProvider interface {
	SigningSecret() string
}

// StripeWebhook verifies and dispatches Stripe billing events. A failed handler
// releases the event id so the provider's retry is processed again.
func StripeWebhook(svc StripeWebhookService, client SigningSecretProvider, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeTooLarge, err, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(logg.WithEvent(ctx, event.ID, string(event.Type)), "stripe event already processed")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event marker", releaseErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
