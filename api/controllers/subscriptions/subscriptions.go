package subscriptions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablerewards-backend/api/middleware"
	"github.com/angelmondragon/tablerewards-backend/api/responses"
	"github.com/angelmondragon/tablerewards-backend/api/validators"
	billingsvc "github.com/angelmondragon/tablerewards-backend/internal/billing"
	subsvc "github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

// InvoiceLister pages through a user's invoice ledger.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, params billingsvc.ListInvoicesParams) (*billingsvc.InvoiceList, error)
}

type subscriptionStartRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

type subscriptionResponse struct {
	ID                   uuid.UUID  `json:"id"`
	PlanID               uuid.UUID  `json:"plan_id"`
	Status               string     `json:"status"`
	StripeSetupIntentID  *string    `json:"stripe_setup_intent_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	PlanStartedAt        *time.Time `json:"plan_started_at,omitempty"`
	PlanEndedAt          *time.Time `json:"plan_ended_at,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	FailedAt             *time.Time `json:"failed_at,omitempty"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

type subscriptionStartResponse struct {
	Subscription  *subscriptionResponse `json:"subscription"`
	ClientSecret  string                `json:"client_secret"`
	SetupIntentID string                `json:"setup_intent_id"`
	CustomerID    string                `json:"customer_id"`
}

type invoiceResponse struct {
	ID                 uuid.UUID  `json:"id"`
	UserSubscriptionID uuid.UUID  `json:"user_subscription_id"`
	StripeInvoiceID    string     `json:"stripe_invoice_id"`
	AmountPaid         int64      `json:"amount_paid"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	PeriodStart        *time.Time `json:"period_start,omitempty"`
	PeriodEnd          *time.Time `json:"period_end,omitempty"`
	PaidAt             time.Time  `json:"paid_at"`
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Cursor   string            `json:"cursor,omitempty"`
}

func SubscriptionStart(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscriptionStartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		planID, err := uuid.Parse(strings.TrimSpace(payload.PlanID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan_id"))
			return
		}

		result, err := svc.Start(r.Context(), userID, planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, subscriptionStartResponse{
			Subscription:  newSubscriptionResponse(result.Subscription),
			ClientSecret:  result.ClientSecret,
			SetupIntentID: result.SetupIntentID,
			CustomerID:    result.CustomerID,
		})
	}
}

func SubscriptionCurrent(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetCurrent(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func SubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelImmediately(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "canceled"})
	}
}

// AdminSubscriptionCancel cancels another user's subscription immediately.
func AdminSubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "userId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		if err := svc.CancelImmediately(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "canceled"})
	}
}

func SubscriptionInvoices(svc InvoiceLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := validators.ParseQueryCursor(r, "cursor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListInvoices(r.Context(), billingsvc.ListInvoicesParams{
			UserID: userID,
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := invoiceListResponse{
			Invoices: make([]invoiceResponse, 0, len(list.Items)),
			Cursor:   list.Cursor,
		}
		for i := range list.Items {
			resp.Invoices = append(resp.Invoices, newInvoiceResponse(&list.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func requireUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	return userID, nil
}

func newSubscriptionResponse(sub *models.UserSubscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                   sub.ID,
		PlanID:               sub.PlanID,
		Status:               string(sub.Status),
		StripeSetupIntentID:  sub.StripeSetupIntentID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		PlanStartedAt:        sub.PlanStartedAt,
		PlanEndedAt:          sub.PlanEndedAt,
		PaidAt:               sub.PaidAt,
		FailedAt:             sub.FailedAt,
		CanceledAt:           sub.CanceledAt,
		CreatedAt:            sub.CreatedAt,
	}
}

func newInvoiceResponse(inv *models.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                 inv.ID,
		UserSubscriptionID: inv.UserSubscriptionID,
		StripeInvoiceID:    inv.StripeInvoiceID,
		AmountPaid:         inv.AmountPaid,
		Currency:           inv.Currency,
		Status:             string(inv.Status),
		PeriodStart:        inv.PeriodStart,
		PeriodEnd:          inv.PeriodEnd,
		PaidAt:             inv.PaidAt,
	}
}
