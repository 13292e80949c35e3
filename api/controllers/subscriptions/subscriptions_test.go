package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablerewards-backend/api/middleware"
	billingsvc "github.com/angelmondragon/tablerewards-backend/internal/billing"
	subsvc "github.com/angelmondragon/tablerewards-backend/internal/subscriptions"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/pagination"
)

func TestSubscriptionStartRequiresAuthenticatedUser(t *testing.T) {
	handler := SubscriptionStart(&stubSubscriptionsService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"plan_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSubscriptionStartValidatesPayload(t *testing.T) {
	service := &stubSubscriptionsService{}
	handler := SubscriptionStart(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"plan_id":"nope"}`))
	req = withUser(req, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if service.startCalls != 0 {
		t.Fatal("service should not be invoked for an invalid payload")
	}
}

func TestSubscriptionStartSuccess(t *testing.T) {
	userID := uuid.New()
	planID := uuid.New()
	setupIntentID := "seti_123"
	service := &stubSubscriptionsService{
		startResult: &subsvc.StartResult{
			Subscription: &models.UserSubscription{
				ID:                  uuid.New(),
				UserID:              userID,
				PlanID:              planID,
				StripeSetupIntentID: &setupIntentID,
				Status:              enums.SubscriptionStatusPending,
			},
			ClientSecret:  "seti_123_secret",
			SetupIntentID: setupIntentID,
			CustomerID:    "cus_1",
		},
	}
	handler := SubscriptionStart(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"plan_id":"`+planID.String()+`"}`))
	req = withUser(req, userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	if service.startUser != userID || service.startPlan != planID {
		t.Fatalf("unexpected service arguments %s %s", service.startUser, service.startPlan)
	}

	var envelope struct {
		Data subscriptionStartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ClientSecret != "seti_123_secret" {
		t.Fatalf("unexpected client secret %q", envelope.Data.ClientSecret)
	}
	if envelope.Data.Subscription == nil || envelope.Data.Subscription.Status != string(enums.SubscriptionStatusPending) {
		t.Fatalf("unexpected subscription payload %+v", envelope.Data.Subscription)
	}
}

func TestSubscriptionStartMapsServiceErrors(t *testing.T) {
	service := &stubSubscriptionsService{
		startErr: pkgerrors.New(pkgerrors.CodeStateConflict, "user already has an active subscription"),
	}
	handler := SubscriptionStart(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"plan_id":"`+uuid.NewString()+`"}`))
	req = withUser(req, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestSubscriptionCurrentEmpty(t *testing.T) {
	handler := SubscriptionCurrent(&stubSubscriptionsService{}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/current", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data *subscriptionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data != nil {
		t.Fatalf("expected null subscription, got %+v", envelope.Data)
	}
}

func TestSubscriptionCancelCallsService(t *testing.T) {
	service := &stubSubscriptionsService{}
	userID := uuid.New()
	handler := SubscriptionCancel(service, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/cancel", nil), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.canceledUser != userID {
		t.Fatalf("expected cancel for %s, got %s", userID, service.canceledUser)
	}
}

func TestAdminSubscriptionCancelUsesPathUser(t *testing.T) {
	service := &stubSubscriptionsService{}
	target := uuid.New()
	handler := AdminSubscriptionCancel(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/"+target.String()+"/subscription/cancel", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("userId", target.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.canceledUser != target {
		t.Fatalf("expected cancel for %s, got %s", target, service.canceledUser)
	}
}

func TestSubscriptionInvoicesPaging(t *testing.T) {
	userID := uuid.New()
	lister := &stubInvoiceLister{
		list: &billingsvc.InvoiceList{
			Items: []models.Invoice{{
				ID:              uuid.New(),
				UserID:          userID,
				StripeInvoiceID: "in_1",
				AmountPaid:      999,
				Currency:        "usd",
				Status:          enums.InvoiceStatusPaid,
				PaidAt:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			}},
			Cursor: "next-page",
		},
	}
	handler := SubscriptionInvoices(lister, nil)
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), ID: uuid.New()})

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/invoices?limit=5&cursor="+cursor, nil), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if lister.params.Limit != 5 || lister.params.Cursor != cursor || lister.params.UserID != userID {
		t.Fatalf("unexpected params %+v", lister.params)
	}

	var envelope struct {
		Data invoiceListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data.Invoices) != 1 || envelope.Data.Invoices[0].StripeInvoiceID != "in_1" {
		t.Fatalf("unexpected invoices %+v", envelope.Data.Invoices)
	}
	if envelope.Data.Cursor != "next-page" {
		t.Fatalf("unexpected cursor %q", envelope.Data.Cursor)
	}
}

func TestSubscriptionInvoicesRejectsBadCursor(t *testing.T) {
	lister := &stubInvoiceLister{}
	handler := SubscriptionInvoices(lister, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/invoices?cursor=not-a-cursor", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if lister.params.UserID != uuid.Nil {
		t.Fatal("lister should not be called for a bad cursor")
	}
}

func TestSubscriptionInvoicesRejectsBadLimit(t *testing.T) {
	handler := SubscriptionInvoices(&stubInvoiceLister{}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/invoices?limit=1000", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

type stubSubscriptionsService struct {
	startCalls   int
	startUser    uuid.UUID
	startPlan    uuid.UUID
	startResult  *subsvc.StartResult
	startErr     error
	current      *models.UserSubscription
	canceledUser uuid.UUID
	cancelErr    error
}

func (s *stubSubscriptionsService) Start(ctx context.Context, userID, planID uuid.UUID) (*subsvc.StartResult, error) {
	s.startCalls++
	s.startUser = userID
	s.startPlan = planID
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.startResult, nil
}

func (s *stubSubscriptionsService) CancelImmediately(ctx context.Context, userID uuid.UUID) error {
	s.canceledUser = userID
	return s.cancelErr
}

func (s *stubSubscriptionsService) GetCurrent(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	return s.current, nil
}

type stubInvoiceLister struct {
	params billingsvc.ListInvoicesParams
	list   *billingsvc.InvoiceList
}

func (s *stubInvoiceLister) ListInvoices(ctx context.Context, params billingsvc.ListInvoicesParams) (*billingsvc.InvoiceList, error) {
	s.params = params
	if s.list == nil {
		return &billingsvc.InvoiceList{Items: []models.Invoice{}}, nil
	}
	return s.list, nil
}
