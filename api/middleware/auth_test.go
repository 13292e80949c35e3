package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/auth"
	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/google/uuid"
)

func TestAuthRejectsMissingToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	userID := uuid.New()
	token := mintTestToken(t, cfg, userID, enums.UserRoleAdmin)

	var captured struct {
		user string
		role string
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.role != string(enums.UserRoleAdmin) {
		t.Fatalf("expected role admin got %s", captured.role)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleUser)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleAdmin)))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestUserUUIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserUUIDFromContext(req.Context()); ok {
		t.Fatal("expected missing user id")
	}
	ctx := WithUserID(req.Context(), "not-a-uuid")
	if _, ok := UserUUIDFromContext(ctx); ok {
		t.Fatal("expected malformed user id to be rejected")
	}
	id := uuid.New()
	got, ok := UserUUIDFromContext(WithUserID(req.Context(), id.String()))
	if !ok || got != id {
		t.Fatalf("expected %s got %s", id, got)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
