package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/redis"
)

// DefaultIdempotencyScope namespaces Stripe event ids in Redis.
const DefaultIdempotencyScope = "stripe_webhook"

// IdempotencyGuard marks delivered event ids so redeliveries short-circuit at
// the HTTP boundary. Handlers stay idempotent on their own.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = DefaultIdempotencyScope
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether eventID was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release forgets eventID so a failed delivery can be retried by the provider.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
