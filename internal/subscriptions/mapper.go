package subscriptions

import (
	"strings"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// Metadata keys attached to provider objects created by the start flow.
const (
	MetadataUserID         = "userId"
	MetadataPlanID         = "planId"
	MetadataPriceID        = "priceId"
	MetadataSubscriptionID = "subscriptionId"
)

var providerStatuses = map[stripe.SubscriptionStatus]enums.SubscriptionStatus{
	stripe.SubscriptionStatusActive:            enums.SubscriptionStatusActive,
	stripe.SubscriptionStatusPastDue:           enums.SubscriptionStatusFailed,
	stripe.SubscriptionStatusCanceled:          enums.SubscriptionStatusCanceled,
	stripe.SubscriptionStatusIncomplete:        enums.SubscriptionStatusCanceled,
	stripe.SubscriptionStatusIncompleteExpired: enums.SubscriptionStatusCanceled,
	stripe.SubscriptionStatusUnpaid:            enums.SubscriptionStatusCanceled,
}

// MapProviderStatus converts a Stripe subscription status into the local
// vocabulary. ok is false for statuses that must not trigger a transition.
func MapProviderStatus(status stripe.SubscriptionStatus) (enums.SubscriptionStatus, bool) {
	mapped, ok := providerStatuses[stripe.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(status))))]
	return mapped, ok
}

// ApplyProviderState copies the provider status and end timestamps onto target.
// It reports whether anything changed.
func ApplyProviderState(target *models.UserSubscription, remote *stripe.Subscription) bool {
	if target == nil || remote == nil {
		return false
	}
	changed := false

	if status, ok := MapProviderStatus(remote.Status); ok && status != target.Status {
		target.Status = status
		changed = true
	}
	if endedAt := toTimePtr(remote.EndedAt); endedAt != nil && !sameTime(target.PlanEndedAt, endedAt) {
		target.PlanEndedAt = endedAt
		changed = true
	}
	if canceledAt := toTimePtr(remote.CanceledAt); canceledAt != nil && !sameTime(target.CanceledAt, canceledAt) {
		target.CanceledAt = canceledAt
		changed = true
	}
	return changed
}

// UUIDFromMetadata parses a uuid stored under key in provider metadata.
func UUIDFromMetadata(metadata map[string]string, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, key+" missing from metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key+" metadata")
	}
	return id, nil
}

// UnixToTime converts a provider epoch timestamp, returning nil for zero.
func UnixToTime(ts int64) *time.Time {
	return toTimePtr(ts)
}

func toTimePtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func trimmedPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
