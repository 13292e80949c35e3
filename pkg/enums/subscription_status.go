package enums

import "fmt"

// SubscriptionStatus is the local lifecycle state of a user subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "PENDING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusFailed   SubscriptionStatus = "FAILED"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusFailed,
	SubscriptionStatusCanceled,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the subscription still counts against the user.
func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPending
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
