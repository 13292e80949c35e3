package enums

import "fmt"

// BillingPeriod defines the renewal cadence of a subscription plan.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "MONTHLY"
	BillingPeriodYearly  BillingPeriod = "YEARLY"
)

var validBillingPeriods = []BillingPeriod{
	BillingPeriodMonthly,
	BillingPeriodYearly,
}

// String implements fmt.Stringer.
func (b BillingPeriod) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingPeriod.
func (b BillingPeriod) IsValid() bool {
	for _, candidate := range validBillingPeriods {
		if candidate == b {
			return true
		}
	}
	return false
}

// RecurringInterval returns the provider's recurring interval name.
func (b BillingPeriod) RecurringInterval() string {
	if b == BillingPeriodYearly {
		return "year"
	}
	return "month"
}

// ParseBillingPeriod converts raw input into a BillingPeriod.
func ParseBillingPeriod(value string) (BillingPeriod, error) {
	for _, candidate := range validBillingPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing period %q", value)
}
