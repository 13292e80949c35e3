package enums

import "fmt"

// Membership is the tier granted to a user.
type Membership string

const (
	MembershipFree Membership = "FREE"
	MembershipVIP  Membership = "VIP"
)

var validMemberships = []Membership{
	MembershipFree,
	MembershipVIP,
}

// String implements fmt.Stringer.
func (m Membership) String() string {
	return string(m)
}

// IsValid reports whether the value is a known Membership.
func (m Membership) IsValid() bool {
	for _, candidate := range validMemberships {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMembership converts raw input into a Membership.
func ParseMembership(value string) (Membership, error) {
	for _, candidate := range validMemberships {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership %q", value)
}
