package domain

import "strings"

// MembershipLevel is the loyalty tier reported by the customer service.
type MembershipLevel string

const (
	MembershipBronze   MembershipLevel = "bronze"
	MembershipSilver   MembershipLevel = "silver"
	MembershipGold     MembershipLevel = "gold"
	MembershipPlatinum MembershipLevel = "platinum"
)

// ParseMembershipLevel normalises a tier string; unknown values are bronze.
func ParseMembershipLevel(s string) MembershipLevel {
	switch MembershipLevel(strings.ToLower(strings.TrimSpace(s))) {
	case MembershipSilver:
		return MembershipSilver
	case MembershipGold:
		return MembershipGold
	case MembershipPlatinum:
		return MembershipPlatinum
	default:
		return MembershipBronze
	}
}

// CustomerInfo is what the customer collaborator returns for pricing.
type CustomerInfo struct {
	MembershipLevel MembershipLevel `json:"membershipLevel"`
	TotalSpent      int64           `json:"totalSpent"`
	LoyaltyPoints   int64           `json:"loyaltyPoints"`
}

// ContactInfo is the customer snapshot stored on an order.
type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}
