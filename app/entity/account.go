package entity

import "time"

const (
	MembershipInactive int32 = 0
	MembershipActive   int32 = 1
)

type Account struct {
	ID uint64

	Email     string
	FirstName string
	LastName  string

	// IdentityProvider names the mechanism that vouched for this account
	// (e.g. "google"); nil for password credentials.
	IdentityProvider *string

	MembershipTier        int32
	MembershipStatus      int32
	MembershipActivatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
