package entity

import "time"

// Membership tiers, ordered lowest to highest.
const (
	TierFree     int32 = 0
	TierGold     int32 = 1
	TierDiamond  int32 = 2
	TierPlatinum int32 = 3
)

// Upgrade record statuses. Transitions are forward-only: a record never
// returns to pending once it has left it.
const (
	UpgradeStatusPending   int32 = 1
	UpgradeStatusConfirmed int32 = 2
	UpgradeStatusApplied   int32 = 3
	UpgradeStatusFailed    int32 = 4
	UpgradeStatusExpired   int32 = 5
)

// IdentityClaim is the caller identity captured at initiation time. When
// Persisted is false the caller only exists in a signed session token and an
// account row is created lazily during materialization.
type IdentityClaim struct {
	AccountID *uint64
	Persisted bool
	Email     string
	FirstName string
	LastName  string
	Provider  string
}

type UpgradeRecord struct {
	RecordID string

	ExternalSessionID *string

	Identity IdentityClaim

	TargetTier  int32
	AmountCents int64
	Currency    string

	Status        int32
	FailureReason *string

	// AccountID is set once materialization linked or created an account.
	AccountID *uint64

	RedirectURL *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	AppliedAt   *time.Time
}
