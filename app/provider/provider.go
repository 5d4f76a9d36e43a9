package provider

import "context"

const (
	CodeStripe int32 = 1
)

type SessionInput struct {
	RecordID      string
	TierName      string
	AmountCents   int64
	Currency      string
	CustomerEmail string

	SuccessURL string
	CancelURL  string
}

type SessionOutput struct {
	SessionID   string
	RedirectURL string
}

// SessionStatus is the provider's authoritative view of a checkout session.
// Paid is the only signal that advances a ledger record; RawStatus is kept for
// diagnostics and polling responses.
type SessionStatus struct {
	Paid      bool
	Expired   bool
	RawStatus string
}

// CallbackEvent identifies which checkout session a webhook delivery refers
// to. Resolution re-queries the provider rather than trusting the pushed
// status, so the event only needs to carry identifiers.
type CallbackEvent struct {
	ProviderEventID *string
	EventType       string
	SessionID       *string
	RecordID        *string
}

type Provider interface {
	Code() int32
	Name() string
	CreateCheckoutSession(ctx context.Context, input *SessionInput) (*SessionOutput, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
	VerifyAndParseCallback(ctx context.Context, payload []byte, signature string) (*CallbackEvent, error)
}
