package types

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

const (
	TierFree     = "free"
	TierGold     = "gold"
	TierDiamond  = "diamond"
	TierPlatinum = "platinum"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusApplied   = "applied"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

func ParseTier(raw string) (int32, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TierGold:
		return entity.TierGold, nil
	case TierDiamond:
		return entity.TierDiamond, nil
	case TierPlatinum:
		return entity.TierPlatinum, nil
	case TierFree:
		return entity.TierFree, nil
	default:
		return 0, errors.New("unknown membership tier")
	}
}

func TierName(tier int32) string {
	switch tier {
	case entity.TierGold:
		return TierGold
	case entity.TierDiamond:
		return TierDiamond
	case entity.TierPlatinum:
		return TierPlatinum
	default:
		return TierFree
	}
}

func StatusName(status int32) string {
	switch status {
	case entity.UpgradeStatusConfirmed:
		return StatusConfirmed
	case entity.UpgradeStatusApplied:
		return StatusApplied
	case entity.UpgradeStatusFailed:
		return StatusFailed
	case entity.UpgradeStatusExpired:
		return StatusExpired
	default:
		return StatusPending
	}
}

type InitiateUpgradeRequest struct {
	Tier string `json:"tier"`
}

func NewInitiateUpgradeRequestFromContext(ctx echo.Context) (*InitiateUpgradeRequest, error) {
	var body InitiateUpgradeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.Tier = strings.ToLower(strings.TrimSpace(body.Tier))
	return &body, nil
}

func (r *InitiateUpgradeRequest) Validate() error {
	if strings.TrimSpace(r.Tier) == "" {
		return errors.New("tier is required")
	}
	if _, err := ParseTier(r.Tier); err != nil {
		return err
	}
	if r.Tier == TierFree {
		return errors.New("tier must be a paid tier")
	}
	return nil
}

// ResolveConfirmationRequest carries whichever identifier the trigger knows.
// Record id wins when both are present.
type ResolveConfirmationRequest struct {
	RecordID  string `json:"record_id"`
	SessionID string `json:"session_id"`
}

func NewResolveConfirmationRequestFromContext(ctx echo.Context) (*ResolveConfirmationRequest, error) {
	var body ResolveConfirmationRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if strings.TrimSpace(body.RecordID) == "" {
		body.RecordID = strings.TrimSpace(ctx.QueryParam("record_id"))
	}
	if strings.TrimSpace(body.SessionID) == "" {
		body.SessionID = strings.TrimSpace(ctx.QueryParam("session_id"))
	}
	body.RecordID = strings.TrimSpace(body.RecordID)
	body.SessionID = strings.TrimSpace(body.SessionID)
	return &body, nil
}

func (r *ResolveConfirmationRequest) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" && strings.TrimSpace(r.SessionID) == "" {
		return errors.New("record_id or session_id is required")
	}
	return nil
}

type GetStatusRequest struct {
	RecordID  string
	SessionID string
}

func NewGetStatusRequestFromContext(ctx echo.Context) (*GetStatusRequest, error) {
	return &GetStatusRequest{
		RecordID:  strings.TrimSpace(ctx.QueryParam("record_id")),
		SessionID: strings.TrimSpace(ctx.QueryParam("session_id")),
	}, nil
}

func (r *GetStatusRequest) Validate() error {
	if r.RecordID == "" && r.SessionID == "" {
		return errors.New("record_id or session_id is required")
	}
	return nil
}

type HandleProviderCallbackRequest struct {
	Provider  string
	Signature string
	Payload   string
}

func NewHandleProviderCallbackRequestFromContext(ctx echo.Context) (*HandleProviderCallbackRequest, error) {
	provider := strings.TrimSpace(strings.ToLower(ctx.Param("provider")))
	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	req := &HandleProviderCallbackRequest{
		Provider:  provider,
		Signature: signature,
		Payload:   string(rawBody),
	}

	// An edge gateway may forward the original payload and signature wrapped
	// in a JSON envelope.
	var body struct {
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
	}
	if len(rawBody) > 0 && json.Unmarshal(rawBody, &body) == nil {
		if strings.TrimSpace(body.Payload) != "" {
			req.Payload = body.Payload
		}
		if strings.TrimSpace(body.Signature) != "" {
			req.Signature = strings.TrimSpace(body.Signature)
		}
	}

	return req, nil
}

func (r *HandleProviderCallbackRequest) Validate() error {
	if strings.TrimSpace(r.Provider) == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(r.Signature) == "" {
		return errors.New("provider signature is required")
	}
	if strings.TrimSpace(r.Payload) == "" {
		return errors.New("payload is required")
	}
	return nil
}

type AccountSummary struct {
	ID                    uint64 `json:"id"`
	Email                 string `json:"email"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	MembershipTier        string `json:"membership_tier"`
	MembershipStatus      string `json:"membership_status"`
	MembershipActivatedAt string `json:"membership_activated_at,omitempty"`
}

type Upgrade struct {
	RecordID          string          `json:"record_id"`
	ExternalSessionID string          `json:"external_session_id,omitempty"`
	Email             string          `json:"email"`
	TargetTier        string          `json:"target_tier"`
	AmountCents       int64           `json:"amount_cents"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	RedirectURL       string          `json:"redirect_url,omitempty"`
	Account           *AccountSummary `json:"account,omitempty"`
	CreatedAt         string          `json:"created_at"`
	ConfirmedAt       string          `json:"confirmed_at,omitempty"`
	AppliedAt         string          `json:"applied_at,omitempty"`
}

type InitiateUpgradeResponse struct {
	RecordID          string `json:"record_id"`
	ExternalSessionID string `json:"external_session_id,omitempty"`
	RedirectURL       string `json:"redirect_url"`
}

type UpgradeEnvelopeResponse struct {
	Upgrade *Upgrade `json:"upgrade"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
