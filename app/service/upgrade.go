package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/factory"
	"github.com/vibast-solutions/ms-go-memberships/app/provider"
	"github.com/vibast-solutions/ms-go-memberships/app/repository"
	"github.com/vibast-solutions/ms-go-memberships/app/types"
	"github.com/vibast-solutions/ms-go-memberships/config"
)

const defaultBatchSize = int32(100)

type upgradeLedger interface {
	Create(ctx context.Context, record *entity.UpgradeRecord) error
	FindByRecordID(ctx context.Context, recordID string) (*entity.UpgradeRecord, error)
	FindBySessionID(ctx context.Context, sessionID string) (*entity.UpgradeRecord, error)
	AttachSessionID(ctx context.Context, recordID, sessionID string, now time.Time) error
	SetRedirectURL(ctx context.Context, recordID, redirectURL string, now time.Time) error
	Transition(ctx context.Context, record *entity.UpgradeRecord, fromStatus int32) error
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.UpgradeRecord, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.UpgradeRecord, error)
}

type accountStore interface {
	Create(ctx context.Context, account *entity.Account) error
	FindByID(ctx context.Context, id uint64) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	UpdateMembership(ctx context.Context, accountID uint64, tier, status int32, activatedAt time.Time) error
}

type upgradeEventRepository interface {
	Create(ctx context.Context, event *entity.UpgradeEvent) error
}

type providerCallbackRepository interface {
	Create(ctx context.Context, callback *entity.ProviderCallback) error
}

type UpgradeService struct {
	ledger       upgradeLedger
	fallback     *repository.MemoryLedger
	accounts     accountStore
	eventRepo    upgradeEventRepository
	callbackRepo providerCallbackRepository
	providerReg  *provider.Registry
	cfg          config.MembershipsConfig
	baseURL      string
	logger       logrus.FieldLogger

	// recordLocks serializes the read-check-act confirmation sequence per
	// record id; the conditional ledger transitions are the second line of
	// defense.
	mu          sync.Mutex
	recordLocks map[string]*sync.Mutex
}

func NewUpgradeService(
	ledger upgradeLedger,
	accounts accountStore,
	eventRepo upgradeEventRepository,
	callbackRepo providerCallbackRepository,
	providerReg *provider.Registry,
	cfg config.MembershipsConfig,
	baseURL string,
) *UpgradeService {
	return &UpgradeService{
		ledger:       ledger,
		fallback:     repository.NewMemoryLedger(),
		accounts:     accounts,
		eventRepo:    eventRepo,
		callbackRepo: callbackRepo,
		providerReg:  providerReg,
		cfg:          cfg,
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:       factory.NewModuleLogger("upgrade-service"),
		recordLocks:  map[string]*sync.Mutex{},
	}
}

// ResolveIdentity normalizes a caller identity claim against the account
// store. A well-formed claim never fails: when the store is unreachable or
// the referenced account is gone, the claim degrades to token-only and
// materialization sorts it out later.
func (s *UpgradeService) ResolveIdentity(ctx context.Context, claim entity.IdentityClaim) (entity.IdentityClaim, error) {
	email := strings.ToLower(strings.TrimSpace(claim.Email))
	if email == "" {
		return entity.IdentityClaim{}, fmt.Errorf("%w: email is required", ErrInvalidIdentity)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return entity.IdentityClaim{}, fmt.Errorf("%w: malformed email", ErrInvalidIdentity)
	}
	claim.Email = email
	claim.FirstName = strings.TrimSpace(claim.FirstName)
	claim.LastName = strings.TrimSpace(claim.LastName)

	if claim.AccountID != nil {
		account, err := s.accounts.FindByID(ctx, *claim.AccountID)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				// Trust the signed token while the store is down.
				return claim, nil
			}
			return entity.IdentityClaim{}, err
		}
		if account != nil {
			claim.Persisted = true
			return claim, nil
		}
		claim.AccountID = nil
		claim.Persisted = false
		return claim, nil
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			claim.AccountID = nil
			claim.Persisted = false
			return claim, nil
		}
		return entity.IdentityClaim{}, err
	}
	if account != nil {
		claim.AccountID = &account.ID
		claim.Persisted = true
		return claim, nil
	}

	claim.Persisted = false
	return claim, nil
}

// InitiateUpgrade creates a pending ledger record and an external checkout
// session for it. When the primary ledger is unreachable the record lives in
// the in-memory fallback so the caller still gets a redirect URL.
func (s *UpgradeService) InitiateUpgrade(ctx context.Context, claim entity.IdentityClaim, req *types.InitiateUpgradeRequest) (*entity.UpgradeRecord, error) {
	targetTier, err := types.ParseTier(req.Tier)
	if err != nil || targetTier == entity.TierFree {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTier, req.Tier)
	}

	resolved, err := s.ResolveIdentity(ctx, claim)
	if err != nil {
		return nil, err
	}

	if resolved.Persisted && resolved.AccountID != nil {
		account, findErr := s.accounts.FindByID(ctx, *resolved.AccountID)
		if findErr == nil && account != nil && account.MembershipTier >= targetTier {
			return nil, fmt.Errorf("%w: account already holds %s or higher", ErrInvalidRequest, types.TierName(account.MembershipTier))
		}
	}

	now := time.Now().UTC()
	record := &entity.UpgradeRecord{
		RecordID:    uuid.NewString(),
		Identity:    resolved,
		TargetTier:  targetTier,
		AmountCents: s.priceFor(targetTier),
		Currency:    strings.ToUpper(strings.TrimSpace(s.cfg.Currency)),
		Status:      entity.UpgradeStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ledger := s.ledger
	if err := ledger.Create(ctx, record); err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		s.logger.WithError(err).Warn("Primary ledger unavailable, degrading to in-memory record")
		ledger = s.fallback
		if err := ledger.Create(ctx, record); err != nil {
			return nil, err
		}
	}

	providerClient, err := s.providerReg.Get(provider.CodeStripe)
	if err != nil {
		return nil, err
	}

	session, err := providerClient.CreateCheckoutSession(ctx, &provider.SessionInput{
		RecordID:      record.RecordID,
		TierName:      types.TierName(targetTier),
		AmountCents:   record.AmountCents,
		Currency:      record.Currency,
		CustomerEmail: resolved.Email,
		SuccessURL:    s.successURL(record.RecordID),
		CancelURL:     s.cancelURL(record.RecordID),
	})
	if err != nil {
		// The record stays pending without a session id so status polling
		// reports the attempt instead of not-found.
		return nil, fmt.Errorf("%w: %v", ErrCheckoutInitiationFailed, err)
	}

	if err := ledger.AttachSessionID(ctx, record.RecordID, session.SessionID, now); err != nil {
		s.logger.WithError(err).WithField("record_id", record.RecordID).Warn("Failed to attach checkout session to ledger record")
	}
	if err := ledger.SetRedirectURL(ctx, record.RecordID, session.RedirectURL, now); err != nil {
		s.logger.WithError(err).WithField("record_id", record.RecordID).Warn("Failed to store redirect url")
	}

	sessionID := session.SessionID
	redirectURL := session.RedirectURL
	record.ExternalSessionID = &sessionID
	record.RedirectURL = &redirectURL

	_ = s.eventRepo.Create(ctx, &entity.UpgradeEvent{
		RecordID:  record.RecordID,
		EventType: "upgrade_initiated",
		NewStatus: record.Status,
		CreatedAt: now,
	})

	return record, nil
}

// GetStatus is the read-only polling surface. Lookup precedence is record id
// first, then session id. Unknown identifiers are a normal outcome.
func (s *UpgradeService) GetStatus(ctx context.Context, recordID, sessionID string) (*entity.UpgradeRecord, *entity.Account, error) {
	record, _, err := s.findRecord(ctx, recordID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var account *entity.Account
	if record.AccountID != nil {
		account, err = s.accounts.FindByID(ctx, *record.AccountID)
		if err != nil && !errors.Is(err, ErrStoreUnavailable) {
			return nil, nil, err
		}
	}

	return record, account, nil
}

// findRecord looks a record up by record id first, then session id, checking
// the primary ledger and then the in-memory fallback.
func (s *UpgradeService) findRecord(ctx context.Context, recordID, sessionID string) (*entity.UpgradeRecord, upgradeLedger, error) {
	recordID = strings.TrimSpace(recordID)
	sessionID = strings.TrimSpace(sessionID)
	if recordID == "" && sessionID == "" {
		return nil, nil, ErrInvalidRequest
	}

	for _, ledger := range []upgradeLedger{s.ledger, s.fallback} {
		var record *entity.UpgradeRecord
		var err error

		if recordID != "" {
			record, err = ledger.FindByRecordID(ctx, recordID)
		}
		if record == nil && err == nil && sessionID != "" {
			record, err = ledger.FindBySessionID(ctx, sessionID)
		}
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				continue
			}
			return nil, nil, err
		}
		if record != nil {
			return record, ledger, nil
		}
	}

	return nil, nil, ErrRecordNotFound
}

func (s *UpgradeService) lockRecord(recordID string) func() {
	s.mu.Lock()
	lock, ok := s.recordLocks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		s.recordLocks[recordID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *UpgradeService) priceFor(tier int32) int64 {
	switch tier {
	case entity.TierDiamond:
		return s.cfg.DiamondPriceCents
	case entity.TierPlatinum:
		return s.cfg.PlatinumPriceCents
	default:
		return s.cfg.GoldPriceCents
	}
}

func (s *UpgradeService) successURL(recordID string) string {
	base := strings.TrimSpace(s.cfg.SuccessURL)
	if base == "" {
		base = s.baseURL + "/upgrade/success"
	}
	return base + "?record_id=" + url.QueryEscape(recordID) + "&session_id={CHECKOUT_SESSION_ID}"
}

func (s *UpgradeService) cancelURL(recordID string) string {
	base := strings.TrimSpace(s.cfg.CancelURL)
	if base == "" {
		base = s.baseURL + "/upgrade/cancel"
	}
	return base + "?record_id=" + url.QueryEscape(recordID)
}

func (s *UpgradeService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *UpgradeService) recordEvent(ctx context.Context, record *entity.UpgradeRecord, eventType string, oldStatus int32, providerEventID *string) {
	oldStatusPtr := &oldStatus
	if oldStatus == record.Status {
		oldStatusPtr = nil
	}
	_ = s.eventRepo.Create(ctx, &entity.UpgradeEvent{
		RecordID:        record.RecordID,
		EventType:       eventType,
		OldStatus:       oldStatusPtr,
		NewStatus:       record.Status,
		ProviderEventID: providerEventID,
		CreatedAt:       time.Now().UTC(),
	})
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
