package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/provider"
	"github.com/vibast-solutions/ms-go-memberships/app/repository"
	"github.com/vibast-solutions/ms-go-memberships/app/types"
)

const (
	providerCallbackStatusProcessed int32 = 10
	providerCallbackStatusRejected  int32 = 20
)

// ResolveConfirmation is the single convergence point for every confirmation
// trigger: the browser redirect, the provider webhook, and the reconcile job
// all land here. The provider's session status is authoritative; pushed
// webhook payloads only tell us which record to look at.
//
// The sequence is idempotent: an applied record short-circuits, a confirmed or
// failed record retries materialization only, and concurrent triggers are
// serialized per record with conditional ledger transitions backing the lock.
func (s *UpgradeService) ResolveConfirmation(ctx context.Context, recordID, sessionID string) (*entity.UpgradeRecord, error) {
	record, ledger, err := s.findRecord(ctx, recordID, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockRecord(record.RecordID)
	defer unlock()

	// Re-read under the lock; another trigger may have advanced the record
	// while we waited.
	record, err = ledger.FindByRecordID(ctx, record.RecordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	switch record.Status {
	case entity.UpgradeStatusApplied, entity.UpgradeStatusExpired:
		return record, nil
	case entity.UpgradeStatusConfirmed, entity.UpgradeStatusFailed:
		return s.materialize(ctx, ledger, record)
	}

	if record.ExternalSessionID == nil || strings.TrimSpace(*record.ExternalSessionID) == "" {
		return record, ErrNotYetPaid
	}

	providerClient, err := s.providerReg.Get(provider.CodeStripe)
	if err != nil {
		return nil, err
	}

	status, err := providerClient.GetSessionStatus(ctx, *record.ExternalSessionID)
	if err != nil {
		return record, fmt.Errorf("provider session status check failed: %w", err)
	}

	now := time.Now().UTC()

	if status.Expired {
		oldStatus := record.Status
		record.Status = entity.UpgradeStatusExpired
		record.UpdatedAt = now
		if err := ledger.Transition(ctx, record, entity.UpgradeStatusPending); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				return s.reresolveAfterStale(ctx, ledger, record.RecordID)
			}
			return nil, err
		}
		s.recordEvent(ctx, record, "upgrade_expired", oldStatus, nil)
		return record, nil
	}

	if !status.Paid {
		return record, ErrNotYetPaid
	}

	oldStatus := record.Status
	record.Status = entity.UpgradeStatusConfirmed
	record.ConfirmedAt = &now
	record.UpdatedAt = now
	if err := ledger.Transition(ctx, record, entity.UpgradeStatusPending); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return s.reresolveAfterStale(ctx, ledger, record.RecordID)
		}
		return nil, err
	}
	s.recordEvent(ctx, record, "payment_confirmed", oldStatus, nil)

	return s.materialize(ctx, ledger, record)
}

// reresolveAfterStale handles losing a transition race: re-read and act on
// whatever the winner left behind.
func (s *UpgradeService) reresolveAfterStale(ctx context.Context, ledger upgradeLedger, recordID string) (*entity.UpgradeRecord, error) {
	record, err := ledger.FindByRecordID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	switch record.Status {
	case entity.UpgradeStatusConfirmed, entity.UpgradeStatusFailed:
		return s.materialize(ctx, ledger, record)
	default:
		return record, nil
	}
}

// materialize applies a confirmed upgrade to the account store: link or create
// the account, activate the membership, and mark the record applied. A store
// outage leaves the record confirmed so the next trigger retries; any other
// failure marks it failed with a reason, and failed records also retry here.
func (s *UpgradeService) materialize(ctx context.Context, ledger upgradeLedger, record *entity.UpgradeRecord) (*entity.UpgradeRecord, error) {
	fromStatus := record.Status
	now := time.Now().UTC()

	account, err := s.resolveAccount(ctx, record, now)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return record, fmt.Errorf("%w: %v", ErrMaterializationFailed, err)
		}
		return s.markMaterializationFailed(ctx, ledger, record, fromStatus, err)
	}

	if err := s.accounts.UpdateMembership(ctx, account.ID, record.TargetTier, entity.MembershipActive, now); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return record, fmt.Errorf("%w: %v", ErrMaterializationFailed, err)
		}
		return s.markMaterializationFailed(ctx, ledger, record, fromStatus, err)
	}

	accountID := account.ID
	record.Status = entity.UpgradeStatusApplied
	record.AccountID = &accountID
	record.FailureReason = nil
	record.AppliedAt = &now
	record.UpdatedAt = now
	if record.ConfirmedAt == nil {
		record.ConfirmedAt = &now
	}

	if err := ledger.Transition(ctx, record, fromStatus); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			// The membership write itself is idempotent, so losing the race
			// here just means another trigger finished the same work.
			return s.reresolveAfterStale(ctx, ledger, record.RecordID)
		}
		return nil, err
	}

	s.recordEvent(ctx, record, "upgrade_applied", fromStatus, nil)
	s.logger.WithFields(map[string]interface{}{
		"record_id":  record.RecordID,
		"account_id": accountID,
		"tier":       types.TierName(record.TargetTier),
	}).Info("Membership upgrade applied")

	return record, nil
}

// resolveAccount finds the account the upgrade belongs to, creating one from
// the captured identity claim when the caller was token-only. An existing row
// with the same email is treated as the caller's account rather than a
// conflict.
func (s *UpgradeService) resolveAccount(ctx context.Context, record *entity.UpgradeRecord, now time.Time) (*entity.Account, error) {
	if record.AccountID != nil {
		account, err := s.accounts.FindByID(ctx, *record.AccountID)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}

	if record.Identity.Persisted && record.Identity.AccountID != nil {
		account, err := s.accounts.FindByID(ctx, *record.Identity.AccountID)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}

	email := strings.ToLower(strings.TrimSpace(record.Identity.Email))
	if email == "" {
		return nil, errors.New("upgrade record carries no account id and no email")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = &entity.Account{
		Email:            email,
		FirstName:        record.Identity.FirstName,
		LastName:         record.Identity.LastName,
		MembershipTier:   entity.TierFree,
		MembershipStatus: entity.MembershipInactive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p := strings.TrimSpace(record.Identity.Provider); p != "" {
		account.IdentityProvider = &p
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAccountAlreadyExists) {
			// Lost a creation race; the row that won is ours.
			existing, findErr := s.accounts.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	return account, nil
}

func (s *UpgradeService) markMaterializationFailed(
	ctx context.Context,
	ledger upgradeLedger,
	record *entity.UpgradeRecord,
	fromStatus int32,
	cause error,
) (*entity.UpgradeRecord, error) {
	if fromStatus == entity.UpgradeStatusFailed {
		// Already failed; a retry that fails again just keeps the record where
		// it is.
		return record, fmt.Errorf("%w: %v", ErrMaterializationFailed, cause)
	}

	now := time.Now().UTC()
	reason := truncate(cause.Error(), 1024)
	record.Status = entity.UpgradeStatusFailed
	record.FailureReason = &reason
	record.UpdatedAt = now

	if err := ledger.Transition(ctx, record, fromStatus); err != nil && !errors.Is(err, repository.ErrStaleTransition) {
		s.logger.WithError(err).WithField("record_id", record.RecordID).Warn("Failed to record materialization failure")
	} else if err == nil {
		s.recordEvent(ctx, record, "materialization_failed", fromStatus, nil)
	}

	return record, fmt.Errorf("%w: %v", ErrMaterializationFailed, cause)
}

// HandleProviderCallback verifies a webhook delivery, persists it for audit,
// and routes the referenced record through ResolveConfirmation. Rejections
// are persisted too so a misconfigured signing secret is visible in the data.
func (s *UpgradeService) HandleProviderCallback(ctx context.Context, req *types.HandleProviderCallbackRequest) (*entity.UpgradeRecord, error) {
	providerClient, err := s.providerReg.GetByName(req.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	payload := []byte(req.Payload)
	signature := strings.TrimSpace(req.Signature)

	parsedEvent, err := providerClient.VerifyAndParseCallback(ctx, payload, signature)
	if err != nil {
		s.persistRejectedCallback(ctx, req, fmt.Sprintf("provider callback validation failed: %v", err))
		return nil, ErrCallbackRejected
	}
	if parsedEvent == nil || (parsedEvent.SessionID == nil && parsedEvent.RecordID == nil) {
		s.persistRejectedCallback(ctx, req, "provider callback carries no session or record reference")
		return nil, ErrCallbackRejected
	}

	recordID := ""
	if parsedEvent.RecordID != nil {
		recordID = strings.TrimSpace(*parsedEvent.RecordID)
	}
	sessionID := ""
	if parsedEvent.SessionID != nil {
		sessionID = strings.TrimSpace(*parsedEvent.SessionID)
	}

	now := time.Now().UTC()
	callback := &entity.ProviderCallback{
		Provider:    providerClient.Name(),
		Signature:   signature,
		PayloadJSON: string(payload),
		Status:      providerCallbackStatusProcessed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if recordID != "" {
		callback.RecordID = &recordID
	}
	if sessionID != "" {
		callback.SessionID = &sessionID
	}
	if err := s.callbackRepo.Create(ctx, callback); err != nil {
		s.logger.WithError(err).Warn("Failed to persist provider callback")
	}

	record, err := s.ResolveConfirmation(ctx, recordID, sessionID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			s.logger.WithFields(map[string]interface{}{
				"provider":   providerClient.Name(),
				"event_type": parsedEvent.EventType,
				"session_id": sessionID,
			}).Warn("Provider callback referenced unknown upgrade record")
		}
		return record, err
	}

	return record, nil
}

func (s *UpgradeService) persistRejectedCallback(ctx context.Context, req *types.HandleProviderCallbackRequest, reason string) {
	now := time.Now().UTC()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "callback rejected"
	}
	trimmedErr := truncate(reason, 1024)
	_ = s.callbackRepo.Create(ctx, &entity.ProviderCallback{
		Provider:    strings.ToLower(strings.TrimSpace(req.Provider)),
		Signature:   strings.TrimSpace(req.Signature),
		PayloadJSON: req.Payload,
		Status:      providerCallbackStatusRejected,
		Error:       &trimmedErr,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
