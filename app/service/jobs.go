package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/provider"
	"github.com/vibast-solutions/ms-go-memberships/app/repository"
)

// RunExpirePendingBatch marks pending records older than the configured
// timeout as expired. Records whose session turns out to be paid are left for
// the reconcile pass instead of being expired blind.
func (s *UpgradeService) RunExpirePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.cfg.PendingTimeout)
	items, err := s.ledger.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, record := range items {
		if record == nil || record.Status != entity.UpgradeStatusPending {
			continue
		}

		if record.ExternalSessionID != nil && strings.TrimSpace(*record.ExternalSessionID) != "" {
			if providerClient, provErr := s.providerReg.Get(provider.CodeStripe); provErr == nil {
				if status, statusErr := providerClient.GetSessionStatus(ctx, *record.ExternalSessionID); statusErr == nil && status.Paid {
					continue
				}
			}
		}

		oldStatus := record.Status
		record.Status = entity.UpgradeStatusExpired
		record.UpdatedAt = now

		if err := s.ledger.Transition(ctx, record, entity.UpgradeStatusPending); err != nil {
			if errors.Is(err, repository.ErrStaleTransition) {
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		s.recordEvent(ctx, record, "upgrade_expired", oldStatus, nil)
	}

	return firstErr
}

// RunReconcileBatch sweeps records that stalled in pending or confirmed, for
// example because the browser never returned and the webhook was lost, and
// drives each through the normal confirmation path.
func (s *UpgradeService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.cfg.ReconcileStaleAfter)
	items, err := s.ledger.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, record := range items {
		if record == nil {
			continue
		}

		_, err := s.ResolveConfirmation(ctx, record.RecordID, "")
		if err != nil && !errors.Is(err, ErrNotYetPaid) {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
