package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

// MemoryLedger mirrors the SQL ledger's surface for degraded mode: when the
// primary store is unreachable, upgrade attempts continue against process
// memory so the caller still gets a usable checkout redirect. Records here are
// best-effort and reconciled against the provider once storage returns.
type MemoryLedger struct {
	mu        sync.Mutex
	byRecord  map[string]*entity.UpgradeRecord
	bySession map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byRecord:  map[string]*entity.UpgradeRecord{},
		bySession: map[string]string{},
	}
}

func (l *MemoryLedger) Create(_ context.Context, record *entity.UpgradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byRecord[record.RecordID]; ok {
		return ErrRecordAlreadyExists
	}
	copyItem := *record
	l.byRecord[record.RecordID] = &copyItem
	if record.ExternalSessionID != nil {
		l.bySession[*record.ExternalSessionID] = record.RecordID
	}
	return nil
}

func (l *MemoryLedger) FindByRecordID(_ context.Context, recordID string) (*entity.UpgradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.byRecord[recordID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (l *MemoryLedger) FindBySessionID(_ context.Context, sessionID string) (*entity.UpgradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recordID, ok := l.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	item, ok := l.byRecord[recordID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (l *MemoryLedger) AttachSessionID(_ context.Context, recordID, sessionID string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.byRecord[recordID]
	if !ok {
		return ErrRecordNotFound
	}
	if item.ExternalSessionID != nil {
		return nil
	}
	s := sessionID
	item.ExternalSessionID = &s
	item.UpdatedAt = now
	l.bySession[sessionID] = recordID
	return nil
}

func (l *MemoryLedger) SetRedirectURL(_ context.Context, recordID, redirectURL string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.byRecord[recordID]
	if !ok {
		return ErrRecordNotFound
	}
	u := redirectURL
	item.RedirectURL = &u
	item.UpdatedAt = now
	return nil
}

func (l *MemoryLedger) Transition(_ context.Context, record *entity.UpgradeRecord, fromStatus int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.byRecord[record.RecordID]
	if !ok {
		return ErrRecordNotFound
	}
	if item.Status != fromStatus {
		return ErrStaleTransition
	}

	item.Status = record.Status
	item.FailureReason = record.FailureReason
	item.AccountID = record.AccountID
	item.UpdatedAt = record.UpdatedAt
	item.ConfirmedAt = record.ConfirmedAt
	item.AppliedAt = record.AppliedAt

	return nil
}

func (l *MemoryLedger) ListExpiredPending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.UpgradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]*entity.UpgradeRecord, 0)
	for _, item := range l.byRecord {
		if item.Status == entity.UpgradeStatusPending && !item.CreatedAt.After(cutoff) {
			copyItem := *item
			records = append(records, &copyItem)
		}
		if limit > 0 && int32(len(records)) >= limit {
			break
		}
	}
	return records, nil
}

func (l *MemoryLedger) ListForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.UpgradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]*entity.UpgradeRecord, 0)
	for _, item := range l.byRecord {
		pendingOrConfirmed := item.Status == entity.UpgradeStatusPending || item.Status == entity.UpgradeStatusConfirmed
		if pendingOrConfirmed && item.ExternalSessionID != nil && !item.UpdatedAt.After(before) {
			copyItem := *item
			records = append(records, &copyItem)
		}
		if limit > 0 && int32(len(records)) >= limit {
			break
		}
	}
	return records, nil
}
