package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

func newMemoryRecord(recordID string) *entity.UpgradeRecord {
	now := time.Now().UTC()
	return &entity.UpgradeRecord{
		RecordID: recordID,
		Identity: entity.IdentityClaim{Email: "member@example.com"},
		TargetTier: entity.TierGold,
		Status:     entity.UpgradeStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryLedgerCreateAndLookup(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	record := newMemoryRecord("rec-1")
	if err := ledger.Create(ctx, record); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ledger.Create(ctx, newMemoryRecord("rec-1")); !errors.Is(err, ErrRecordAlreadyExists) {
		t.Fatalf("expected ErrRecordAlreadyExists, got %v", err)
	}

	if err := ledger.AttachSessionID(ctx, "rec-1", "cs_1", time.Now().UTC()); err != nil {
		t.Fatalf("attach session failed: %v", err)
	}

	found, err := ledger.FindBySessionID(ctx, "cs_1")
	if err != nil {
		t.Fatalf("find by session failed: %v", err)
	}
	if found == nil || found.RecordID != "rec-1" {
		t.Fatalf("expected rec-1, got %+v", found)
	}

	missing, err := ledger.FindByRecordID(ctx, "rec-unknown")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record without error, got %+v err=%v", missing, err)
	}
}

func TestMemoryLedgerAttachSessionIDIsWriteOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if err := ledger.Create(ctx, newMemoryRecord("rec-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ledger.AttachSessionID(ctx, "rec-1", "cs_1", time.Now().UTC()); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := ledger.AttachSessionID(ctx, "rec-1", "cs_2", time.Now().UTC()); err != nil {
		t.Fatalf("second attach should be a no-op, got %v", err)
	}

	record, _ := ledger.FindByRecordID(ctx, "rec-1")
	if record.ExternalSessionID == nil || *record.ExternalSessionID != "cs_1" {
		t.Fatalf("expected session cs_1 to stick, got %+v", record.ExternalSessionID)
	}
}

func TestMemoryLedgerTransitionGuardsOnStatus(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if err := ledger.Create(ctx, newMemoryRecord("rec-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	now := time.Now().UTC()
	update := newMemoryRecord("rec-1")
	update.Status = entity.UpgradeStatusConfirmed
	update.ConfirmedAt = &now
	update.UpdatedAt = now

	if err := ledger.Transition(ctx, update, entity.UpgradeStatusPending); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	// Re-running the same guarded transition must report staleness.
	if err := ledger.Transition(ctx, update, entity.UpgradeStatusPending); !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}

	record, _ := ledger.FindByRecordID(ctx, "rec-1")
	if record.Status != entity.UpgradeStatusConfirmed {
		t.Fatalf("expected confirmed status, got %d", record.Status)
	}
}
