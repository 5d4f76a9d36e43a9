package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

type UpgradeEventRepository struct {
	db DBTX
}

func NewUpgradeEventRepository(db DBTX) *UpgradeEventRepository {
	return &UpgradeEventRepository{db: db}
}

func (r *UpgradeEventRepository) Create(ctx context.Context, event *entity.UpgradeEvent) error {
	query := `
		INSERT INTO upgrade_events (
			record_id, event_type, old_status, new_status, provider_event_id, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.RecordID,
		event.EventType,
		nullableInt32Value(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.ProviderEventID),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return classifyErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classifyErr(err)
	}
	event.ID = uint64(id)

	return nil
}
