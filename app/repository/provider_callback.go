package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

type ProviderCallbackRepository struct {
	db DBTX
}

func NewProviderCallbackRepository(db DBTX) *ProviderCallbackRepository {
	return &ProviderCallbackRepository{db: db}
}

func (r *ProviderCallbackRepository) Create(ctx context.Context, callback *entity.ProviderCallback) error {
	query := `
		INSERT INTO provider_callbacks (
			record_id, session_id, provider, signature, payload_json, status, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(callback.RecordID),
		nullableStringValue(callback.SessionID),
		callback.Provider,
		callback.Signature,
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
		callback.UpdatedAt,
	)
	if err != nil {
		return classifyErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classifyErr(err)
	}
	callback.ID = uint64(id)

	return nil
}
