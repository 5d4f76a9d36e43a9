package entity

import "time"

type UpgradeEvent struct {
	ID uint64

	RecordID string

	EventType string

	OldStatus *int32
	NewStatus int32

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}
