package entity

import "time"

type ProviderCallback struct {
	ID uint64

	RecordID  *string
	SessionID *string

	Provider    string
	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
