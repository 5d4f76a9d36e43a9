package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

const upgradeColumns = `
	record_id, external_session_id,
	identity_account_id, identity_persisted, email, first_name, last_name, identity_provider,
	target_tier, amount_cents, currency,
	status, failure_reason, account_id, redirect_url,
	created_at, updated_at, confirmed_at, applied_at
`

type UpgradeLedgerRepository struct {
	db DBTX
}

func NewUpgradeLedgerRepository(db DBTX) *UpgradeLedgerRepository {
	return &UpgradeLedgerRepository{db: db}
}

func (r *UpgradeLedgerRepository) Create(ctx context.Context, record *entity.UpgradeRecord) error {
	query := `
		INSERT INTO upgrade_records (` + upgradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.RecordID,
		nullableStringValue(record.ExternalSessionID),
		nullableUint64Value(record.Identity.AccountID),
		record.Identity.Persisted,
		record.Identity.Email,
		record.Identity.FirstName,
		record.Identity.LastName,
		record.Identity.Provider,
		record.TargetTier,
		record.AmountCents,
		record.Currency,
		record.Status,
		nullableStringValue(record.FailureReason),
		nullableUint64Value(record.AccountID),
		nullableStringValue(record.RedirectURL),
		record.CreatedAt,
		record.UpdatedAt,
		nullableTimeValue(record.ConfirmedAt),
		nullableTimeValue(record.AppliedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrRecordAlreadyExists
		}
		return classifyErr(err)
	}

	return nil
}

func (r *UpgradeLedgerRepository) FindByRecordID(ctx context.Context, recordID string) (*entity.UpgradeRecord, error) {
	query := `SELECT ` + upgradeColumns + ` FROM upgrade_records WHERE record_id = ?`
	return r.findOne(ctx, query, recordID)
}

func (r *UpgradeLedgerRepository) FindBySessionID(ctx context.Context, sessionID string) (*entity.UpgradeRecord, error) {
	query := `SELECT ` + upgradeColumns + ` FROM upgrade_records WHERE external_session_id = ? LIMIT 1`
	return r.findOne(ctx, query, sessionID)
}

// AttachSessionID links the external checkout session to a record. The
// session id is written exactly once; a second attach is a no-op.
func (r *UpgradeLedgerRepository) AttachSessionID(ctx context.Context, recordID, sessionID string, now time.Time) error {
	query := `
		UPDATE upgrade_records
		SET external_session_id = ?, updated_at = ?
		WHERE record_id = ? AND external_session_id IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, sessionID, now, recordID)
	return classifyErr(err)
}

func (r *UpgradeLedgerRepository) SetRedirectURL(ctx context.Context, recordID, redirectURL string, now time.Time) error {
	query := `UPDATE upgrade_records SET redirect_url = ?, updated_at = ? WHERE record_id = ?`
	_, err := r.db.ExecContext(ctx, query, redirectURL, now, recordID)
	return classifyErr(err)
}

// Transition writes the record's mutable fields, guarded on the status the
// caller read. Zero rows affected means another writer transitioned the
// record first; the caller gets ErrStaleTransition and must re-read.
func (r *UpgradeLedgerRepository) Transition(ctx context.Context, record *entity.UpgradeRecord, fromStatus int32) error {
	query := `
		UPDATE upgrade_records
		SET status = ?, failure_reason = ?, account_id = ?,
			updated_at = ?, confirmed_at = ?, applied_at = ?
		WHERE record_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Status,
		nullableStringValue(record.FailureReason),
		nullableUint64Value(record.AccountID),
		record.UpdatedAt,
		nullableTimeValue(record.ConfirmedAt),
		nullableTimeValue(record.AppliedAt),
		record.RecordID,
		fromStatus,
	)
	if err != nil {
		return classifyErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyErr(err)
	}
	if affected == 0 {
		return ErrStaleTransition
	}

	return nil
}

func (r *UpgradeLedgerRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.UpgradeRecord, error) {
	query := `
		SELECT ` + upgradeColumns + `
		FROM upgrade_records
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.UpgradeStatusPending, cutoff, limit)
}

// ListForReconcile returns stale pending and confirmed records that already
// have a checkout session, so the reconcile job can re-query the provider for
// deliveries that never arrived.
func (r *UpgradeLedgerRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.UpgradeRecord, error) {
	query := `
		SELECT ` + upgradeColumns + `
		FROM upgrade_records
		WHERE status IN (?, ?)
		  AND external_session_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.UpgradeStatusPending, entity.UpgradeStatusConfirmed, before, limit)
}

func (r *UpgradeLedgerRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.UpgradeRecord, error) {
	record := &entity.UpgradeRecord{}
	err := scanUpgradeRecord(r.db.QueryRowContext(ctx, query, args...), record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr(err)
	}
	return record, nil
}

func (r *UpgradeLedgerRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.UpgradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	records := make([]*entity.UpgradeRecord, 0)
	for rows.Next() {
		item := &entity.UpgradeRecord{}
		if err := scanUpgradeRecord(rows, item); err != nil {
			return nil, err
		}
		records = append(records, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUpgradeRecord(scan rowScanner, record *entity.UpgradeRecord) error {
	var sessionID sql.NullString
	var identityAccountID sql.NullInt64
	var failureReason sql.NullString
	var accountID sql.NullInt64
	var redirectURL sql.NullString
	var confirmedAt sql.NullTime
	var appliedAt sql.NullTime

	err := scan.Scan(
		&record.RecordID,
		&sessionID,
		&identityAccountID,
		&record.Identity.Persisted,
		&record.Identity.Email,
		&record.Identity.FirstName,
		&record.Identity.LastName,
		&record.Identity.Provider,
		&record.TargetTier,
		&record.AmountCents,
		&record.Currency,
		&record.Status,
		&failureReason,
		&accountID,
		&redirectURL,
		&record.CreatedAt,
		&record.UpdatedAt,
		&confirmedAt,
		&appliedAt,
	)
	if err != nil {
		return err
	}

	record.ExternalSessionID = stringPtrFromNull(sessionID)
	record.Identity.AccountID = uint64PtrFromNull(identityAccountID)
	record.FailureReason = stringPtrFromNull(failureReason)
	record.AccountID = uint64PtrFromNull(accountID)
	record.RedirectURL = stringPtrFromNull(redirectURL)
	record.ConfirmedAt = timePtrFromNull(confirmedAt)
	record.AppliedAt = timePtrFromNull(appliedAt)

	return nil
}
