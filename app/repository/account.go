package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

const accountColumns = `
	id, email, first_name, last_name, identity_provider,
	membership_tier, membership_status, membership_activated_at,
	created_at, updated_at
`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (
			email, first_name, last_name, identity_provider,
			membership_tier, membership_status, membership_activated_at,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		account.Email,
		account.FirstName,
		account.LastName,
		nullableStringValue(account.IdentityProvider),
		account.MembershipTier,
		account.MembershipStatus,
		nullableTimeValue(account.MembershipActivatedAt),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrAccountAlreadyExists
		}
		return classifyErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classifyErr(err)
	}
	account.ID = uint64(id)

	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint64) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ? LIMIT 1`
	return r.findOne(ctx, query, email)
}

func (r *AccountRepository) UpdateMembership(ctx context.Context, accountID uint64, tier, status int32, activatedAt time.Time) error {
	query := `
		UPDATE accounts
		SET membership_tier = ?, membership_status = ?, membership_activated_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, tier, status, activatedAt, activatedAt, accountID)
	if err != nil {
		return classifyErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classifyErr(err)
	}
	if affected == 0 {
		// Also hit when the row already holds the target values; treat a
		// still-present row as success.
		existing, findErr := r.FindByID(ctx, accountID)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			return ErrAccountNotFound
		}
	}

	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Account, error) {
	account := &entity.Account{}
	var identityProvider sql.NullString
	var activatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&identityProvider,
		&account.MembershipTier,
		&account.MembershipStatus,
		&activatedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyErr(err)
	}

	account.IdentityProvider = stringPtrFromNull(identityProvider)
	account.MembershipActivatedAt = timePtrFromNull(activatedAt)

	return account, nil
}
