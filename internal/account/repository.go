package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digibank/digibank/internal/infra"
)

// Repository persists account profiles. Lookups by email and listings only see
// active accounts.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
	GetByNumber(ctx context.Context, number string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	UpdateProfile(ctx context.Context, id, name, email string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error
	Close(ctx context.Context, id string, at time.Time) error
}

const uniqueViolation = "23505"

// PostgresRepository stores account profiles in PostgreSQL.
type PostgresRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, timeout: timeout}
}

const selectAccount = `SELECT id, account_number, name, email, password_hash, status, created_at, updated_at FROM bank_accounts`

// Create inserts an account profile.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	id, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	_, err = r.db.Exec(ctx, `INSERT INTO bank_accounts (id, account_number, name, email, password_hash, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, acct.AccountNumber, acct.Name, acct.Email, acct.PasswordHash, acct.Status, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	return mapWriteError(err)
}

// Get fetches an account by id, including closed ones.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return r.queryOne(ctx, selectAccount+` WHERE id = $1`, accountID)
}

// GetByNumber fetches an account by account number, including closed ones.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (Account, error) {
	return r.queryOne(ctx, selectAccount+` WHERE account_number = $1`, number)
}

// FindByEmail fetches the active account registered with email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.queryOne(ctx, selectAccount+` WHERE email = $1 AND status = 'active'`, email)
}

// List returns all active accounts in registration order.
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, selectAccount+` WHERE status = 'active' ORDER BY created_at, account_number`)
	if err != nil {
		return nil, infra.Unavailable(err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, infra.Unavailable(err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.Unavailable(err)
	}
	return accounts, nil
}

// UpdateProfile changes the holder's name and email.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, email string, at time.Time) error {
	return r.updateActive(ctx, `UPDATE bank_accounts SET name = $2, email = $3, updated_at = $4 WHERE id = $1 AND status = 'active'`,
		id, name, email, at.UTC())
}

// UpdatePassword stores a new password digest.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error {
	return r.updateActive(ctx, `UPDATE bank_accounts SET password_hash = $2, updated_at = $3 WHERE id = $1 AND status = 'active'`,
		id, hash, at.UTC())
}

// Close marks the account closed. Closing twice reports ErrNotFound.
func (r *PostgresRepository) Close(ctx context.Context, id string, at time.Time) error {
	return r.updateActive(ctx, `UPDATE bank_accounts SET status = 'closed', updated_at = $2 WHERE id = $1 AND status = 'active'`,
		id, at.UTC())
}

func (r *PostgresRepository) updateActive(ctx context.Context, query, id string, args ...any) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, query, append([]any{accountID}, args...)...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, arg any) (Account, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	acct, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, infra.Unavailable(err)
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct Account
		id   uuid.UUID
	)
	if err := row.Scan(&id, &acct.AccountNumber, &acct.Name, &acct.Email, &acct.PasswordHash, &acct.Status, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return Account{}, err
	}
	acct.ID = id.String()
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == "idx_bank_accounts_active_email" {
			return ErrEmailTaken
		}
		return ErrDuplicateAccountNumber
	}
	return infra.Unavailable(err)
}
