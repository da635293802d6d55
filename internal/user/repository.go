package user

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

// Repository abstracts user persistence.
type Repository interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateProfile(ctx context.Context, id, name, email string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepository stores users in PostgreSQL.
type PostgresRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresRepository builds a Postgres-backed repository.
func NewPostgresRepository(db *pgxpool.Pool, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, timeout: timeout}
}

const selectUser = `SELECT id, name, email, password_hash, created_at, updated_at FROM users`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, u User) error {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return err
	}
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	_, err = r.db.Exec(ctx, `INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		id, u.Name, u.Email, u.PasswordHash, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	return mapWriteError(err)
}

// Get fetches a user by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.queryOne(ctx, selectUser+` WHERE id = $1`, userID)
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.queryOne(ctx, selectUser+` WHERE email = $1`, email)
}

// List returns every user in creation order.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, selectUser+` ORDER BY created_at, email`)
	if err != nil {
		return nil, infra.Unavailable(err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, infra.Unavailable(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.Unavailable(err)
	}
	return users, nil
}

// UpdateProfile changes name and email.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, email string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET name = $2, email = $3, updated_at = $4 WHERE id = $1`, id, name, email, at.UTC())
}

// UpdatePassword stores a new password digest.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash []byte, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at.UTC())
}

// Delete removes the user.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) exec(ctx context.Context, query, id string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, query, append([]any{userID}, args...)...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, arg any) (User, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.timeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, infra.Unavailable(err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u  User
		id uuid.UUID
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.ID = id.String()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return infra.Unavailable(err)
}
