package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumiprint/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, acc *models.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, username, password_hash, credits, email_verified, created_at, last_update)
		VALUES ($1, $2, $3, $4, 0, FALSE, $5, $6)
	`, acc.ID, acc.Email, acc.Username, acc.PasswordHash, acc.CreatedAt, acc.LastUpdate)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, credits, email_verified, created_at, last_update
		FROM accounts WHERE id = $1
	`, id))
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, credits, email_verified, created_at, last_update
		FROM accounts WHERE email = $1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return acc, err
}

func (r *Repository) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET email_verified = TRUE, last_update = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *Repository) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, last_update = NOW() WHERE id = $1
	`, id, hash)
	return err
}

func (r *Repository) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash,
		&a.Credits, &a.EmailVerified, &a.CreatedAt, &a.LastUpdate); err != nil {
		return nil, err
	}
	return &a, nil
}
