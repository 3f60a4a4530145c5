package codes

import (
	"context"
	"errors"
	"time"

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

var _ Store = (*Repository)(nil)

func (r *Repository) Insert(ctx context.Context, c *models.Code) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO codes (id, kind, value, account_id, email, credits, used, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`, c.ID, c.Kind, c.Value, c.AccountID, c.Email, c.Credits, c.CreatedAt, c.ExpiresAt)
	return err
}

func (r *Repository) FindUnused(ctx context.Context, kind, value, email string) (*models.Code, error) {
	var c models.Code
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, value, account_id, email, credits, used, used_at, used_by, created_at, expires_at
		FROM codes
		WHERE kind = $1 AND value = $2 AND ($3 = '' OR email = $3) AND used = FALSE
		LIMIT 1
	`, kind, value, email).Scan(&c.ID, &c.Kind, &c.Value, &c.AccountID, &c.Email, &c.Credits,
		&c.Used, &c.UsedAt, &c.UsedBy, &c.CreatedAt, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkUsed is conditional on used still being false, so concurrent redeemers
// cannot both win.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time, usedBy *uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE codes SET used = TRUE, used_at = $2, used_by = $3
		WHERE id = $1 AND used = FALSE
	`, id, usedAt, usedBy)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM codes WHERE used = FALSE AND expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
