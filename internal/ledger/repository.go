package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumiprint/backend/internal/models"
)

// Repository implements Store against Postgres. The conditional UPDATE in
// Debit is the single atomic read-check-write the double-spend guarantee
// rests on.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Balance(ctx context.Context, accountID uuid.UUID) (int, bool, error) {
	var credits int
	err := r.pool.QueryRow(ctx, `
		SELECT credits FROM accounts WHERE id = $1
	`, accountID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return credits, true, nil
}

// AddCredits updates the balance, creating the account on first grant. The
// upsert keeps two concurrent first grants from racing each other.
func (r *Repository) AddCredits(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	var credits int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, credits) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET credits = accounts.credits + EXCLUDED.credits, last_update = now()
		RETURNING credits
	`, accountID, amount).Scan(&credits)
	if err != nil {
		return 0, err
	}
	return credits, nil
}

// Debit subtracts amount only when the balance covers it. Zero rows affected
// means the account is missing or the balance is too low; nothing changed.
func (r *Repository) Debit(ctx context.Context, accountID uuid.UUID, amount int) (int, bool, error) {
	var credits int
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts SET credits = credits - $1, last_update = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, accountID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return credits, true, nil
}

func (r *Repository) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO credit_history (id, account_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Delta, e.Reason, e.CreatedAt).Scan(&e.CreatedAt)
}

func (r *Repository) Entries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, delta, reason, created_at
		FROM credit_history WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
