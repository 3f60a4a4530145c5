package photos

import (
	"context"
	"encoding/json"

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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, total int) (*models.ProcessingRun, error) {
	var run models.ProcessingRun
	row := tx.QueryRow(ctx, `
		INSERT INTO processing_runs (id, account_id, status, total, processed)
		VALUES ($1, $2, 'QUEUED', $3, 0)
		RETURNING id, account_id, status, total, processed, created_at, updated_at
	`, uuid.New(), accountID, total)
	if err := row.Scan(&run.ID, &run.AccountID, &run.Status, &run.Total,
		&run.Processed, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) GetByID(ctx context.Context, runID uuid.UUID) (*models.ProcessingRun, error) {
	var run models.ProcessingRun
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, status, total, processed, last_balance, results, failures, created_at, updated_at
		FROM processing_runs WHERE id = $1
	`, runID)
	if err := row.Scan(&run.ID, &run.AccountID, &run.Status, &run.Total, &run.Processed,
		&run.LastBalance, &run.Results, &run.Failures, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.ProcessingRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, status, total, processed, last_balance, results, failures, created_at, updated_at
		FROM processing_runs WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProcessingRun
	for rows.Next() {
		var run models.ProcessingRun
		if err := rows.Scan(&run.ID, &run.AccountID, &run.Status, &run.Total, &run.Processed,
			&run.LastBalance, &run.Results, &run.Failures, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &run)
	}
	return list, rows.Err()
}

func (r *Repository) SetStatus(ctx context.Context, runID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_runs SET status = $2, updated_at = NOW() WHERE id = $1
	`, runID, status)
	return err
}

func (r *Repository) UpdateProgress(ctx context.Context, runID uuid.UUID, processed int, balance *int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_runs
		SET processed = $2, last_balance = COALESCE($3, last_balance), updated_at = NOW()
		WHERE id = $1
	`, runID, processed, balance)
	return err
}

func (r *Repository) Finish(ctx context.Context, runID uuid.UUID, status string, results, failures json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_runs
		SET status = $2, results = $3, failures = $4, updated_at = NOW()
		WHERE id = $1
	`, runID, status, results, failures)
	return err
}
