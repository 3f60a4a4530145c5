// Package photos accepts batch submissions, persists them as processing runs
// and enqueues them for the worker. One queued run is inserted in the same
// transaction as its row, so a run can never exist without its queue entry.
package photos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumiprint/backend/internal/execution"
	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/pipeline"
)

// submitSchema rejects malformed submissions before anything is persisted.
// Kind and layout aliases are resolved later by the pipeline, so the schema
// only requires them to be non-empty strings.
const submitSchema = `{
	"type": "object",
	"required": ["jobs"],
	"properties": {
		"jobs": {
			"type": "array",
			"minItems": 1,
			"maxItems": 100,
			"items": {
				"type": "object",
				"required": ["input_path", "kind", "layout"],
				"properties": {
					"input_path": {"type": "string", "minLength": 1},
					"kind": {"type": "string", "minLength": 1},
					"layout": {"type": "string", "minLength": 1},
					"output_path": {"type": "string"}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

var compiledSubmitSchema = jsonschema.MustCompileString(
	"https://lumiprint.dev/schemas/submit_run.json", submitSchema)

// InsertProcessPhotosTxFunc enqueues a run within the given transaction.
// Provided by main as a closure over river.Client.InsertTx.
type InsertProcessPhotosTxFunc func(ctx context.Context, tx pgx.Tx, args execution.ProcessPhotosArgs) error

type Service struct {
	repo   *Repository
	insert InsertProcessPhotosTxFunc
}

func NewService(repo *Repository, insert InsertProcessPhotosTxFunc) *Service {
	return &Service{repo: repo, insert: insert}
}

// ValidateSubmission checks the raw request body against the submission
// schema and decodes the jobs.
func ValidateSubmission(raw json.RawMessage) ([]pipeline.Job, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiledSubmitSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	var req struct {
		Jobs []pipeline.Job `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return req.Jobs, nil
}

// SubmitRun creates a queued run and its queue entry atomically.
func (s *Service) SubmitRun(ctx context.Context, accountID uuid.UUID, jobs []pipeline.Job) (*models.ProcessingRun, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	run, err := s.repo.Create(ctx, tx, accountID, len(jobs))
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, tx, execution.ProcessPhotosArgs{
		RunID:     run.ID,
		AccountID: accountID,
		Jobs:      jobs,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, accountID, runID uuid.UUID) (*models.ProcessingRun, error) {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.AccountID != accountID {
		return nil, pgx.ErrNoRows
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, accountID uuid.UUID) ([]*models.ProcessingRun, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// MarkRunning implements execution.RunService.
func (s *Service) MarkRunning(ctx context.Context, runID uuid.UUID) error {
	return s.repo.SetStatus(ctx, runID, models.RunRunning)
}

// RecordProgress implements execution.RunService. balance is nil when no
// debit happened since the last update.
func (s *Service) RecordProgress(ctx context.Context, runID uuid.UUID, processed int, balance *int) error {
	return s.repo.UpdateProgress(ctx, runID, processed, balance)
}

// CompleteRun implements execution.RunService. A run with zero successful
// jobs is recorded as FAILED.
func (s *Service) CompleteRun(ctx context.Context, runID uuid.UUID, results []pipeline.Result, failures []pipeline.Failure) error {
	status := models.RunCompleted
	if len(results) == 0 && len(failures) > 0 {
		status = models.RunFailed
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	return s.repo.Finish(ctx, runID, status, resultsJSON, failuresJSON)
}
