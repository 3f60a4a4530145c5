// Package pipeline orchestrates paid photo jobs: one credit is debited per
// job before the transformation runs, and a failed transformation is
// compensated with a refund.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lumiprint/backend/internal/ledger"
	"github.com/lumiprint/backend/internal/models"
)

// Job is one unit of billable work. It is never persisted; it lives only for
// the duration of the run that owns it.
type Job struct {
	InputPath  string `json:"input_path"`
	Kind       string `json:"kind"`
	Layout     string `json:"layout"`
	OutputPath string `json:"output_path,omitempty"`
}

// Result records a successfully transformed job.
type Result struct {
	Job        Job    `json:"job"`
	OutputPath string `json:"output_path"`
}

// Failure records a job that was not transformed, with a human-readable
// reason.
type Failure struct {
	Job    Job    `json:"job"`
	Reason string `json:"reason"`
}

// Event kinds delivered on the run's event channel.
const (
	EventProgress    = "progress"
	EventBalance     = "balance"
	EventCreditError = "credit_error"
)

// Event is a discrete progress message. Progress events carry
// Processed/Total; balance events carry Credits; credit errors carry Message.
type Event struct {
	Kind      string
	Processed int
	Total     int
	Credits   int
	Message   string
}

// Transformer is the external transformation library.
type Transformer interface {
	Transform(ctx context.Context, inputPath, kind, layout, outputPath string) error
}

// CreditLedger is the slice of the ledger the pipeline needs.
type CreditLedger interface {
	Debit(ctx context.Context, accountID uuid.UUID, amount int) (int, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int, reason string) (int, error)
}

// Runner executes jobs sequentially for one account. Debits and refunds
// issued by one run are strictly ordered; callers must not start a second run
// for the same account while one is in flight.
type Runner struct {
	ledger      CreditLedger
	transformer Transformer
	outputDir   string
	log         *slog.Logger
}

func NewRunner(creditLedger CreditLedger, transformer Transformer, outputDir string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{ledger: creditLedger, transformer: transformer, outputDir: outputDir, log: log}
}

// RunOne executes a single job. A validation failure never debits a credit; a
// transformation failure is refunded before the error is returned.
func (r *Runner) RunOne(ctx context.Context, accountID uuid.UUID, job Job, events chan<- Event) (*Result, error) {
	results, failures := r.RunBatch(ctx, accountID, []Job{job}, events)
	if len(results) == 1 {
		return &results[0], nil
	}
	if len(failures) == 1 {
		return nil, errors.New(failures[0].Reason)
	}
	return nil, errors.New("job was not attempted")
}

// RunBatch executes jobs in order. A transformation failure is refunded and
// the batch continues; a credit failure aborts the remaining jobs. The full
// (results, failures) collection is returned regardless of how many jobs were
// attempted.
func (r *Runner) RunBatch(ctx context.Context, accountID uuid.UUID, jobs []Job, events chan<- Event) ([]Result, []Failure) {
	var (
		results  []Result
		failures []Failure
	)
	total := len(jobs)
	processed := 0

	for i, job := range jobs {
		// Validation happens before the debit: an invalid job must never
		// consume a credit.
		normalized, err := Normalize(job)
		if err != nil {
			failures = append(failures, Failure{Job: job, Reason: err.Error()})
			processed++
			emit(events, Event{Kind: EventProgress, Processed: processed, Total: total})
			continue
		}

		balance, err := r.ledger.Debit(ctx, accountID, 1)
		if err != nil {
			reason := creditFailureReason(err)
			emit(events, Event{Kind: EventCreditError, Message: reason})
			// Abort the entire remaining batch on a credit failure.
			for _, rest := range jobs[i:] {
				failures = append(failures, Failure{Job: rest, Reason: reason})
			}
			break
		}
		// The caller must be able to reflect the spend even if the
		// transformation later fails.
		emit(events, Event{Kind: EventBalance, Credits: balance})

		outputPath, err := r.resolveOutputPath(normalized)
		if err == nil {
			err = r.transformer.Transform(ctx, normalized.InputPath, normalized.Kind, normalized.Layout, outputPath)
		}
		if err != nil {
			r.compensate(ctx, accountID, events)
			failures = append(failures, Failure{Job: normalized, Reason: err.Error()})
		} else {
			normalized.OutputPath = outputPath
			results = append(results, Result{Job: normalized, OutputPath: outputPath})
		}
		processed++
		emit(events, Event{Kind: EventProgress, Processed: processed, Total: total})
	}
	return results, failures
}

// compensate refunds the debited credit after a failed transformation. The
// refund itself goes through the executor's retry policy inside the ledger;
// if it still fails the inconsistency is logged for manual reconciliation.
func (r *Runner) compensate(ctx context.Context, accountID uuid.UUID, events chan<- Event) {
	balance, err := r.ledger.Refund(ctx, accountID, 1, models.LedgerReasonJobRefund)
	if err != nil {
		r.log.Error("refund after failed job did not apply, manual reconciliation required",
			"account_id", accountID, "amount", 1, "error", err)
		return
	}
	emit(events, Event{Kind: EventBalance, Credits: balance})
}

func creditFailureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient credits"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "account not found"
	default:
		return fmt.Sprintf("credit debit failed: %v", err)
	}
}

func emit(events chan<- Event, e Event) {
	if events != nil {
		events <- e
	}
}
