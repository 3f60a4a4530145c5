// Package execution runs queued processing runs. The queue gives us atomic
// enqueue with the run row and crash recovery; a single worker per account
// queue keeps debits strictly ordered.
package execution

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/lumiprint/backend/internal/pipeline"
)

type ProcessPhotosArgs struct {
	RunID     uuid.UUID      `json:"run_id"`
	AccountID uuid.UUID      `json:"account_id"`
	Jobs      []pipeline.Job `json:"jobs"`
}

func (ProcessPhotosArgs) Kind() string { return "process_photos" }

// InsertOpts pins the job to a single-worker queue. Runs must not interleave
// debits for the same account.
func (ProcessPhotosArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueProcessing, MaxAttempts: 1}
}

const QueueProcessing = "processing"

// RunService is the contract the worker needs to report run state.
type RunService interface {
	MarkRunning(ctx context.Context, runID uuid.UUID) error
	RecordProgress(ctx context.Context, runID uuid.UUID, processed int, balance *int) error
	CompleteRun(ctx context.Context, runID uuid.UUID, results []pipeline.Result, failures []pipeline.Failure) error
}

type ProcessPhotosWorker struct {
	river.WorkerDefaults[ProcessPhotosArgs]
	runs   RunService
	runner *pipeline.Runner
	log    *slog.Logger
}

func NewProcessPhotosWorker(runs RunService, runner *pipeline.Runner, log *slog.Logger) *ProcessPhotosWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessPhotosWorker{runs: runs, runner: runner, log: log}
}

func (w *ProcessPhotosWorker) Work(ctx context.Context, job *river.Job[ProcessPhotosArgs]) error {
	args := job.Args
	if err := w.runs.MarkRunning(ctx, args.RunID); err != nil {
		return err
	}

	// The pipeline emits discrete events; fold them into run-row updates as
	// they arrive so pollers see live progress.
	events := make(chan pipeline.Event, 2*len(args.Jobs)+4)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		processed := 0
		var balance *int
		for ev := range events {
			switch ev.Kind {
			case pipeline.EventBalance:
				b := ev.Credits
				balance = &b
			case pipeline.EventProgress:
				processed = ev.Processed
			case pipeline.EventCreditError:
				w.log.Warn("run aborted on credit failure",
					"run_id", args.RunID, "reason", ev.Message)
				continue
			}
			if err := w.runs.RecordProgress(ctx, args.RunID, processed, balance); err != nil {
				w.log.Error("progress update failed", "run_id", args.RunID, "error", err)
			}
			balance = nil
		}
	}()

	results, failures := w.runner.RunBatch(ctx, args.AccountID, args.Jobs, events)
	close(events)
	<-drained

	if err := w.runs.CompleteRun(ctx, args.RunID, results, failures); err != nil {
		return err
	}
	w.log.Info("run finished",
		"run_id", args.RunID, "account_id", args.AccountID,
		"succeeded", len(results), "failed", len(failures))
	return nil
}
