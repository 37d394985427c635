package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
)

// Starter is the part of the client the runner needs. This allows for
// easy mocking in tests.
type Starter interface {
	StartAttestation(ctx context.Context, jobID string, in ledger.TaxInput) error
	AwaitAttestation(ctx context.Context, jobID string) (*AttestationWorkflowResult, error)
}

// Runner dispatches attestation jobs to Temporal instead of running
// them in-process. The in-memory job store remains the source of truth
// the HTTP API polls; the runner mirrors workflow outcomes into it.
type Runner struct {
	logger *slog.Logger
	store  *jobs.Store
	client Starter
}

// NewRunner constructs a Temporal-backed job runner.
func NewRunner(logger *slog.Logger, store *jobs.Store, client Starter) *Runner {
	return &Runner{
		logger: logger,
		store:  store,
		client: client,
	}
}

// Start launches a workflow for the job and follows it to completion in
// the background. A failure to even start the workflow is returned
// synchronously so the HTTP layer can reject the submission.
func (r *Runner) Start(ctx context.Context, jobID string, in ledger.TaxInput) error {
	if err := r.client.StartAttestation(ctx, jobID, in); err != nil {
		return fmt.Errorf("start attestation workflow: %w", err)
	}

	go r.await(context.WithoutCancel(ctx), jobID)
	return nil
}

func (r *Runner) await(ctx context.Context, jobID string) {
	result, err := r.client.AwaitAttestation(ctx, jobID)
	if err != nil {
		r.logger.Error("attestation workflow failed", "job_id", jobID, "error", err)
		if ferr := r.store.Fail(jobID, err.Error()); ferr != nil {
			r.logger.Error("could not record job failure", "job_id", jobID, "error", ferr)
		}
		return
	}

	if err := r.store.Complete(jobID, result.Artifacts); err != nil {
		r.logger.Error("could not record job result", "job_id", jobID, "error", err)
		return
	}
	r.logger.Info("attestation workflow complete",
		"job_id", jobID,
		"total_tax_paisa", result.Artifacts.TotalTaxPaisa,
	)
}
