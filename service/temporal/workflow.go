package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
)

var a *Activities // for type-safe activity invocation

// AttestationWorkflowInput contains the input for one attestation job.
type AttestationWorkflowInput struct {
	JobID string          `json:"job_id"`
	Input ledger.TaxInput `json:"input"`
}

// AttestationWorkflowResult contains the outcome of an attestation job.
type AttestationWorkflowResult struct {
	JobID     string            `json:"job_id"`
	Artifacts *prover.Artifacts `json:"artifacts,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Error     *string           `json:"error,omitempty"`
}

// AttestationWorkflow is the Temporal workflow that turns a tax input
// into a verifiable attestation. It is started once per job, with the
// workflow ID equal to the job ID so submissions stay idempotent.
//
// The workflow performs these steps:
// 1. Compute and prove the attestation (ComputeAndProve activity)
// 2. Archive the result to the database (ArchiveAttestation activity)
// 3. Publish a lifecycle event to NATS (PublishAttestationEvent activity)
//
// Archival and publishing are best-effort: the artifacts are already
// proved, so a failed side effect is logged without failing the job.
func AttestationWorkflow(ctx workflow.Context, input AttestationWorkflowInput) (*AttestationWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AttestationWorkflow started",
		"job_id", input.JobID,
		"user_type", input.Input.UserType,
		"ledger_rows", len(input.Input.Ledger),
	)

	result := &AttestationWorkflowResult{
		JobID:     input.JobID,
		StartedAt: workflow.Now(ctx),
	}

	// Configure activity options
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Compute and prove
	var proveResult *ComputeAndProveResult
	err := workflow.ExecuteActivity(ctx, a.ComputeAndProve, ComputeAndProveInput{
		JobID: input.JobID,
		Input: input.Input,
	}).Get(ctx, &proveResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to compute attestation: %v", err)
		result.Error = &errMsg

		// Best effort: let stream consumers see the failure too.
		pubErr := workflow.ExecuteActivity(ctx, a.PublishAttestationEvent, PublishAttestationEventInput{
			JobID:  input.JobID,
			Status: "error",
		}).Get(ctx, nil)
		if pubErr != nil {
			logger.Warn("failed to publish error event", "job_id", input.JobID, "error", pubErr)
		}

		return result, fmt.Errorf("failed to compute attestation: %w", err)
	}
	result.Artifacts = proveResult.Artifacts

	logger.Info("attestation proved",
		"job_id", input.JobID,
		"total_tax_paisa", proveResult.Artifacts.TotalTaxPaisa,
	)

	// Step 2: Archive to the database
	err = workflow.ExecuteActivity(ctx, a.ArchiveAttestation, ArchiveAttestationInput{
		JobID:     input.JobID,
		Input:     input.Input,
		Artifacts: proveResult.Artifacts,
	}).Get(ctx, nil)
	if err != nil {
		// Log error but don't fail the workflow - the proof stands on its own
		logger.Warn("failed to archive attestation", "job_id", input.JobID, "error", err)
	}

	// Step 3: Publish completion event to NATS
	err = workflow.ExecuteActivity(ctx, a.PublishAttestationEvent, PublishAttestationEventInput{
		JobID:     input.JobID,
		Status:    "done",
		Artifacts: proveResult.Artifacts,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish attestation event", "job_id", input.JobID, "error", err)
	}

	logger.Info("AttestationWorkflow completed successfully",
		"job_id", input.JobID,
		"total_tax_paisa", proveResult.Artifacts.TotalTaxPaisa,
	)

	return result, nil
}
