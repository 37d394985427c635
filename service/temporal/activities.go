package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/metrics"
	"github.com/veritax/veritax/service/prover"
)

// ComputeAndProveInput contains the input parameters for the attestation activity.
type ComputeAndProveInput struct {
	JobID string          `json:"job_id"`
	Input ledger.TaxInput `json:"input"`
}

// ComputeAndProveResult contains the proved attestation.
type ComputeAndProveResult struct {
	Artifacts *prover.Artifacts `json:"artifacts"`
}

// ArchiveAttestationInput contains parameters for the archive activity.
type ArchiveAttestationInput struct {
	JobID     string            `json:"job_id"`
	Input     ledger.TaxInput   `json:"input"`
	Artifacts *prover.Artifacts `json:"artifacts"`
}

// PublishAttestationEventInput contains parameters for the publish activity.
type PublishAttestationEventInput struct {
	JobID     string            `json:"job_id"`
	Status    string            `json:"status"`
	Artifacts *prover.Artifacts `json:"artifacts,omitempty"`
}

// ArchiverInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type ArchiverInterface interface {
	ArchiveAttestation(ctx context.Context, jobID string, in ledger.TaxInput, a *prover.Artifacts) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishAttestationEvent(ctx context.Context, jobID, status string, a *prover.Artifacts) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	prover    prover.Prover
	archiver  ArchiverInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// archiver and publisher may be nil; if metrics is nil, no metrics will be
// recorded.
func NewActivities(
	p prover.Prover,
	archiver ArchiverInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		prover:    p,
		archiver:  archiver,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ComputeAndProve runs the full attestation pipeline: prove the input
// and cross-check the guest's public values against the host packages.
func (a *Activities) ComputeAndProve(ctx context.Context, input ComputeAndProveInput) (*ComputeAndProveResult, error) {
	start := time.Now()

	a.logger.DebugContext(ctx, "computing attestation",
		"job_id", input.JobID,
		"user_type", input.Input.UserType,
		"ledger_rows", len(input.Input.Ledger),
	)

	artifacts, err := jobs.Execute(ctx, a.prover, input.Input)
	if a.metrics != nil {
		a.metrics.RecordProof(err, time.Since(start).Seconds())
		a.metrics.RecordLedgerRows(string(input.Input.UserType), len(input.Input.Ledger))
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "attestation computation failed",
			"job_id", input.JobID,
			"error", err,
		)
		return nil, err
	}

	a.logger.InfoContext(ctx, "attestation computed",
		"job_id", input.JobID,
		"total_tax_paisa", artifacts.TotalTaxPaisa,
		"ledger_commitment", artifacts.LedgerCommitment,
	)
	return &ComputeAndProveResult{Artifacts: artifacts}, nil
}

// ArchiveAttestation persists a completed attestation to the database.
// A nil archiver makes this a no-op so the workflow runs without a
// configured database.
func (a *Activities) ArchiveAttestation(ctx context.Context, input ArchiveAttestationInput) error {
	if a.archiver == nil {
		a.logger.DebugContext(ctx, "no archiver configured, skipping", "job_id", input.JobID)
		return nil
	}

	start := time.Now()
	err := a.archiver.ArchiveAttestation(ctx, input.JobID, input.Input, input.Artifacts)
	if a.metrics != nil {
		a.metrics.RecordDBQuery("archive", "attestations", time.Since(start).Seconds(), err)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to archive attestation",
			"job_id", input.JobID,
			"error", err,
		)
		return err
	}

	a.logger.DebugContext(ctx, "archived attestation", "job_id", input.JobID)
	return nil
}

// PublishAttestationEvent emits a lifecycle event to NATS. A nil
// publisher makes this a no-op.
func (a *Activities) PublishAttestationEvent(ctx context.Context, input PublishAttestationEventInput) error {
	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping", "job_id", input.JobID)
		return nil
	}

	start := time.Now()
	err := a.publisher.PublishAttestationEvent(ctx, input.JobID, input.Status, input.Artifacts)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordNATSPublish("attestations."+input.JobID, status, time.Since(start).Seconds())
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to publish attestation event",
			"job_id", input.JobID,
			"error", err,
		)
		return err
	}

	a.logger.DebugContext(ctx, "published attestation event",
		"job_id", input.JobID,
		"status", input.Status,
	)
	return nil
}
