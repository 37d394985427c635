package jobs

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
	"github.com/veritax/veritax/service/tax"
	"github.com/veritax/veritax/service/zkvm"
)

// Runner executes an attestation job. Start must return promptly; the
// actual work happens out of band and lands in the store.
type Runner interface {
	Start(ctx context.Context, jobID string, in ledger.TaxInput) error
}

// Archiver persists finished attestations. Satisfied by the database
// store; optional.
type Archiver interface {
	ArchiveAttestation(ctx context.Context, jobID string, in ledger.TaxInput, a *prover.Artifacts) error
}

// Publisher emits attestation lifecycle events. Satisfied by the NATS
// publisher; optional.
type Publisher interface {
	PublishAttestationEvent(ctx context.Context, jobID string, status string, a *prover.Artifacts) error
}

// runTimeout bounds a single background attestation run.
const runTimeout = 5 * time.Minute

// AsyncRunner proves attestations in a goroutine per job. Archive and
// publish failures are logged, not fatal: the job result is already in
// the store by then.
type AsyncRunner struct {
	logger   *slog.Logger
	store    *Store
	prover   prover.Prover
	archiver Archiver
	pub      Publisher
}

// NewAsyncRunner constructs a runner. archiver and pub may be nil.
func NewAsyncRunner(logger *slog.Logger, store *Store, p prover.Prover, archiver Archiver, pub Publisher) *AsyncRunner {
	return &AsyncRunner{
		logger:   logger,
		store:    store,
		prover:   p,
		archiver: archiver,
		pub:      pub,
	}
}

// Start launches the job in the background. The work is detached from
// the caller's context so an aborted HTTP request does not kill the job.
func (r *AsyncRunner) Start(ctx context.Context, jobID string, in ledger.TaxInput) error {
	go r.run(context.WithoutCancel(ctx), jobID, in)
	return nil
}

func (r *AsyncRunner) run(ctx context.Context, jobID string, in ledger.TaxInput) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("attestation run panicked", "job_id", jobID, "panic", rec)
			r.fail(jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	artifacts, err := Execute(ctx, r.prover, in)
	if err != nil {
		r.logger.Error("attestation run failed", "job_id", jobID, "error", err)
		r.fail(jobID, err.Error())
		r.publish(ctx, jobID, string(StatusError), nil)
		return
	}

	if err := r.store.Complete(jobID, artifacts); err != nil {
		r.logger.Error("could not record job result", "job_id", jobID, "error", err)
		return
	}
	r.logger.Info("attestation complete",
		"job_id", jobID,
		"total_tax_paisa", artifacts.TotalTaxPaisa,
		"ledger_commitment", artifacts.LedgerCommitment)

	if r.archiver != nil {
		if err := r.archiver.ArchiveAttestation(ctx, jobID, in, artifacts); err != nil {
			r.logger.Error("could not archive attestation", "job_id", jobID, "error", err)
		}
	}
	r.publish(ctx, jobID, string(StatusDone), artifacts)
}

func (r *AsyncRunner) fail(jobID, msg string) {
	if err := r.store.Fail(jobID, msg); err != nil {
		r.logger.Error("could not record job failure", "job_id", jobID, "error", err)
	}
}

func (r *AsyncRunner) publish(ctx context.Context, jobID, status string, a *prover.Artifacts) {
	if r.pub == nil {
		return
	}
	if err := r.pub.PublishAttestationEvent(ctx, jobID, status, a); err != nil {
		r.logger.Error("could not publish attestation event", "job_id", jobID, "error", err)
	}
}

// Execute runs the full attestation pipeline synchronously: prove, then
// cross-check the proof's public values against an independent host
// computation of the tax total and the ledger commitment. The two
// implementations are developed in lockstep; a divergence here means
// the artifacts cannot be trusted and the job fails.
func Execute(ctx context.Context, p prover.Prover, in ledger.TaxInput) (*prover.Artifacts, error) {
	artifacts, err := p.Prove(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}

	hostPaisa := tax.Compute(in).TotalTaxPaisa()
	if artifacts.TotalTaxPaisa != hostPaisa {
		return nil, fmt.Errorf("cross-check: guest computed %d paisa, host computed %d", artifacts.TotalTaxPaisa, hostPaisa)
	}
	commit := ledger.Commit(in.Ledger)
	if got := fmt.Sprintf("%x", commit); got != artifacts.LedgerCommitment {
		return nil, fmt.Errorf("cross-check: ledger commitment mismatch")
	}
	pvBytes, err := base64.StdEncoding.DecodeString(artifacts.PublicValues)
	if err != nil {
		return nil, fmt.Errorf("cross-check: public values: %w", err)
	}
	if _, err := zkvm.DecodePublicValues(pvBytes); err != nil {
		return nil, fmt.Errorf("cross-check: %w", err)
	}
	return artifacts, nil
}
