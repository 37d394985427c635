package nats

import (
	"time"

	"github.com/veritax/veritax/service/prover"
)

// AttestationEvent represents an attestation lifecycle event published
// to NATS. This is published to the subject "attestations.{job_id}" in
// JetStream.
type AttestationEvent struct {
	// Job identifiers
	JobID  string `json:"job_id"`
	Status string `json:"status"`

	// Attestation summary, present only for completed jobs
	TotalTaxPaisa    uint64 `json:"total_tax_paisa,omitempty"`
	LedgerCommitment string `json:"ledger_commitment,omitempty"`
	VKHash           string `json:"vk_hash,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// NewAttestationEvent builds an event for a job transition. artifacts
// may be nil for failed jobs.
func NewAttestationEvent(jobID, status string, artifacts *prover.Artifacts) *AttestationEvent {
	event := &AttestationEvent{
		JobID:       jobID,
		Status:      status,
		PublishedAt: time.Now().UTC(),
	}
	if artifacts != nil {
		event.TotalTaxPaisa = artifacts.TotalTaxPaisa
		event.LedgerCommitment = artifacts.LedgerCommitment
		event.VKHash = artifacts.VKHash
	}
	return event
}
