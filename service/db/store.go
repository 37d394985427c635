package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/prover"
)

// ErrAttestationNotFound is returned when no archived attestation
// matches the requested job id.
var ErrAttestationNotFound = errors.New("attestation not found")

// Store provides database operations for the service. The archive is
// append-only: one row per completed attestation job.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Attestation is one archived attestation result. The full input is
// retained as JSON so a verifier can re-derive the commitment later.
type Attestation struct {
	JobID            string
	UserType         string
	Use44ADA         bool
	WalletCount      int32
	LedgerRows       int32
	TotalTaxPaisa    int64
	LedgerCommitment string
	VKHash           string
	Proof            string
	PublicValues     string
	Input            []byte
	CreatedAt        time.Time
}

// Migrate creates the attestation archive schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS attestations (
			job_id            TEXT PRIMARY KEY,
			user_type         TEXT NOT NULL,
			use_44ada         BOOLEAN NOT NULL,
			wallet_count      INTEGER NOT NULL,
			ledger_rows       INTEGER NOT NULL,
			total_tax_paisa   BIGINT NOT NULL,
			ledger_commitment TEXT NOT NULL,
			vk_hash           TEXT NOT NULL,
			proof             TEXT NOT NULL,
			public_values     TEXT NOT NULL,
			input             JSONB NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS attestations_created_at_idx
			ON attestations (created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate attestations schema: %w", err)
	}
	return nil
}

// ArchiveAttestation persists a completed attestation. It satisfies the
// job runner's Archiver hook. Re-archiving the same job id is an upsert
// so activity retries stay idempotent.
func (s *Store) ArchiveAttestation(ctx context.Context, jobID string, in ledger.TaxInput, a *prover.Artifacts) error {
	inputJSON, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal attestation input: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO attestations (
			job_id, user_type, use_44ada, wallet_count, ledger_rows,
			total_tax_paisa, ledger_commitment, vk_hash, proof,
			public_values, input
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id) DO UPDATE SET
			total_tax_paisa = EXCLUDED.total_tax_paisa,
			ledger_commitment = EXCLUDED.ledger_commitment,
			vk_hash = EXCLUDED.vk_hash,
			proof = EXCLUDED.proof,
			public_values = EXCLUDED.public_values,
			input = EXCLUDED.input
	`,
		jobID, string(in.UserType), in.Use44ADA, int32(len(in.Wallets)), int32(len(in.Ledger)),
		int64(a.TotalTaxPaisa), a.LedgerCommitment, a.VKHash, a.Proof,
		a.PublicValues, inputJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to archive attestation: %w", err)
	}
	return nil
}

// GetAttestation retrieves an archived attestation by job id.
func (s *Store) GetAttestation(ctx context.Context, jobID string) (*Attestation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, user_type, use_44ada, wallet_count, ledger_rows,
		       total_tax_paisa, ledger_commitment, vk_hash, proof,
		       public_values, input, created_at
		FROM attestations
		WHERE job_id = $1
	`, jobID)

	var a Attestation
	err := row.Scan(
		&a.JobID, &a.UserType, &a.Use44ADA, &a.WalletCount, &a.LedgerRows,
		&a.TotalTaxPaisa, &a.LedgerCommitment, &a.VKHash, &a.Proof,
		&a.PublicValues, &a.Input, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAttestationNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attestation: %w", err)
	}
	return &a, nil
}

// ListAttestations returns archived attestations, most recent first.
func (s *Store) ListAttestations(ctx context.Context, limit, offset int32) ([]*Attestation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, user_type, use_44ada, wallet_count, ledger_rows,
		       total_tax_paisa, ledger_commitment, vk_hash, proof,
		       public_values, input, created_at
		FROM attestations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list attestations: %w", err)
	}
	defer rows.Close()

	var out []*Attestation
	for rows.Next() {
		var a Attestation
		if err := rows.Scan(
			&a.JobID, &a.UserType, &a.Use44ADA, &a.WalletCount, &a.LedgerRows,
			&a.TotalTaxPaisa, &a.LedgerCommitment, &a.VKHash, &a.Proof,
			&a.PublicValues, &a.Input, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attestation: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attestations: %w", err)
	}
	return out, nil
}

// ListAttestationsByCommitment returns archived attestations matching a
// ledger commitment. Distinct jobs over the same ledger share one.
func (s *Store) ListAttestationsByCommitment(ctx context.Context, commitment string) ([]*Attestation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, user_type, use_44ada, wallet_count, ledger_rows,
		       total_tax_paisa, ledger_commitment, vk_hash, proof,
		       public_values, input, created_at
		FROM attestations
		WHERE ledger_commitment = $1
		ORDER BY created_at DESC
	`, commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to list attestations by commitment: %w", err)
	}
	defer rows.Close()

	var out []*Attestation
	for rows.Next() {
		var a Attestation
		if err := rows.Scan(
			&a.JobID, &a.UserType, &a.Use44ADA, &a.WalletCount, &a.LedgerRows,
			&a.TotalTaxPaisa, &a.LedgerCommitment, &a.VKHash, &a.Proof,
			&a.PublicValues, &a.Input, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attestation: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attestations: %w", err)
	}
	return out, nil
}

// DeleteAttestation removes an archived attestation. Used by the CLI
// for manual cleanup.
func (s *Store) DeleteAttestation(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attestations WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete attestation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAttestationNotFound, jobID)
	}
	return nil
}

// TaxInput unmarshals the archived input back into the domain type.
func (a *Attestation) TaxInput() (ledger.TaxInput, error) {
	var in ledger.TaxInput
	if err := json.Unmarshal(a.Input, &in); err != nil {
		return in, fmt.Errorf("failed to unmarshal archived input: %w", err)
	}
	return in, nil
}
