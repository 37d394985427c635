package prover

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/tax"
	"github.com/veritax/veritax/service/zkvm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInput() ledger.TaxInput {
	cp := "0xdef"
	return ledger.TaxInput{
		UserType: ledger.UserIndividual,
		Wallets:  []string{"0xabc"},
		Ledger: []ledger.LedgerRow{
			{
				ChainID:      1,
				OwnerWallet:  "0xabc",
				TxHash:       "0xhash1",
				BlockTime:    1700000000,
				Asset:        "ETH",
				Amount:       "1.5",
				Decimals:     18,
				Direction:    ledger.DirectionIn,
				Counterparty: &cp,
				Category:     ledger.CategoryIncome,
				Confidence:   0.6,
			},
		},
		Prices:     []ledger.PriceEntry{{Asset: "ETH", USDPrice: "2000.00"}},
		USDINRRate: "83.00",
	}
}

func TestLocalProver_ProveAndVerify(t *testing.T) {
	p := NewLocalProver(testLogger())
	in := testInput()

	a, err := p.Prove(context.Background(), in)
	require.NoError(t, err)

	require.NoError(t, p.Verify(a))

	assert.Equal(t, p.VKHash(), a.VKHash)
	assert.Equal(t, tax.Compute(in).TotalTaxPaisa(), a.TotalTaxPaisa)

	commit := ledger.Commit(in.Ledger)
	assert.Equal(t, hex.EncodeToString(commit[:]), a.LedgerCommitment)

	pvBytes, err := base64.StdEncoding.DecodeString(a.PublicValues)
	require.NoError(t, err)
	require.Len(t, pvBytes, zkvm.PublicValuesLen)

	proofBytes, err := base64.StdEncoding.DecodeString(a.Proof)
	require.NoError(t, err)
	assert.Len(t, proofBytes, proofSize)
}

func TestLocalProver_Deterministic(t *testing.T) {
	p := NewLocalProver(testLogger())
	in := testInput()

	a1, err := p.Prove(context.Background(), in)
	require.NoError(t, err)
	a2, err := p.Prove(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestLocalProver_VerifyRejectsTampering(t *testing.T) {
	p := NewLocalProver(testLogger())
	a, err := p.Prove(context.Background(), testInput())
	require.NoError(t, err)

	t.Run("tampered proof", func(t *testing.T) {
		bad := *a
		proof, _ := base64.StdEncoding.DecodeString(bad.Proof)
		proof[10] ^= 0xff
		bad.Proof = base64.StdEncoding.EncodeToString(proof)
		assert.ErrorIs(t, p.Verify(&bad), ErrInvalidProof)
	})

	t.Run("tampered public values", func(t *testing.T) {
		bad := *a
		pv, _ := base64.StdEncoding.DecodeString(bad.PublicValues)
		pv[60] ^= 0x01
		bad.PublicValues = base64.StdEncoding.EncodeToString(pv)
		assert.ErrorIs(t, p.Verify(&bad), ErrInvalidProof)
	})

	t.Run("inflated paisa total", func(t *testing.T) {
		bad := *a
		bad.TotalTaxPaisa++
		assert.ErrorIs(t, p.Verify(&bad), ErrInvalidProof)
	})

	t.Run("wrong vk", func(t *testing.T) {
		bad := *a
		bad.VKHash = "deadbeef"
		assert.ErrorIs(t, p.Verify(&bad), ErrInvalidProof)
	})

	t.Run("garbage base64", func(t *testing.T) {
		bad := *a
		bad.Proof = "!!!"
		assert.ErrorIs(t, p.Verify(&bad), ErrBadArtifacts)
	})

	t.Run("nil artifacts", func(t *testing.T) {
		assert.ErrorIs(t, p.Verify(nil), ErrBadArtifacts)
	})
}

func TestLocalProver_ProveInvalidUserType(t *testing.T) {
	p := NewLocalProver(testLogger())
	in := testInput()
	in.UserType = "trust"
	_, err := p.Prove(context.Background(), in)
	require.Error(t, err)
}

func TestLocalProver_ProveCancelledContext(t *testing.T) {
	p := NewLocalProver(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Prove(ctx, testInput())
	assert.ErrorIs(t, err, context.Canceled)
}
