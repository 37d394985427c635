package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritax/veritax/service/ledger"
)

// mockRPCClient implements RPCClient for testing. It is
// behavior-focused: we set what it should return, not verify call
// sequences.
type mockRPCClient struct {
	signatures   []*rpc.TransactionSignature
	transactions map[string]*rpc.GetTransactionResult
	err          error
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	if m.transactions == nil {
		return nil, nil
	}
	return m.transactions[signature.String()], nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", nil, logger)
}

const testWallet = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

// solTransferResult builds a GetTransactionResult holding one SOL
// transfer between the given addresses.
func solTransferResult(t *testing.T, from, to solana.PublicKey, lamports uint64) *rpc.GetTransactionResult {
	t.Helper()
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{from, to, SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 2,
					Accounts:       []uint16{0, 1},
					Data:           systemTransferInstruction(lamports),
				},
			},
		},
	}
	envelope, err := makeTransactionEnvelope(tx)
	require.NoError(t, err)
	return &rpc.GetTransactionResult{Transaction: envelope}
}

func TestGetLedgerRows(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58(testWallet)
	sender := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	sigIn := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	sigOut := solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")

	later := solana.UnixTimeSeconds(1700000100)
	earlier := solana.UnixTimeSeconds(1700000000)

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sigIn, Slot: 101, BlockTime: &later},
			{Signature: sigOut, Slot: 100, BlockTime: &earlier},
		},
		transactions: map[string]*rpc.GetTransactionResult{
			sigIn.String():  solTransferResult(t, sender, wallet, 1500000000),
			sigOut.String(): solTransferResult(t, wallet, sender, 250000000),
		},
	}

	client := newTestClient(mock)
	rows, err := client.GetLedgerRows(t.Context(), testWallet, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted by block time, oldest first.
	out := rows[0]
	assert.Equal(t, sigOut.String(), out.TxHash)
	assert.Equal(t, ledger.DirectionOut, out.Direction)
	assert.Equal(t, "0.25", out.Amount)
	require.NotNil(t, out.Counterparty)
	assert.Equal(t, sender.String(), *out.Counterparty)

	in := rows[1]
	assert.Equal(t, sigIn.String(), in.TxHash)
	assert.Equal(t, ledger.DirectionIn, in.Direction)
	assert.Equal(t, "1.5", in.Amount)
	assert.Equal(t, "SOL", in.Asset)
	assert.Equal(t, uint8(9), in.Decimals)
	assert.Equal(t, ChainID, in.ChainID)
	assert.Equal(t, testWallet, in.OwnerWallet)
	assert.Equal(t, uint64(1700000100), in.BlockTime)
	assert.Equal(t, ledger.CategoryUnknown, in.Category)
	require.NotNil(t, in.Counterparty)
	assert.Equal(t, sender.String(), *in.Counterparty)
}

func TestGetLedgerRows_DropsFailedTransactions(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58(testWallet)
	sender := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	okSig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	failedSig := solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")

	now := solana.UnixTimeSeconds(time.Now().Unix())

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: okSig, Slot: 101, BlockTime: &now},
			{
				Signature: failedSig,
				Slot:      100,
				BlockTime: &now,
				Err:       map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			},
		},
		transactions: map[string]*rpc.GetTransactionResult{
			okSig.String(): solTransferResult(t, sender, wallet, 1000000000),
		},
	}

	client := newTestClient(mock)
	rows, err := client.GetLedgerRows(t.Context(), testWallet, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, okSig.String(), rows[0].TxHash)
}

func TestGetLedgerRows_EmptyHistory(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	rows, err := client.GetLedgerRows(t.Context(), testWallet, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetLedgerRows_RPCError(t *testing.T) {
	client := newTestClient(&mockRPCClient{err: assert.AnError})
	rows, err := client.GetLedgerRows(t.Context(), testWallet, 10)
	require.Error(t, err)
	assert.Nil(t, rows)
}

func TestGetLedgerRows_InvalidWallet(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	_, err := client.GetLedgerRows(t.Context(), "not-base58!", 10)
	require.Error(t, err)
}

func TestBaseUnitsToDecimal(t *testing.T) {
	assert.Equal(t, "1.5", baseUnitsToDecimal(1500000000, 9))
	assert.Equal(t, "1", baseUnitsToDecimal(1000000, 6))
	assert.Equal(t, "0.000000001", baseUnitsToDecimal(1, 9))
	assert.Equal(t, "42", baseUnitsToDecimal(42, 0))
}
