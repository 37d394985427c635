package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111112")

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// solDecimals is the lamport scale of native SOL.
const solDecimals = uint8(9)

// signatureToTransfer converts an RPC TransactionSignature to a domain
// Transfer carrying only signature-list metadata. Amount, mint, and
// memo require the full transaction.
func signatureToTransfer(sig *rpc.TransactionSignature) *Transfer {
	t := &Transfer{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
		Decimals:  solDecimals,
	}

	if sig.BlockTime != nil {
		t.BlockTime = sig.BlockTime.Time()
	} else {
		t.BlockTime = time.Time{}
	}

	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		t.Err = &errMsg
	}

	return t
}

// parseTransferFromResult parses a full GetTransactionResult to extract
// the transfer amount, token mint, memo, and endpoint addresses from
// the transaction instructions.
func parseTransferFromResult(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (*Transfer, error) {
	t := signatureToTransfer(sig)

	// Failed or pruned transactions keep metadata only.
	if sig.Err != nil || result == nil {
		return t, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	accountKeys := tx.Message.AccountKeys
	for _, instruction := range tx.Message.Instructions {
		programID := accountKeys[instruction.ProgramIDIndex]

		// Native SOL transfers through the System Program.
		if programID.Equals(SystemProgramID) {
			if amount, from, to, err := parseSystemTransfer(instruction, accountKeys); err == nil {
				t.Amount = amount
				t.Decimals = solDecimals
				t.FromAddress = keyString(from)
				t.ToAddress = keyString(to)
			}
		}

		// SPL token transfers (USDC and friends).
		if programID.Equals(TokenProgramID) || programID.Equals(Token2022ProgramID) {
			if amount, decimals, mint, from, err := parseTokenTransfer(instruction, accountKeys); err == nil {
				t.Amount = amount
				t.Decimals = decimals
				if !mint.IsZero() {
					mintStr := mint.String()
					t.TokenMint = &mintStr
				}
				t.FromAddress = keyString(from)
			}
		}

		if programID.Equals(MemoProgramIDSPL) || programID.Equals(MemoProgramIDLegacy) {
			if memo := parseMemo(instruction.Data); memo != "" {
				t.Memo = &memo
			}
		}
	}

	return t, nil
}

// parseSystemTransfer extracts the lamport amount and the endpoint
// addresses from a System Program Transfer instruction.
//
// Instruction layout:
//
//	[0..4]  instruction type (u32, 2 = Transfer)
//	[4..12] lamports (u64)
//
// Accounts: [from, to]
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (uint64, *solana.PublicKey, *solana.PublicKey, error) {
	if len(instruction.Data) < 12 {
		return 0, nil, nil, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return 0, nil, nil, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	amount := binary.LittleEndian.Uint64(instruction.Data[4:12])

	var from, to *solana.PublicKey
	if len(instruction.Accounts) >= 1 {
		if idx := instruction.Accounts[0]; int(idx) < len(accountKeys) {
			addr := accountKeys[idx]
			from = &addr
		}
	}
	if len(instruction.Accounts) >= 2 {
		if idx := instruction.Accounts[1]; int(idx) < len(accountKeys) {
			addr := accountKeys[idx]
			to = &addr
		}
	}

	return amount, from, to, nil
}

// parseTokenTransfer extracts amount, decimals, token mint, and source
// from an SPL Token transfer instruction.
func parseTokenTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (amount uint64, decimals uint8, mint solana.PublicKey, fromAddr *solana.PublicKey, err error) {
	if len(instruction.Data) == 0 {
		return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("empty instruction data")
	}

	switch instruction.Data[0] {
	case TokenProgramTransferInstruction:
		// Transfer layout:
		//   [0]    instruction type (u8, 3 = Transfer)
		//   [1..9] amount (u64)
		// The plain Transfer carries no mint or decimals; the source is
		// a token account rather than the owner wallet, so both stay
		// unset.
		if len(instruction.Data) < 9 {
			return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("transfer instruction data too short")
		}
		amount = binary.LittleEndian.Uint64(instruction.Data[1:9])
		return amount, 0, solana.PublicKey{}, nil, nil

	case TokenProgramTransferCheckedInstruction:
		// TransferChecked layout:
		//   [0]    instruction type (u8, 12 = TransferChecked)
		//   [1..9] amount (u64)
		//   [9]    decimals (u8)
		// Accounts: [source_token_account, mint, destination_token_account, authority, ...]
		if len(instruction.Data) < 10 {
			return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("transferChecked instruction data too short")
		}
		amount = binary.LittleEndian.Uint64(instruction.Data[1:9])
		decimals = instruction.Data[9]

		if len(instruction.Accounts) < 4 {
			return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("transferChecked missing accounts")
		}

		mintIndex := instruction.Accounts[1]
		if int(mintIndex) >= len(accountKeys) {
			return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("mint account index out of bounds")
		}
		mint = accountKeys[mintIndex]

		// The authority is the wallet that signed the transfer.
		if idx := instruction.Accounts[3]; int(idx) < len(accountKeys) {
			addr := accountKeys[idx]
			fromAddr = &addr
		}

		return amount, decimals, mint, fromAddr, nil

	default:
		return 0, 0, solana.PublicKey{}, nil, fmt.Errorf("unknown token instruction type: %d", instruction.Data[0])
	}
}

// parseMemo extracts the memo text from a Memo Program instruction.
// Some memos arrive base64 encoded, others as plain UTF-8.
func parseMemo(data []byte) string {
	memo := string(data)

	if decoded, err := base64.StdEncoding.DecodeString(memo); err == nil {
		if isPrintable(decoded) {
			return string(decoded)
		}
	}

	return memo
}

// isPrintable rejects byte strings with embedded nulls.
func isPrintable(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return false
		}
	}
	return true
}

func keyString(key *solana.PublicKey) *string {
	if key == nil {
		return nil
	}
	s := key.String()
	return &s
}
