package solana

import (
	"time"
)

// Transfer is one parsed Solana transfer, independent of the RPC
// response format. Amounts are in base units (lamports for SOL, raw
// token units for SPL transfers) until normalization.
type Transfer struct {
	Signature   string
	Slot        uint64
	BlockTime   time.Time
	Amount      uint64
	Decimals    uint8
	TokenMint   *string // nil for native SOL transfers
	Memo        *string
	FromAddress *string
	ToAddress   *string
	Err         *string // nil if the transaction succeeded
}

// Failed reports whether the transaction errored on chain.
func (t *Transfer) Failed() bool {
	return t.Err != nil
}
