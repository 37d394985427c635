// Package ledger defines the canonical transaction model shared by every
// component of the service: the normalized ledger row, the price table,
// the tax input consumed by both the host calculator and the zkVM guest,
// and the deterministic byte encoding those two environments hash.
package ledger

import (
	"fmt"
	"strings"
)

// UserType identifies the tax entity being assessed.
type UserType string

const (
	UserIndividual UserType = "individual"
	UserHUF        UserType = "huf"
	UserCorporate  UserType = "corporate"
)

// Code returns the single-byte wire code for the user type, as embedded
// in the public values record (0=individual, 1=huf, 2=corporate).
func (u UserType) Code() (byte, error) {
	switch u {
	case UserIndividual:
		return 0, nil
	case UserHUF:
		return 1, nil
	case UserCorporate:
		return 2, nil
	}
	return 0, fmt.Errorf("unknown user type %q", u)
}

// Valid reports whether u is one of the recognized user types.
func (u UserType) Valid() bool {
	_, err := u.Code()
	return err == nil
}

// Category is the tax-relevant bucket a transaction falls into.
type Category string

const (
	// CategoryIncome marks external inflows treated as professional income.
	CategoryIncome Category = "income"
	// CategoryGains marks VDA gains realized from known contracts.
	CategoryGains Category = "gains"
	// CategoryLosses marks VDA losses. Reported but never offset against gains.
	CategoryLosses Category = "losses"
	// CategoryFees marks gas and transaction fees paid out.
	CategoryFees Category = "fees"
	// CategoryInternal marks transfers between the user's own wallets.
	CategoryInternal Category = "internal"
	// CategoryUnknown marks rows no rule matched. Needs human review.
	CategoryUnknown Category = "unknown"
)

// categoryCodes fixes the canonical byte value for each category. The
// ordering is part of the commitment encoding and must not change.
var categoryCodes = map[Category]byte{
	CategoryIncome:   0,
	CategoryGains:    1,
	CategoryLosses:   2,
	CategoryFees:     3,
	CategoryInternal: 4,
	CategoryUnknown:  5,
}

// Code returns the canonical byte value for the category. Unrecognized
// categories map to the unknown code so malformed data degrades instead
// of aborting a batch.
func (c Category) Code() byte {
	if code, ok := categoryCodes[c]; ok {
		return code
	}
	return categoryCodes[CategoryUnknown]
}

// Direction of a transfer relative to the owning wallet.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Code returns the canonical byte value for the direction (in=0, out=1).
func (d Direction) Code() byte {
	if d == DirectionOut {
		return 1
	}
	return 0
}

// LedgerRow is one normalized transaction, chain-agnostic. Amounts are
// decimal strings rather than floats to preserve precision end to end.
type LedgerRow struct {
	ChainID      uint64    `json:"chain_id"`
	OwnerWallet  string    `json:"owner_wallet"`
	TxHash       string    `json:"tx_hash"`
	BlockTime    uint64    `json:"block_time"`
	Asset        string    `json:"asset"`
	Amount       string    `json:"amount"`
	Decimals     uint8     `json:"decimals"`
	Direction    Direction `json:"direction"`
	Counterparty *string   `json:"counterparty,omitempty"`
	Category     Category  `json:"category"`
	Confidence   float32   `json:"confidence"`
	// UserOverride marks a human-set category. Once true, automatic
	// categorization must never overwrite Category or Confidence.
	UserOverride bool `json:"user_override"`
}

// PriceEntry maps an asset symbol to its USD price as a decimal string.
type PriceEntry struct {
	Asset    string `json:"asset"`
	USDPrice string `json:"usd_price"`
}

// DefaultUSDPrice is the documented fallback for assets missing from the
// price table. A missing price is expected noisy-data behavior, not an
// error.
const DefaultUSDPrice = "1"

// PriceFor returns the USD price string for asset, falling back to
// DefaultUSDPrice when no entry matches. Lookup is by exact symbol.
func PriceFor(prices []PriceEntry, asset string) string {
	for _, p := range prices {
		if p.Asset == asset {
			return p.USDPrice
		}
	}
	return DefaultUSDPrice
}

// TaxInput is the atomic unit of computation: everything the calculator,
// commitment builder, and guest program need. It is constructed once per
// request and treated as read-only after categorization completes.
type TaxInput struct {
	UserType   UserType    `json:"user_type"`
	Wallets    []string    `json:"wallets"`
	Ledger     []LedgerRow `json:"ledger"`
	Prices     []PriceEntry `json:"prices"`
	USDINRRate string      `json:"usd_inr_rate"`
	Use44ADA   bool        `json:"use_44ada"`
}

// OwnedSet returns the lowercase set of the input's wallet addresses.
// Empty strings are dropped so they can never match a counterparty.
func (in *TaxInput) OwnedSet() map[string]bool {
	owned := make(map[string]bool, len(in.Wallets))
	for _, w := range in.Wallets {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			owned[w] = true
		}
	}
	return owned
}
