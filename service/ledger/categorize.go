package ledger

import (
	"strconv"
	"strings"
)

// feeAmountThreshold is the heuristic cutoff below which an outbound
// native-asset transfer to an unrecognized counterparty is treated as a
// gas payment.
const feeAmountThreshold = 0.01

// nativeAssets are the symbols treated as a chain's native asset for the
// fee heuristic.
var nativeAssets = map[string]bool{
	"ETH": true,
	"SOL": true,
}

// KnownContracts is the injected configuration for the rule cascade: the
// contract addresses whose inflows are recognized as gains or losses and
// whose outflows are deposit legs. It is configuration, not code.
type KnownContracts struct {
	Gains  []string
	Losses []string
	Yield  []string
}

// Categorizer classifies ledger rows with an ordered rule cascade. It is
// stateless after construction and safe for concurrent use.
type Categorizer struct {
	gains  map[string]bool
	losses map[string]bool
	yield  map[string]bool
}

// NewCategorizer builds a Categorizer from the configured contract sets.
// Addresses are lowercased and empty entries are dropped at construction,
// so an unset address is structurally unable to match an empty
// counterparty string.
func NewCategorizer(contracts KnownContracts) *Categorizer {
	return &Categorizer{
		gains:  addressSet(contracts.Gains),
		losses: addressSet(contracts.Losses),
		yield:  addressSet(contracts.Yield),
	}
}

func addressSet(addrs []string) map[string]bool {
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			set[a] = true
		}
	}
	return set
}

// Categorize classifies a single row against the caller's owned-address
// set. It is a pure function of its inputs; address comparison is
// case-insensitive. Rule order is a correctness contract: first match
// wins.
func (c *Categorizer) Categorize(row *LedgerRow, owned map[string]bool) (Category, float32) {
	counterparty := ""
	if row.Counterparty != nil {
		counterparty = strings.ToLower(*row.Counterparty)
	}

	// Rule 1: transfers between the user's own wallets.
	if counterparty != "" && owned[counterparty] {
		return CategoryInternal, 1.0
	}

	if row.Direction == DirectionIn {
		// Rules 2-3: inflows from known gain/loss contracts.
		if c.gains[counterparty] && counterparty != "" {
			return CategoryGains, 0.95
		}
		if c.losses[counterparty] && counterparty != "" {
			return CategoryLosses, 0.95
		}
	}

	if row.Direction == DirectionOut && counterparty != "" {
		// Rule 4: deposit legs into known contracts inherit the category
		// of the inflow they will eventually produce.
		switch {
		case c.gains[counterparty]:
			return CategoryGains, 0.90
		case c.losses[counterparty]:
			return CategoryLosses, 0.90
		case c.yield[counterparty]:
			return CategoryGains, 0.90
		}
	}

	// Rule 5: small outbound native transfers look like gas payments.
	if row.Direction == DirectionOut && nativeAssets[row.Asset] {
		if amt, err := strconv.ParseFloat(row.Amount, 64); err == nil && amt < feeAmountThreshold {
			return CategoryFees, 0.80
		}
	}

	// Rule 6: remaining inflows default to income, flagged low-confidence
	// so a human reviews them.
	if row.Direction == DirectionIn {
		return CategoryIncome, 0.60
	}

	return CategoryUnknown, 0.0
}

// Apply categorizes every row in place, skipping rows a human has
// already overridden.
func (c *Categorizer) Apply(rows []LedgerRow, owned map[string]bool) {
	for i := range rows {
		if rows[i].UserOverride {
			continue
		}
		cat, conf := c.Categorize(&rows[i], owned)
		rows[i].Category = cat
		rows[i].Confidence = conf
	}
}
