// Package zkvm is the guest-side implementation of the attestation
// computation. It re-derives the same result as the host packages, but
// under the guest environment's constraints: no floating point, no
// library decimal type, and a hash built from the raw SHA-256 block
// primitives. The host and guest implementations are developed as a
// pair; any change to the tax rules or the ledger encoding lands in
// both, and the golden-vector tests hold them bit-identical.
package zkvm

import (
	"fmt"

	"github.com/veritax/veritax/service/ledger"
)

// Guest copies of the fixed rates, in percent.
const (
	guestCorporateRatePct int64 = 25
	guestSurchargePct     int64 = 10
	guestVDARatePct       int64 = 30
	guestCessPct          int64 = 4
	guestPresumptivePct   int64 = 50
)

type guestSlab struct {
	upTo    int64
	ratePct int64
}

// guestSlabs is the guest's copy of the progressive schedule. A zero
// upTo marks the open-ended top bracket.
var guestSlabs = []guestSlab{
	{upTo: 400000, ratePct: 0},
	{upTo: 800000, ratePct: 5},
	{upTo: 1200000, ratePct: 10},
	{upTo: 1600000, ratePct: 15},
	{upTo: 2000000, ratePct: 20},
	{upTo: 2400000, ratePct: 25},
	{upTo: 0, ratePct: 30},
}

// Run executes the full guest program over a tax input and returns the
// encoded public values: ledger commitment, total tax in paisa, user
// type, and the presumptive election flag.
func Run(in ledger.TaxInput) ([]byte, error) {
	code, err := in.UserType.Code()
	if err != nil {
		return nil, fmt.Errorf("guest: %w", err)
	}

	commitment := Sum256(ledger.CanonicalBytes(in.Ledger))

	pv := PublicValues{
		LedgerCommitment: commitment,
		TotalTaxPaisa:    computeTaxPaisa(in),
		UserTypeCode:     code,
		Use44ADA:         in.Use44ADA,
	}
	return EncodePublicValues(pv), nil
}

// computeTaxPaisa mirrors the host calculator on truncating fixed-point
// integers: aggregate inflows by category, apply the presumptive
// reduction, then slab or corporate tax, the flat VDA rate, and cess.
func computeTaxPaisa(in ledger.TaxInput) uint64 {
	rate, _ := parseFixed(in.USDINRRate)

	income := fixedZero()
	gains := fixedZero()
	for i := range in.Ledger {
		row := &in.Ledger[i]
		if row.Direction != ledger.DirectionIn {
			continue
		}
		switch row.Category {
		case ledger.CategoryIncome, ledger.CategoryGains:
		case ledger.CategoryLosses:
			// Reported by the host but excluded from the tax base, so
			// the guest skips them entirely.
			continue
		default:
			continue
		}

		amount, _ := parseFixed(row.Amount)
		price, _ := parseFixed(ledger.PriceFor(in.Prices, row.Asset))
		inr := amount.mulTrunc(price).mulTrunc(rate)

		if row.Category == ledger.CategoryIncome {
			income = income.add(inr)
		} else {
			gains = gains.add(inr)
		}
	}

	taxable := income
	if in.Use44ADA && in.UserType == ledger.UserIndividual {
		taxable = income.applyPct(guestPresumptivePct)
	}

	var incomeTax fixed
	if in.UserType == ledger.UserCorporate {
		base := taxable.applyPct(guestCorporateRatePct)
		incomeTax = base.add(base.applyPct(guestSurchargePct))
	} else {
		incomeTax = guestSlabTax(taxable)
	}

	vdaTax := gains.applyPct(guestVDARatePct)
	cess := incomeTax.add(vdaTax).applyPct(guestCessPct)
	total := incomeTax.add(vdaTax).add(cess)
	return total.paisa()
}

func guestSlabTax(taxable fixed) fixed {
	tax := fixedZero()
	prev := fixedZero()
	for _, s := range guestSlabs {
		if s.upTo == 0 {
			portion := taxable.sub(prev)
			if portion.isPositive() {
				tax = tax.add(portion.applyPct(s.ratePct))
			}
			break
		}
		upper := fixedFromInt(s.upTo)
		if taxable.cmp(upper) > 0 {
			tax = tax.add(upper.sub(prev).applyPct(s.ratePct))
			prev = upper
			continue
		}
		portion := taxable.sub(prev)
		if portion.isPositive() {
			tax = tax.add(portion.applyPct(s.ratePct))
		}
		break
	}
	return tax
}
