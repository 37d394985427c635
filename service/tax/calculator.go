// Package tax implements the host-side tax calculator. It aggregates
// categorized ledger rows into INR totals and applies the fixed rule set:
// slab tax on professional income, flat-rate VDA tax, optional 44ADA
// presumptive reduction, corporate surcharge, and cess.
//
// The zkVM guest reimplements the same arithmetic on scaled integers.
// To keep the two bit-identical, every parse and every multiplication
// here truncates to WorkingScale fractional digits, mirroring the
// guest's truncating fixed-point operations. Do not substitute rounding
// for truncation anywhere in this package.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/veritax/veritax/service/ledger"
)

// WorkingScale is the number of fractional digits carried through
// intermediate arithmetic in both execution environments.
const WorkingScale = 18

// Fixed rates, expressed in percent.
const (
	corporateRatePct = 25
	surchargePct     = 10
	vdaRatePct       = 30
	cessPct          = 4
	presumptivePct   = 50
)

// slab is one bracket of the progressive schedule. A zero UpTo marks the
// open-ended top bracket.
type slab struct {
	UpTo    int64 // upper bound in INR, inclusive
	RatePct int64
}

// slabSchedule is the seven-bracket progressive schedule applied to
// individual and HUF professional income.
var slabSchedule = []slab{
	{UpTo: 400000, RatePct: 0},
	{UpTo: 800000, RatePct: 5},
	{UpTo: 1200000, RatePct: 10},
	{UpTo: 1600000, RatePct: 15},
	{UpTo: 2000000, RatePct: 20},
	{UpTo: 2400000, RatePct: 25},
	{UpTo: 0, RatePct: 30},
}

// Breakdown is the human-readable result of a tax computation. All
// amounts are INR strings formatted to two decimal places.
type Breakdown struct {
	ProfessionalIncomeINR        string `json:"professional_income_inr"`
	TaxableProfessionalIncomeINR string `json:"taxable_professional_income_inr"`
	VDAGainsINR                  string `json:"vda_gains_inr"`
	VDALossesINR                 string `json:"vda_losses_inr"`
	ProfessionalTaxINR           string `json:"professional_tax_inr"`
	VDATaxINR                    string `json:"vda_tax_inr"`
	CessINR                      string `json:"cess_inr"`
	TotalTaxINR                  string `json:"total_tax_inr"`
}

// TotalTaxPaisa returns the breakdown's total tax scaled to integer
// paisa. The string was produced by truncating to two decimals, so the
// conversion is exact.
func (b Breakdown) TotalTaxPaisa() uint64 {
	d, err := decimal.NewFromString(b.TotalTaxINR)
	if err != nil {
		return 0
	}
	return uint64(d.Shift(2).IntPart())
}

// parseDecimal parses a decimal string, truncating to the working scale.
// Unparsable values degrade to zero: noisy chain data must never abort a
// computation.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Truncate(WorkingScale)
}

// mulTrunc multiplies two working-scale values and truncates the result
// back to the working scale.
func mulTrunc(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(WorkingScale)
}

// applyPct applies an integer percentage: v × pct / 100, truncated to
// the working scale. Shift(-2) moves the decimal point exactly, so no
// division is involved.
func applyPct(v decimal.Decimal, pct int64) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(pct)).Shift(-2).Truncate(WorkingScale)
}

// Compute runs the full tax calculation over a categorized input. It is
// pure: no I/O, no mutation of the input.
func Compute(in ledger.TaxInput) Breakdown {
	rate := parseDecimal(in.USDINRRate)

	var income, gains, losses decimal.Decimal
	for i := range in.Ledger {
		row := &in.Ledger[i]
		// Only inflows contribute to taxable totals. Outbound legs,
		// fees, internal moves, and unknowns carry no tax effect.
		if row.Direction != ledger.DirectionIn {
			continue
		}
		switch row.Category {
		case ledger.CategoryIncome, ledger.CategoryGains, ledger.CategoryLosses:
		default:
			continue
		}

		amount := parseDecimal(row.Amount)
		price := parseDecimal(ledger.PriceFor(in.Prices, row.Asset))
		inr := mulTrunc(mulTrunc(amount, price), rate)

		switch row.Category {
		case ledger.CategoryIncome:
			income = income.Add(inr)
		case ledger.CategoryGains:
			gains = gains.Add(inr)
		case ledger.CategoryLosses:
			// Tracked for reporting only. VDA losses are never netted
			// against gains under this regime.
			losses = losses.Add(inr)
		}
	}

	taxable := income
	if in.Use44ADA && in.UserType == ledger.UserIndividual {
		taxable = applyPct(income, presumptivePct)
	}

	var incomeTax decimal.Decimal
	if in.UserType == ledger.UserCorporate {
		base := applyPct(taxable, corporateRatePct)
		surcharge := applyPct(base, surchargePct)
		incomeTax = base.Add(surcharge)
	} else {
		incomeTax = slabTax(taxable)
	}

	vdaTax := applyPct(gains, vdaRatePct)
	cess := applyPct(incomeTax.Add(vdaTax), cessPct)
	total := incomeTax.Add(vdaTax).Add(cess)

	return Breakdown{
		ProfessionalIncomeINR:        formatINR(income),
		TaxableProfessionalIncomeINR: formatINR(taxable),
		VDAGainsINR:                  formatINR(gains),
		VDALossesINR:                 formatINR(losses),
		ProfessionalTaxINR:           formatINR(incomeTax),
		VDATaxINR:                    formatINR(vdaTax),
		CessINR:                      formatINR(cess),
		TotalTaxINR:                  formatINR(total),
	}
}

// slabTax walks the progressive schedule in ascending order, taxing only
// the portion of income inside each bracket and stopping at the first
// bracket whose upper bound is not exceeded.
func slabTax(taxable decimal.Decimal) decimal.Decimal {
	var tax decimal.Decimal
	prev := decimal.Zero
	for _, s := range slabSchedule {
		if s.UpTo == 0 {
			// Open-ended top bracket.
			portion := taxable.Sub(prev)
			if portion.IsPositive() {
				tax = tax.Add(applyPct(portion, s.RatePct))
			}
			break
		}
		upper := decimal.NewFromInt(s.UpTo)
		if taxable.GreaterThan(upper) {
			tax = tax.Add(applyPct(upper.Sub(prev), s.RatePct))
			prev = upper
			continue
		}
		portion := taxable.Sub(prev)
		if portion.IsPositive() {
			tax = tax.Add(applyPct(portion, s.RatePct))
		}
		break
	}
	return tax
}

// formatINR truncates to paisa precision and renders two decimals.
func formatINR(d decimal.Decimal) string {
	return d.Truncate(2).StringFixed(2)
}
