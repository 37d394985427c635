package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritax/veritax/service/ledger"
)

func strPtr(s string) *string { return &s }

func incomeRow(amount string) ledger.LedgerRow {
	return ledger.LedgerRow{
		ChainID:      11155111,
		OwnerWallet:  "0xaaa",
		TxHash:       "0x" + amount,
		BlockTime:    1700000000,
		Asset:        "ETH",
		Amount:       amount,
		Decimals:     18,
		Direction:    ledger.DirectionIn,
		Counterparty: strPtr("0xbbb"),
		Category:     ledger.CategoryIncome,
		Confidence:   0.6,
	}
}

func baseInput(rows ...ledger.LedgerRow) ledger.TaxInput {
	return ledger.TaxInput{
		UserType:   ledger.UserIndividual,
		Ledger:     rows,
		Prices:     []ledger.PriceEntry{{Asset: "ETH", USDPrice: "2000.00"}},
		USDINRRate: "83.00",
	}
}

func TestCompute_EndToEndExample(t *testing.T) {
	// One inbound 1.5 ETH income row at $2000 and rate 83:
	// gross income = 1.5 * 2000 * 83 = 248850 INR, inside the zero slab.
	b := Compute(baseInput(incomeRow("1.5")))

	assert.Equal(t, "248850.00", b.ProfessionalIncomeINR)
	assert.Equal(t, "248850.00", b.TaxableProfessionalIncomeINR)
	assert.Equal(t, "0.00", b.ProfessionalTaxINR)
	assert.Equal(t, "0.00", b.VDATaxINR)
	assert.Equal(t, "0.00", b.CessINR)
	assert.Equal(t, "0.00", b.TotalTaxINR)
	assert.Equal(t, uint64(0), b.TotalTaxPaisa())
}

func TestCompute_GainsAndCess(t *testing.T) {
	gains := incomeRow("0.5")
	gains.Category = ledger.CategoryGains

	b := Compute(baseInput(incomeRow("1.5"), gains))

	// gains = 0.5 * 2000 * 83 = 83000; VDA tax = 30% = 24900;
	// income tax = 0; cess = 4% of 24900 = 996; total = 25896.
	assert.Equal(t, "83000.00", b.VDAGainsINR)
	assert.Equal(t, "24900.00", b.VDATaxINR)
	assert.Equal(t, "996.00", b.CessINR)
	assert.Equal(t, "25896.00", b.TotalTaxINR)
	assert.Equal(t, uint64(2589600), b.TotalTaxPaisa())
}

func TestCompute_LossesReportedNeverOffset(t *testing.T) {
	gains := incomeRow("0.5")
	gains.Category = ledger.CategoryGains
	losses := incomeRow("0.25")
	losses.Category = ledger.CategoryLosses

	b := Compute(baseInput(gains, losses))

	assert.Equal(t, "83000.00", b.VDAGainsINR)
	assert.Equal(t, "41500.00", b.VDALossesINR)
	// VDA tax still computed on the full gains figure.
	assert.Equal(t, "24900.00", b.VDATaxINR)
}

func TestCompute_SlabWalk(t *testing.T) {
	// 10 ETH * 2000 * 83 = 1,660,000 INR taxable.
	// 0-400k @0 = 0; 400-800k @5 = 20000; 800k-1.2M @10 = 40000;
	// 1.2-1.6M @15 = 60000; 1.6-1.66M @20 = 12000. Income tax = 132000.
	// Cess = 5280. Total = 137280.
	b := Compute(baseInput(incomeRow("10")))

	assert.Equal(t, "1660000.00", b.ProfessionalIncomeINR)
	assert.Equal(t, "132000.00", b.ProfessionalTaxINR)
	assert.Equal(t, "5280.00", b.CessINR)
	assert.Equal(t, "137280.00", b.TotalTaxINR)
}

func TestCompute_44ADAHalvesIndividualIncome(t *testing.T) {
	in := baseInput(incomeRow("1.5"))
	in.Use44ADA = true

	b := Compute(in)
	assert.Equal(t, "248850.00", b.ProfessionalIncomeINR)
	assert.Equal(t, "124425.00", b.TaxableProfessionalIncomeINR)
}

func TestCompute_44ADAIgnoredForNonIndividuals(t *testing.T) {
	for _, ut := range []ledger.UserType{ledger.UserHUF, ledger.UserCorporate} {
		in := baseInput(incomeRow("1.5"))
		in.UserType = ut
		in.Use44ADA = true

		b := Compute(in)
		assert.Equal(t, b.ProfessionalIncomeINR, b.TaxableProfessionalIncomeINR,
			"presumptive reduction must not apply to %s", ut)
	}
}

func TestCompute_CorporateFlatRateWithSurcharge(t *testing.T) {
	in := baseInput(incomeRow("10")) // 1,660,000 INR
	in.UserType = ledger.UserCorporate

	// base = 25% = 415000; surcharge = 10% of base = 41500;
	// income tax = 456500; cess = 18260; total = 474760.
	b := Compute(in)
	assert.Equal(t, "456500.00", b.ProfessionalTaxINR)
	assert.Equal(t, "18260.00", b.CessINR)
	assert.Equal(t, "474760.00", b.TotalTaxINR)
}

func TestCompute_OnlyInflowsCount(t *testing.T) {
	out := incomeRow("100")
	out.Direction = ledger.DirectionOut

	internal := incomeRow("100")
	internal.Category = ledger.CategoryInternal
	fees := incomeRow("100")
	fees.Category = ledger.CategoryFees
	unknown := incomeRow("100")
	unknown.Category = ledger.CategoryUnknown

	b := Compute(baseInput(out, internal, fees, unknown))
	assert.Equal(t, "0.00", b.ProfessionalIncomeINR)
	assert.Equal(t, "0.00", b.TotalTaxINR)
}

func TestCompute_MalformedDataDegradesToZero(t *testing.T) {
	bad := incomeRow("not-a-number")
	in := baseInput(bad, incomeRow("1.5"))
	in.Prices = append(in.Prices, ledger.PriceEntry{Asset: "JUNK", USDPrice: "??"})

	b := Compute(in)
	// The malformed row contributes nothing; the good row still counts.
	assert.Equal(t, "248850.00", b.ProfessionalIncomeINR)
}

func TestCompute_MissingPriceDefaultsToOne(t *testing.T) {
	row := incomeRow("100")
	row.Asset = "MYSTERY"

	b := Compute(baseInput(row))
	// 100 * 1.00 * 83 = 8300 INR.
	assert.Equal(t, "8300.00", b.ProfessionalIncomeINR)
}

func TestCompute_Monotonicity(t *testing.T) {
	// Increasing a single row's income never decreases total tax.
	amounts := []string{"1", "5", "10", "25", "50", "100", "500"}
	prev := uint64(0)
	for _, amt := range amounts {
		b := Compute(baseInput(incomeRow(amt)))
		paisa := b.TotalTaxPaisa()
		require.GreaterOrEqual(t, paisa, prev, "tax decreased at amount %s", amt)
		prev = paisa
	}
}

func TestTotalTaxPaisa_ScalesExactly(t *testing.T) {
	for _, tc := range []struct {
		inr   string
		paisa uint64
	}{
		{"0.00", 0},
		{"0.01", 1},
		{"25896.00", 2589600},
		{"137280.00", 13728000},
	} {
		t.Run(tc.inr, func(t *testing.T) {
			b := Breakdown{TotalTaxINR: tc.inr}
			assert.Equal(t, tc.paisa, b.TotalTaxPaisa())
		})
	}
}
