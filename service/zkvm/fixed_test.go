package zkvm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixed_MatchesDecimalTruncation(t *testing.T) {
	cases := []string{
		"0", "1", "-1", "+2", "123456789",
		"1.5", "0.000000000000000001", "-0.25",
		".5", "1.",
		"0.1234567890123456789999", // beyond scale, truncates
		"2e3", "1.5e-2", "3E+1",
	}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			f, ok := parseFixed(s)
			require.True(t, ok)
			want := decimal.RequireFromString(s).Truncate(fixedScale).Shift(fixedScale)
			assert.Equal(t, want.String(), f.v.String())
		})
	}
}

func TestParseFixed_RejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "  ", "abc", "1.2.3", "1e", "--1", "0x10", "1e9999999"} {
		t.Run(s, func(t *testing.T) {
			f, ok := parseFixed(s)
			assert.False(t, ok)
			assert.Zero(t, f.v.Sign())
		})
	}
}

func TestFixed_ApplyPctTruncates(t *testing.T) {
	// 1 unit at the smallest scale: 50% of it truncates to zero.
	f, ok := parseFixed("0.000000000000000001")
	require.True(t, ok)
	assert.Zero(t, f.applyPct(50).v.Sign())

	g, ok := parseFixed("100")
	require.True(t, ok)
	assert.Equal(t, fixedFromInt(30).v.String(), g.applyPct(30).v.String())
}

func TestFixed_MulTrunc(t *testing.T) {
	a, _ := parseFixed("1.000000000000000001")
	b, _ := parseFixed("1.000000000000000001")
	// Cross term 2e-18 survives, the 1e-36 term truncates away.
	want, _ := parseFixed("1.000000000000000002")
	assert.Equal(t, want.v.String(), a.mulTrunc(b).v.String())
}

func TestFixed_Paisa(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"1", 100},
		{"248850.00", 24885000},
		{"0.009999999999999999", 0},
		{"0.01", 1},
		{"12.349999", 1234},
		{"-5", 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			f, ok := parseFixed(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, f.paisa())
		})
	}
}
