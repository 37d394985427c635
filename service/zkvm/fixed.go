package zkvm

import (
	"math/big"
	"strings"
)

// Fixed-point arithmetic for the guest. The constrained environment has
// no floating point, so every monetary value is an integer scaled by
// 10^fixedScale. All operations truncate toward zero, matching the
// host calculator's truncation discipline digit for digit.

// fixedScale is the number of fractional digits carried by a fixed
// value. It must equal the host calculator's working scale.
const fixedScale = 18

var (
	fixedOne   = pow10(fixedScale)
	paisaShift = pow10(fixedScale - 2)
	bigHundred = big.NewInt(100)
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// fixed is an INR (or intermediate) value scaled by 10^fixedScale.
type fixed struct {
	v *big.Int
}

func fixedZero() fixed {
	return fixed{v: new(big.Int)}
}

// parseFixed parses a decimal string ("123", "1.5", "-0.25", "2e3")
// into a fixed value, truncating fractional digits beyond fixedScale.
// Unparsable strings yield (zero, false); callers degrade to a zero
// contribution rather than failing.
func parseFixed(s string) (fixed, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fixedZero(), false
	}

	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}

	mantissa := s
	exp := 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		e, ok := parseInt(s[i+1:])
		if !ok {
			return fixedZero(), false
		}
		exp = e
	}

	intPart := mantissa
	fracPart := ""
	if i := strings.IndexByte(mantissa, '.'); i >= 0 {
		intPart = mantissa[:i]
		fracPart = mantissa[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return fixedZero(), false
	}
	digits := intPart + fracPart
	for _, c := range digits {
		if c < '0' || c > '9' {
			return fixedZero(), false
		}
	}

	m, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return fixedZero(), false
	}

	// value = m * 10^(exp - len(frac)); rescale to fixedScale with
	// truncation toward zero.
	shift := fixedScale + exp - len(fracPart)
	if shift >= 0 {
		m.Mul(m, pow10(shift))
	} else {
		m.Quo(m, pow10(-shift))
	}
	if neg {
		m.Neg(m)
	}
	return fixed{v: m}, true
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, false
		}
	}
	if neg {
		n = -n
	}
	return n, true
}

func (f fixed) add(o fixed) fixed {
	return fixed{v: new(big.Int).Add(f.v, o.v)}
}

func (f fixed) sub(o fixed) fixed {
	return fixed{v: new(big.Int).Sub(f.v, o.v)}
}

// mulTrunc multiplies two fixed values, truncating the result back to
// fixedScale.
func (f fixed) mulTrunc(o fixed) fixed {
	p := new(big.Int).Mul(f.v, o.v)
	return fixed{v: p.Quo(p, fixedOne)}
}

// applyPct multiplies by an integer percentage with truncation. This is
// the only form of division in the guest.
func (f fixed) applyPct(pct int64) fixed {
	p := new(big.Int).Mul(f.v, big.NewInt(pct))
	return fixed{v: p.Quo(p, bigHundred)}
}

func (f fixed) cmp(o fixed) int {
	return f.v.Cmp(o.v)
}

func (f fixed) isPositive() bool {
	return f.v.Sign() > 0
}

func fixedFromInt(n int64) fixed {
	return fixed{v: new(big.Int).Mul(big.NewInt(n), fixedOne)}
}

// paisa truncates to two fractional digits and returns the value as
// integer paisa. Negative totals clamp to zero; the tax rules never
// produce one, but the public output field is unsigned.
func (f fixed) paisa() uint64 {
	p := new(big.Int).Quo(f.v, paisaShift)
	if p.Sign() < 0 {
		return 0
	}
	return p.Uint64()
}
