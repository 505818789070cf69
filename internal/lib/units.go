package lib

import (
	"errors"
	"fmt"
	"math/big"
)

// WND amounts are carried as integers in planck. Decimal WND strings appear
// only at the CLI boundary and in log output.
const WNDDecimals = 12

var ErrAmountInvalid = errors.New("invalid WND amount")

var planckPerWND = new(big.Int).Exp(big.NewInt(10), big.NewInt(WNDDecimals), nil)

// ParseWND converts a decimal WND string (e.g. "1.5") to planck, truncating
// anything below one planck. Uses rational arithmetic so no precision is lost
// on the way.
func ParseWND(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAmountInvalid, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrAmountInvalid, s)
	}
	r.Mul(r, new(big.Rat).SetInt(planckPerWND))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// FormatWND renders a planck amount as a decimal WND string with 4 fractional
// digits. Display only, never used for arithmetic or comparisons.
func FormatWND(planck *big.Int) string {
	if planck == nil {
		return "0.0000"
	}
	r := new(big.Rat).SetFrac(planck, planckPerWND)
	return r.FloatString(4)
}

// MulPercent returns amount*percent/100 rounded down.
func MulPercent(amount *big.Int, percent uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, big.NewInt(100))
}
