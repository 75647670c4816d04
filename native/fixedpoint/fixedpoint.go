// Package fixedpoint holds the 18-decimal fixed-point helpers used by the
// pricing engines. Values are unsigned 256-bit integers; a percentage is a
// fraction of Scale, so Percent100 equals Scale.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow          = errors.New("fixedpoint: overflow")
	ErrDivisionByZero    = errors.New("fixedpoint: division by zero")
	ErrNegative          = errors.New("fixedpoint: negative value")
	ErrPercentageTooHigh = errors.New("fixedpoint: percentage above 100%")
)

// Scale is 1.0 in fixed point (1e18).
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// Percent100 is 100% expressed as a fixed-point fraction.
var Percent100 = new(uint256.Int).Set(Scale)

// Percent returns p% in fixed point. Intended for configuration and tests.
func Percent(p uint64) *uint256.Int {
	out := new(uint256.Int).Mul(uint256.NewInt(p), Scale)
	return out.Div(out, uint256.NewInt(100))
}

// FromBig converts an amount into a uint256, rejecting negative values and
// values wider than 256 bits.
func FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegative
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// ToBig converts back to the big.Int representation used at API boundaries.
func ToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

// MulDiv computes x*y/d with a 512-bit intermediate, flooring the result.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulWad multiplies two fixed-point values.
func MulWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, y, Scale)
}

// Periods returns duration/basePeriod in fixed point without flooring to a
// whole number of periods.
func Periods(duration, basePeriod uint64) (*uint256.Int, error) {
	if basePeriod == 0 {
		return nil, ErrDivisionByZero
	}
	return MulDiv(uint256.NewInt(duration), Scale, uint256.NewInt(basePeriod))
}

// ValidatePercentage rejects fractions above 100%.
func ValidatePercentage(p *uint256.Int) error {
	if p == nil {
		return nil
	}
	if p.Gt(Percent100) {
		return ErrPercentageTooHigh
	}
	return nil
}

// ApplyPercentage returns amount*pct.
func ApplyPercentage(amount, pct *uint256.Int) (*uint256.Int, error) {
	return MulWad(amount, pct)
}

// ApplyDiscount returns amount*(100% - discount).
func ApplyDiscount(amount, discount *uint256.Int) (*uint256.Int, error) {
	if err := ValidatePercentage(discount); err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(Percent100, discount)
	return MulWad(amount, remaining)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
