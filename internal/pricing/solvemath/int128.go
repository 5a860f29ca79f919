package solvemath

import (
	"math/big"

	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

// Int128 is a signed 128-bit integer in two's complement. Its layout matches
// a little-endian i128, so it encodes directly into records.
type Int128 struct {
	Lo uint64
	Hi uint64
}

const signBit = uint64(1) << 63

// NewInt128 builds a signed value from a magnitude and a sign. The magnitude
// must fit in 127 bits.
func NewInt128(abs uint128.Uint128, negative bool) (Int128, error) {
	if abs.Hi&signBit != 0 {
		return Int128{}, errs.ErrNumberDownCastOverflow
	}
	v := Int128{Lo: abs.Lo, Hi: abs.Hi}
	if negative {
		v = v.Neg()
	}
	return v, nil
}

func (x Int128) u() uint128.Uint128 { return uint128.New(x.Lo, x.Hi) }

func fromU(u uint128.Uint128) Int128 { return Int128{Lo: u.Lo, Hi: u.Hi} }

// IsNeg reports whether x < 0.
func (x Int128) IsNeg() bool { return x.Hi&signBit != 0 }

// IsZero reports whether x == 0.
func (x Int128) IsZero() bool { return x.Lo == 0 && x.Hi == 0 }

// Sign returns -1, 0 or 1.
func (x Int128) Sign() int {
	switch {
	case x.IsZero():
		return 0
	case x.IsNeg():
		return -1
	default:
		return 1
	}
}

// Neg returns -x. The minimum value negates to itself.
func (x Int128) Neg() Int128 {
	return fromU(uint128.Zero.SubWrap(x.u()))
}

// Abs returns |x| as an unsigned value.
func (x Int128) Abs() uint128.Uint128 {
	if x.IsNeg() {
		return x.Neg().u()
	}
	return x.u()
}

// Add returns x+y, failing on signed overflow.
func (x Int128) Add(y Int128) (Int128, error) {
	sum := fromU(x.u().AddWrap(y.u()))
	if x.IsNeg() == y.IsNeg() && sum.IsNeg() != x.IsNeg() {
		if x.IsNeg() {
			return Int128{}, errs.ErrArithmeticUnderflow
		}
		return Int128{}, errs.ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub returns x-y, failing on signed overflow.
func (x Int128) Sub(y Int128) (Int128, error) {
	diff := fromU(x.u().SubWrap(y.u()))
	if x.IsNeg() != y.IsNeg() && diff.IsNeg() != x.IsNeg() {
		if x.IsNeg() {
			return Int128{}, errs.ErrArithmeticUnderflow
		}
		return Int128{}, errs.ErrArithmeticOverflow
	}
	return diff, nil
}

// Big converts x to a big.Int.
func (x Int128) Big() *big.Int {
	b := x.Abs().Big()
	if x.IsNeg() {
		b.Neg(b)
	}
	return b
}

func (x Int128) String() string {
	return x.Big().String()
}
