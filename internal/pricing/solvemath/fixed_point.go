// Package solvemath implements the Q64.64 fixed-point arithmetic behind the
// concentrated-liquidity pools: tick and sqrt price conversion, token amount
// deltas, swap steps and liquidity deltas.
//
// Record fields are 128-bit (lukechampine.com/uint128). Intermediate products
// are carried in 256 bits (github.com/holiman/uint256) so that every narrowing
// back to 128 or 64 bits is explicit and checked.
package solvemath

import (
	"math/bits"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

// Rounding selects the direction of an integer division.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

// RoundingIf returns RoundUp when up is true.
func RoundingIf(up bool) Rounding {
	if up {
		return RoundUp
	}
	return RoundDown
}

// Q64 is 2^64, the fixed-point one.
var Q64 = uint128.New(0, 1)

// U256 widens a 128-bit value.
func U256(x uint128.Uint128) *uint256.Int {
	return &uint256.Int{x.Lo, x.Hi, 0, 0}
}

// U128 narrows a 256-bit value, failing when the high words are set.
func U128(z *uint256.Int) (uint128.Uint128, error) {
	if z[2] != 0 || z[3] != 0 {
		return uint128.Zero, errs.ErrNumberDownCastOverflow
	}
	return uint128.New(z[0], z[1]), nil
}

// U64 narrows a 256-bit value to 64 bits.
func U64(z *uint256.Int) (uint64, error) {
	if !z.IsUint64() {
		return 0, errs.ErrNumberDownCastOverflow
	}
	return z.Uint64(), nil
}

// divRounding divides in place and rounds the quotient up when requested and
// the division was inexact. d must be non-zero.
func divRounding(n, d *uint256.Int, r Rounding) *uint256.Int {
	q, rem := new(uint256.Int), new(uint256.Int)
	q.DivMod(n, d, rem)
	if r == RoundUp && !rem.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// MulDiv computes a*b/d with 256-bit intermediate precision.
func MulDiv(a, b, d uint128.Uint128, r Rounding) (uint128.Uint128, error) {
	if d.IsZero() {
		return uint128.Zero, errs.Newf(errs.ErrInvalidParameter, "division by zero")
	}
	p := new(uint256.Int).Mul(U256(a), U256(b))
	return U128(divRounding(p, U256(d), r))
}

// MulDiv64 computes a*b/d for 64-bit operands.
func MulDiv64(a, b, d uint64, r Rounding) (uint64, error) {
	if d == 0 {
		return 0, errs.Newf(errs.ErrInvalidParameter, "division by zero")
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, errs.ErrMultiplicationOverflow
	}
	q, rem := bits.Div64(hi, lo, d)
	if r == RoundUp && rem != 0 {
		if q == ^uint64(0) {
			return 0, errs.ErrMultiplicationOverflow
		}
		q++
	}
	return q, nil
}

// MulShiftRight64 computes (a*b) >> 64.
func MulShiftRight64(a, b uint128.Uint128, r Rounding) (uint128.Uint128, error) {
	p := new(uint256.Int).Mul(U256(a), U256(b))
	roundUp := r == RoundUp && p[0] != 0
	p.Rsh(p, 64)
	if roundUp {
		p.AddUint64(p, 1)
	}
	return U128(p)
}

// Add128 adds with overflow detection.
func Add128(a, b uint128.Uint128) (uint128.Uint128, error) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return uint128.Zero, errs.ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub128 subtracts with underflow detection.
func Sub128(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.Cmp(b) < 0 {
		return uint128.Zero, errs.ErrArithmeticUnderflow
	}
	return a.SubWrap(b), nil
}

// Add64 adds with overflow detection.
func Add64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, errs.ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub64 subtracts with underflow detection.
func Sub64(a, b uint64) (uint64, error) {
	if a < b {
		return 0, errs.ErrArithmeticUnderflow
	}
	return a - b, nil
}

// WrappingSub128 is modular subtraction, used for growth accumulator differences.
func WrappingSub128(a, b uint128.Uint128) uint128.Uint128 {
	return a.SubWrap(b)
}
