package solvemath

import (
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

// AddLiquidityDelta applies a signed delta to an unsigned liquidity amount.
func AddLiquidityDelta(liquidity uint128.Uint128, delta Int128) (uint128.Uint128, error) {
	abs := delta.Abs()
	if delta.IsNeg() {
		if liquidity.Cmp(abs) < 0 {
			return uint128.Zero, errs.ErrLiquidityUnderflow
		}
		return liquidity.SubWrap(abs), nil
	}
	sum, err := Add128(liquidity, abs)
	if err != nil {
		return uint128.Zero, errs.Newf(errs.ErrArithmeticOverflow, "liquidity overflow")
	}
	return sum, nil
}

// ConvertToLiquidityDelta turns an unsigned liquidity amount into a signed delta.
func ConvertToLiquidityDelta(liquidity uint128.Uint128, positive bool) (Int128, error) {
	d, err := NewInt128(liquidity, !positive)
	if err != nil {
		return Int128{}, errs.Newf(errs.ErrArithmeticOverflow, "liquidity too large for delta")
	}
	return d, nil
}

// TokenAmounts is a pair of token amounts.
type TokenAmounts struct {
	A uint64
	B uint64
}

// LiquidityTokenDeltas returns the token amounts that a liquidity delta over
// [lowerTick, upperTick) moves at the current pool price. Deposits round up
// and withdrawals round down.
func LiquidityTokenDeltas(currentTick int32, sqrtPrice uint128.Uint128, lowerTick, upperTick int32, delta Int128) (TokenAmounts, error) {
	if delta.IsZero() {
		return TokenAmounts{}, nil
	}
	lowerPrice, err := SqrtPriceFromTick(lowerTick)
	if err != nil {
		return TokenAmounts{}, err
	}
	upperPrice, err := SqrtPriceFromTick(upperTick)
	if err != nil {
		return TokenAmounts{}, err
	}

	liquidity := delta.Abs()
	r := RoundingIf(!delta.IsNeg())

	var out TokenAmounts
	switch {
	case currentTick < lowerTick:
		out.A, err = AmountDeltaA(lowerPrice, upperPrice, liquidity, r)
	case currentTick < upperTick:
		if out.A, err = AmountDeltaA(sqrtPrice, upperPrice, liquidity, r); err != nil {
			return TokenAmounts{}, err
		}
		out.B, err = AmountDeltaB(lowerPrice, sqrtPrice, liquidity, r)
	default:
		out.B, err = AmountDeltaB(lowerPrice, upperPrice, liquidity, r)
	}
	if err != nil {
		return TokenAmounts{}, err
	}
	return out, nil
}

// LiquidityFromTokenAmounts returns the largest liquidity over
// [lowerTick, upperTick) that both token maxima can fund at the current price.
func LiquidityFromTokenAmounts(currentTick int32, sqrtPrice uint128.Uint128, lowerTick, upperTick int32, maxA, maxB uint64) (uint128.Uint128, error) {
	lowerPrice, err := SqrtPriceFromTick(lowerTick)
	if err != nil {
		return uint128.Zero, err
	}
	upperPrice, err := SqrtPriceFromTick(upperTick)
	if err != nil {
		return uint128.Zero, err
	}

	switch {
	case currentTick < lowerTick:
		return liquidityFromA(lowerPrice, upperPrice, maxA)
	case currentTick >= upperTick:
		return liquidityFromB(lowerPrice, upperPrice, maxB)
	}
	la, err := liquidityFromA(sqrtPrice, upperPrice, maxA)
	if err != nil {
		return uint128.Zero, err
	}
	lb, err := liquidityFromB(lowerPrice, sqrtPrice, maxB)
	if err != nil {
		return uint128.Zero, err
	}
	if la.Cmp(lb) < 0 {
		return la, nil
	}
	return lb, nil
}

// liquidityFromA inverts AmountDeltaA: amount * lower * upper / ((upper - lower) << 64).
func liquidityFromA(p0, p1 uint128.Uint128, amount uint64) (uint128.Uint128, error) {
	lower, upper := orderPrices(p0, p1)
	diff := upper.SubWrap(lower)
	if diff.IsZero() {
		return uint128.Zero, nil
	}
	num := new(uint256.Int).Mul(U256(lower), U256(upper))
	num.Rsh(num, 64)
	num.Mul(num, uint256.NewInt(amount))
	return U128(num.Div(num, U256(diff)))
}

// liquidityFromB inverts AmountDeltaB: (amount << 64) / (upper - lower).
func liquidityFromB(p0, p1 uint128.Uint128, amount uint64) (uint128.Uint128, error) {
	lower, upper := orderPrices(p0, p1)
	diff := upper.SubWrap(lower)
	if diff.IsZero() {
		return uint128.Zero, nil
	}
	num := new(uint256.Int).Lsh(uint256.NewInt(amount), 64)
	return U128(num.Div(num, U256(diff)))
}
