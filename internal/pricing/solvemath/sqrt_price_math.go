package solvemath

import (
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

func orderPrices(p0, p1 uint128.Uint128) (uint128.Uint128, uint128.Uint128) {
	if p0.Cmp(p1) > 0 {
		return p1, p0
	}
	return p0, p1
}

// amountDeltaA256 computes L * (upper - lower) / (upper * lower) scaled by 2^64.
func amountDeltaA256(p0, p1, liquidity uint128.Uint128, r Rounding) (*uint256.Int, error) {
	lower, upper := orderPrices(p0, p1)
	if lower.IsZero() {
		return nil, errs.Newf(errs.ErrInvalidParameter, "zero sqrt price")
	}
	diff := U256(upper.SubWrap(lower))

	numerator := new(uint256.Int).Mul(U256(liquidity), diff)
	if numerator.BitLen() > 192 {
		return nil, errs.ErrMultiplicationOverflow
	}
	numerator.Lsh(numerator, 64)

	denominator := new(uint256.Int).Mul(U256(upper), U256(lower))
	return divRounding(numerator, denominator, r), nil
}

// amountDeltaB256 computes L * (upper - lower) / 2^64.
func amountDeltaB256(p0, p1, liquidity uint128.Uint128, r Rounding) *uint256.Int {
	lower, upper := orderPrices(p0, p1)
	p := new(uint256.Int).Mul(U256(liquidity), U256(upper.SubWrap(lower)))
	roundUp := r == RoundUp && p[0] != 0
	p.Rsh(p, 64)
	if roundUp {
		p.AddUint64(p, 1)
	}
	return p
}

// AmountDeltaA returns the amount of token A between two sqrt prices at the
// given liquidity.
func AmountDeltaA(p0, p1, liquidity uint128.Uint128, r Rounding) (uint64, error) {
	d, err := amountDeltaA256(p0, p1, liquidity, r)
	if err != nil {
		return 0, err
	}
	if !d.IsUint64() {
		return 0, errs.ErrTokenAmountOverflow
	}
	return d.Uint64(), nil
}

// AmountDeltaB returns the amount of token B between two sqrt prices at the
// given liquidity.
func AmountDeltaB(p0, p1, liquidity uint128.Uint128, r Rounding) (uint64, error) {
	d := amountDeltaB256(p0, p1, liquidity, r)
	if !d.IsUint64() {
		return 0, errs.ErrTokenAmountOverflow
	}
	return d.Uint64(), nil
}

// NextSqrtPrice returns the sqrt price reached after moving amount of the
// specified token through liquidity. Token A moves rounding the price up,
// token B rounding down, so the pool never gives away precision.
func NextSqrtPrice(sqrtPrice, liquidity uint128.Uint128, amount uint64, amountSpecifiedIsInput, aToB bool) (uint128.Uint128, error) {
	if amountSpecifiedIsInput == aToB {
		return nextSqrtPriceFromARoundUp(sqrtPrice, liquidity, amount, amountSpecifiedIsInput)
	}
	return nextSqrtPriceFromBRoundDown(sqrtPrice, liquidity, amount, amountSpecifiedIsInput)
}

func nextSqrtPriceFromARoundUp(sqrtPrice, liquidity uint128.Uint128, amount uint64, isInput bool) (uint128.Uint128, error) {
	if amount == 0 {
		return sqrtPrice, nil
	}
	if liquidity.IsZero() {
		return uint128.Zero, errs.ErrZeroLiquidity
	}

	p := new(uint256.Int).Mul(U256(sqrtPrice), uint256.NewInt(amount))
	numerator := new(uint256.Int).Mul(U256(liquidity), U256(sqrtPrice))
	if numerator.BitLen() > 192 {
		return uint128.Zero, errs.ErrMultiplicationOverflow
	}
	numerator.Lsh(numerator, 64)

	liquidityX64 := new(uint256.Int).Lsh(U256(liquidity), 64)
	denominator := new(uint256.Int)
	if isInput {
		denominator.Add(liquidityX64, p)
	} else {
		if liquidityX64.Cmp(p) <= 0 {
			return uint128.Zero, errs.Newf(errs.ErrInsufficientLiquidity, "output exceeds token A reserve of the range")
		}
		denominator.Sub(liquidityX64, p)
	}

	next, err := U128(divRounding(numerator, denominator, RoundUp))
	if err != nil {
		return uint128.Zero, err
	}
	if next.Cmp(MinSqrtPrice) < 0 {
		return uint128.Zero, errs.ErrSqrtPriceBelowMinimum
	}
	if next.Cmp(MaxSqrtPrice) > 0 {
		return uint128.Zero, errs.ErrInvalidSqrtPrice
	}
	return next, nil
}

func nextSqrtPriceFromBRoundDown(sqrtPrice, liquidity uint128.Uint128, amount uint64, isInput bool) (uint128.Uint128, error) {
	if liquidity.IsZero() {
		return uint128.Zero, errs.ErrZeroLiquidity
	}
	amountX64 := new(uint256.Int).Lsh(uint256.NewInt(amount), 64)
	delta, err := U128(divRounding(amountX64, U256(liquidity), RoundingIf(!isInput)))
	if err != nil {
		return uint128.Zero, err
	}
	if isInput {
		return Add128(sqrtPrice, delta)
	}
	if sqrtPrice.Cmp(delta) < 0 {
		return uint128.Zero, errs.ErrSqrtPriceBelowMinimum
	}
	return sqrtPrice.SubWrap(delta), nil
}
