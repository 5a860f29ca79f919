package solvemath

import (
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/money"
)

// SwapStepResult is the outcome of swapping within one constant-liquidity
// segment.
type SwapStepResult struct {
	NextSqrtPrice uint128.Uint128
	AmountIn      uint64
	AmountOut     uint64
	FeeAmount     uint64
}

// ComputeSwapStep swaps up to amountRemaining between currentSqrtPrice and
// targetSqrtPrice. For exact input amountRemaining includes the fee; for exact
// output it is the output still owed.
func ComputeSwapStep(
	amountRemaining uint64,
	feeRate money.SwapFeeRate,
	liquidity uint128.Uint128,
	currentSqrtPrice uint128.Uint128,
	targetSqrtPrice uint128.Uint128,
	amountSpecifiedIsInput bool,
	aToB bool,
) (SwapStepResult, error) {
	initialFixed, err := fixedDelta256(currentSqrtPrice, targetSqrtPrice, liquidity, amountSpecifiedIsInput, aToB)
	if err != nil {
		return SwapStepResult{}, err
	}

	amountCalc := amountRemaining
	if amountSpecifiedIsInput {
		amountCalc, _ = feeRate.Split(amountRemaining)
	}

	next := targetSqrtPrice
	if !initialFixed.IsUint64() || initialFixed.Uint64() > amountCalc {
		next, err = NextSqrtPrice(currentSqrtPrice, liquidity, amountCalc, amountSpecifiedIsInput, aToB)
		if err != nil {
			return SwapStepResult{}, err
		}
	}
	isMaxSwap := next.Equals(targetSqrtPrice)

	unfixed, err := unfixedDelta(currentSqrtPrice, next, liquidity, amountSpecifiedIsInput, aToB)
	if err != nil {
		return SwapStepResult{}, err
	}

	var fixed uint64
	if !isMaxSwap || !initialFixed.IsUint64() {
		d, err := fixedDelta256(currentSqrtPrice, next, liquidity, amountSpecifiedIsInput, aToB)
		if err != nil {
			return SwapStepResult{}, err
		}
		if fixed, err = U64(d); err != nil {
			return SwapStepResult{}, err
		}
	} else {
		fixed = initialFixed.Uint64()
	}

	res := SwapStepResult{NextSqrtPrice: next}
	if amountSpecifiedIsInput {
		res.AmountIn, res.AmountOut = fixed, unfixed
	} else {
		res.AmountIn, res.AmountOut = unfixed, fixed
		if res.AmountOut > amountRemaining {
			res.AmountOut = amountRemaining
		}
	}

	if amountSpecifiedIsInput && !isMaxSwap {
		res.FeeAmount = amountRemaining - res.AmountIn
	} else {
		res.FeeAmount = feeRate.FeeOnNet(res.AmountIn)
	}
	return res, nil
}

// fixedDelta256 is the amount on the specified side of the trade, rounded in
// the pool's favour. It may exceed 64 bits.
func fixedDelta256(p0, p1, liquidity uint128.Uint128, isInput, aToB bool) (*uint256.Int, error) {
	if aToB == isInput {
		return amountDeltaA256(p0, p1, liquidity, RoundingIf(isInput))
	}
	return amountDeltaB256(p0, p1, liquidity, RoundingIf(isInput)), nil
}

func unfixedDelta(p0, p1, liquidity uint128.Uint128, isInput, aToB bool) (uint64, error) {
	if aToB == isInput {
		return AmountDeltaB(p0, p1, liquidity, RoundingIf(!isInput))
	}
	return AmountDeltaA(p0, p1, liquidity, RoundingIf(!isInput))
}
