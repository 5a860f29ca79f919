package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// SwapParams describes a trade against one pool.
type SwapParams struct {
	Pool   solana.PublicKey
	Amount uint64
	// OtherAmountThreshold is the minimum output of an exact-input swap or
	// the maximum input of an exact-output swap.
	OtherAmountThreshold uint64
	// SqrtPriceLimit bounds how far the price may move. Zero means the edge
	// of the price domain in the swap direction.
	SqrtPriceLimit         uint128.Uint128
	AmountSpecifiedIsInput bool
	AToB                   bool
	// TickArrays are the start indexes of up to three tick arrays the swap
	// may cross. Empty derives them from the current tick.
	TickArrays []int32
}

// SwapResult is the outcome of a swap.
type SwapResult struct {
	AmountA       uint64
	AmountB       uint64
	AmountIn      uint64
	AmountOut     uint64
	LPFee         uint64
	ProtocolFee   uint64
	TicksCrossed  int
	NextSqrtPrice uint128.Uint128
	NextTick      int32
	NextLiquidity uint128.Uint128
}

// Swap trades against a pool and commits the result.
func (e *Engine) Swap(ctx context.Context, p SwapParams) (SwapResult, error) {
	var res SwapResult
	err := e.mutate(ctx, "swap", []solana.PublicKey{p.Pool}, func(tx *txn) error {
		r, err := e.swap(tx, p)
		if err != nil {
			return err
		}
		if err := checkThreshold(p.AmountSpecifiedIsInput, p.OtherAmountThreshold, r.AmountIn, r.AmountOut); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}
	e.metrics.RecordSwap(ctx, p.Pool.String(), p.AToB, res.AmountIn, res.LPFee+res.ProtocolFee, res.TicksCrossed)
	return res, nil
}

// QuoteSwap computes what Swap would return without changing any state.
// The threshold is not enforced.
func (e *Engine) QuoteSwap(ctx context.Context, p SwapParams) (SwapResult, error) {
	var res SwapResult
	err := e.view(ctx, func(tx *txn) error {
		var err error
		res, err = e.swap(tx, p)
		return err
	})
	return res, err
}

func checkThreshold(isInput bool, threshold, amountIn, amountOut uint64) error {
	if isInput && amountOut < threshold {
		return errs.Newf(errs.ErrAmountOutBelowMinimum, "amount out %d, minimum %d", amountOut, threshold)
	}
	if !isInput && amountIn > threshold {
		return errs.Newf(errs.ErrAmountInAboveMaximum, "amount in %d, maximum %d", amountIn, threshold)
	}
	return nil
}

// swap runs a trade on the staged pool, stages the changed records and
// emits the trade event.
func (e *Engine) swap(tx *txn, p SwapParams) (SwapResult, error) {
	if p.Amount == 0 {
		return SwapResult{}, errs.ErrZeroAmount
	}
	pool, err := tx.pool(p.Pool)
	if err != nil {
		return SwapResult{}, err
	}
	limit, err := swapPriceLimit(pool.SqrtPrice, p.SqrtPriceLimit, p.AToB)
	if err != nil {
		return SwapResult{}, err
	}
	seq, err := loadTickSequence(tx, p.Pool, pool, p.AToB, p.TickArrays)
	if err != nil {
		return SwapResult{}, err
	}

	var (
		oracle    *state.Oracle
		oracleKey solana.PublicKey
	)
	if pool.HasAdaptiveFeeTier() {
		if oracleKey, _, err = state.DeriveOracleAddress(p.Pool); err != nil {
			return SwapResult{}, err
		}
		if oracle, err = tx.oracle(oracleKey); err != nil {
			return SwapResult{}, err
		}
		if !oracle.TradeEnabled(tx.now) {
			return SwapResult{}, errs.Newf(errs.ErrTradeNotEnabled, "trading opens at %d", oracle.TradeEnableTimestamp)
		}
	}
	fees, err := newFeeRateManager(pool, oracle, p.AToB, tx.now)
	if err != nil {
		return SwapResult{}, err
	}

	pre := pool.SqrtPrice
	res, err := computeSwap(pool, seq, fees, p, limit, tx.now)
	if err != nil {
		return SwapResult{}, err
	}
	if err := fees.finish(pre, res.NextSqrtPrice, tx.now); err != nil {
		return SwapResult{}, err
	}

	tx.put(p.Pool, pool)
	seq.stage(tx)
	if oracle != nil {
		tx.put(oracleKey, oracle)
	}

	tx.emit(events.TypeTraded, p.Pool, solana.PublicKey{}, events.Traded{
		AToB:          p.AToB,
		AmountIn:      res.AmountIn,
		AmountOut:     res.AmountOut,
		LPFee:         res.LPFee,
		ProtocolFee:   res.ProtocolFee,
		PreSqrtPrice:  pre.String(),
		PostSqrtPrice: res.NextSqrtPrice.String(),
		Tick:          res.NextTick,
		TicksCrossed:  res.TicksCrossed,
	})
	return res, nil
}

// NoExplicitSqrtPriceLimit lets a swap run to the edge of the price range.
var NoExplicitSqrtPriceLimit = uint128.Zero

// swapPriceLimit resolves the effective limit of a swap.
func swapPriceLimit(current, limit uint128.Uint128, aToB bool) (uint128.Uint128, error) {
	if limit.Equals(NoExplicitSqrtPriceLimit) {
		if aToB {
			return solvemath.MinSqrtPrice, nil
		}
		return solvemath.MaxSqrtPrice, nil
	}
	if !solvemath.IsValidSqrtPrice(limit) {
		return uint128.Zero, errs.Newf(errs.ErrInvalidSqrtPrice, "sqrt price limit %s", limit)
	}
	if aToB && limit.Cmp(current) >= 0 || !aToB && limit.Cmp(current) <= 0 {
		return uint128.Zero, errs.Newf(errs.ErrInvalidSqrtPriceLimit, "limit %s, current %s", limit, current)
	}
	return limit, nil
}

// computeSwap walks the price across the tick sequence until the amount is
// used up or the limit is reached, then writes the new price, liquidity,
// accumulators and vault balances into pool. Crossed ticks are updated in
// seq.
func computeSwap(pool *state.Pool, seq *tickSequence, fees *feeRateManager, p SwapParams, limit uint128.Uint128, now uint64) (SwapResult, error) {
	rewards, err := pool.NextRewardInfos(now)
	if err != nil {
		return SwapResult{}, err
	}

	var (
		remaining   = p.Amount
		calculated  uint64
		sqrtPrice   = pool.SqrtPrice
		tick        = pool.TickCurrentIndex
		liquidity   = pool.Liquidity
		protocolFee uint64
		lpFee       uint64
		crossed     int
		idx         int
		feeGrowth   = pool.FeeGrowthGlobalB
	)
	if p.AToB {
		feeGrowth = pool.FeeGrowthGlobalA
	}

	for remaining > 0 && !sqrtPrice.Equals(limit) {
		nextIdx, nextTick, err := seq.nextInitialized(tick, idx, p.AToB)
		if err != nil {
			return SwapResult{}, err
		}
		tickPrice, err := solvemath.SqrtPriceFromTick(nextTick)
		if err != nil {
			return SwapResult{}, err
		}
		target := tickPrice
		if p.AToB && limit.Cmp(tickPrice) > 0 || !p.AToB && limit.Cmp(tickPrice) < 0 {
			target = limit
		}

		start := sqrtPrice
		for remaining > 0 && !sqrtPrice.Equals(target) {
			fees.update()
			stepTarget, err := fees.boundedTarget(target, liquidity)
			if err != nil {
				return SwapResult{}, err
			}
			step, err := solvemath.ComputeSwapStep(remaining, fees.totalRate(), liquidity, sqrtPrice, stepTarget, p.AmountSpecifiedIsInput, p.AToB)
			if err != nil {
				return SwapResult{}, err
			}

			if p.AmountSpecifiedIsInput {
				if remaining, err = solvemath.Sub64(remaining, step.AmountIn); err != nil {
					return SwapResult{}, err
				}
				if remaining, err = solvemath.Sub64(remaining, step.FeeAmount); err != nil {
					return SwapResult{}, err
				}
				if calculated, err = solvemath.Add64(calculated, step.AmountOut); err != nil {
					return SwapResult{}, err
				}
			} else {
				if remaining, err = solvemath.Sub64(remaining, step.AmountOut); err != nil {
					return SwapResult{}, err
				}
				if calculated, err = solvemath.Add64(calculated, step.AmountIn); err != nil {
					return SwapResult{}, err
				}
				if calculated, err = solvemath.Add64(calculated, step.FeeAmount); err != nil {
					return SwapResult{}, err
				}
			}

			share, err := pool.ApplyFees(step.FeeAmount, liquidity, &feeGrowth, &protocolFee)
			if err != nil {
				return SwapResult{}, err
			}
			if lpFee, err = solvemath.Add64(lpFee, share); err != nil {
				return SwapResult{}, err
			}

			sqrtPrice = step.NextSqrtPrice
			if err := fees.sync(sqrtPrice, tickPrice, nextTick); err != nil {
				return SwapResult{}, err
			}
		}

		switch {
		case sqrtPrice.Equals(tickPrice):
			t := seq.tick(nextIdx, nextTick)
			if t.Initialized {
				global := state.Growths{FeeA: pool.FeeGrowthGlobalA, FeeB: feeGrowth}
				if p.AToB {
					global = state.Growths{FeeA: feeGrowth, FeeB: pool.FeeGrowthGlobalB}
				}
				for i, r := range rewards {
					global.Rewards[i] = r.GrowthGlobalX64
				}

				net := t.LiquidityNet
				if p.AToB {
					net = net.Neg()
				}
				if liquidity, err = solvemath.AddLiquidityDelta(liquidity, net); err != nil {
					return SwapResult{}, err
				}
				if err := seq.setTick(nextIdx, nextTick, t.Cross(global)); err != nil {
					return SwapResult{}, err
				}
				crossed++
			}

			idx = nextIdx
			if seq.advance(nextIdx, nextTick, p.AToB) {
				idx++
			}
			// A downward search includes its starting tick, so step below
			// the tick just reached.
			tick = nextTick
			if p.AToB {
				tick = nextTick - 1
			}
		case !sqrtPrice.Equals(start):
			if tick, err = solvemath.TickFromSqrtPrice(sqrtPrice); err != nil {
				return SwapResult{}, err
			}
		}
	}

	if remaining > 0 && !p.AmountSpecifiedIsInput && p.SqrtPriceLimit.Equals(NoExplicitSqrtPriceLimit) {
		return SwapResult{}, errs.Newf(errs.ErrPartialFill, "%d of %d output unfilled", remaining, p.Amount)
	}

	res := SwapResult{
		LPFee:         lpFee,
		ProtocolFee:   protocolFee,
		TicksCrossed:  crossed,
		NextSqrtPrice: sqrtPrice,
		NextTick:      tick,
		NextLiquidity: liquidity,
	}
	if p.AToB == p.AmountSpecifiedIsInput {
		res.AmountA, res.AmountB = p.Amount-remaining, calculated
	} else {
		res.AmountA, res.AmountB = calculated, p.Amount-remaining
	}
	if p.AToB {
		res.AmountIn, res.AmountOut = res.AmountA, res.AmountB
	} else {
		res.AmountIn, res.AmountOut = res.AmountB, res.AmountA
	}

	if err := applySwap(pool, res, p.AToB, feeGrowth, rewards, now); err != nil {
		return SwapResult{}, err
	}
	return res, nil
}

// applySwap writes a computed swap into the pool.
func applySwap(pool *state.Pool, res SwapResult, aToB bool, feeGrowth uint128.Uint128, rewards [state.NumRewards]state.RewardInfo, now uint64) error {
	owed, in, out := &pool.ProtocolFeeOwedB, &pool.VaultB, &pool.VaultA
	if aToB {
		owed, in, out = &pool.ProtocolFeeOwedA, &pool.VaultA, &pool.VaultB
	}
	nextOwed, err := solvemath.Add64(*owed, res.ProtocolFee)
	if err != nil {
		return err
	}
	nextIn, err := solvemath.Add64(*in, res.AmountIn)
	if err != nil {
		return err
	}
	nextOut, err := solvemath.Sub64(*out, res.AmountOut)
	if err != nil {
		return errs.Newf(errs.ErrInsufficientLiquidity, "output vault holds %d, swap pays %d", *out, res.AmountOut)
	}
	*owed, *in, *out = nextOwed, nextIn, nextOut

	if aToB {
		pool.FeeGrowthGlobalA = feeGrowth
	} else {
		pool.FeeGrowthGlobalB = feeGrowth
	}
	pool.SqrtPrice = res.NextSqrtPrice
	pool.TickCurrentIndex = res.NextTick
	pool.Liquidity = res.NextLiquidity
	pool.RewardInfos = rewards
	pool.RewardLastUpdatedTimestamp = now
	return nil
}
