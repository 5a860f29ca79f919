package engine

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

func TestSwapStartIndexes(t *testing.T) {
	tests := []struct {
		name        string
		tick        int32
		tickSpacing uint16
		aToB        bool
		want        []int32
	}{
		{"down from zero", 0, 64, true, []int32{0, -5632, -11264}},
		{"up from zero", 0, 64, false, []int32{0, 5632, 11264}},
		{"up from last slot", 5600, 64, false, []int32{5632, 11264, 16896}},
		{"down from negative", -1, 64, true, []int32{-5632, -11264, -16896}},
		{"up near max", 440000, 64, false, []int32{439296}},
		{"down near min", -443636, 64, true, []int32{-444928}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, swapStartIndexes(tt.tick, tt.tickSpacing, tt.aToB))
		})
	}
}

func TestSwapExactInput(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)
	before := f.getPool(pool)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Pool:                   pool,
		Amount:                 1000,
		OtherAmountThreshold:   996,
		AmountSpecifiedIsInput: true,
		AToB:                   true,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), res.AmountA)
	assert.Equal(t, uint64(996), res.AmountB)
	assert.Equal(t, uint64(1000), res.AmountIn)
	assert.Equal(t, uint64(996), res.AmountOut)
	assert.Equal(t, uint64(3), res.LPFee)
	assert.Zero(t, res.ProtocolFee)
	assert.Zero(t, res.TicksCrossed)
	assert.Equal(t, int32(-1), res.NextTick)

	after := f.getPool(pool)
	assert.Equal(t, before.VaultA+1000, after.VaultA)
	assert.Equal(t, before.VaultB-996, after.VaultB)
	assert.Equal(t, res.NextSqrtPrice, after.SqrtPrice)
	assert.Equal(t, uint128.From64(3).Lsh(64).Div64(1_000_000_000), after.FeeGrowthGlobalA)
	assert.True(t, after.FeeGrowthGlobalB.IsZero())
}

func TestSwapExactOutput(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Pool:                   pool,
		Amount:                 1000,
		OtherAmountThreshold:   1005,
		AmountSpecifiedIsInput: false,
		AToB:                   true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1005), res.AmountIn)
	assert.Equal(t, uint64(1000), res.AmountOut)
	assert.Equal(t, uint64(4), res.LPFee)
}

func TestSwapProtocolFee(t *testing.T) {
	f := newFixture(t, 2500)
	pool := f.defaultPool()
	pos, owner := f.position(pool, -128, 128, 1_000_000_000)

	res, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 100_000, AmountSpecifiedIsInput: true, AToB: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(75), res.ProtocolFee)
	assert.Equal(t, uint64(225), res.LPFee)

	fees, err := f.engine.CollectFees(f.ctx, pos, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(224), fees.A)

	_, err = f.engine.CollectProtocolFees(f.ctx, pool, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	collected, err := f.engine.CollectProtocolFees(f.ctx, pool, f.authority)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), collected.A)
	assert.Zero(t, f.getPool(pool).ProtocolFeeOwedA)
	assert.Len(t, f.events.OfType(events.TypeProtocolFeesCollected), 1)
}

func TestSwapEntersRangeFromEmptyPrice(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	// Out of range, so the pool has no active liquidity at tick 0.
	f.position(pool, 64, 128, 1_000_000_000)
	require.True(t, f.getPool(pool).Liquidity.IsZero())

	res, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, AmountSpecifiedIsInput: true, AToB: false})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TicksCrossed)
	assert.Equal(t, uint128.From64(1_000_000_000), res.NextLiquidity)
	assert.Equal(t, uint64(3), res.LPFee)
	assert.Zero(t, res.ProtocolFee)
	assert.GreaterOrEqual(t, res.NextTick, int32(64))
	assert.False(t, f.getPool(pool).FeeGrowthGlobalB.IsZero())
}

func TestSwapThreshold(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)
	before := f.getPool(pool)

	_, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, OtherAmountThreshold: 997, AmountSpecifiedIsInput: true, AToB: true})
	assert.ErrorIs(t, err, errs.ErrAmountOutBelowMinimum)
	assert.ErrorIs(t, err, errs.ErrSlippageExceeded)

	_, err = f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, OtherAmountThreshold: 1004, AToB: true})
	assert.ErrorIs(t, err, errs.ErrAmountInAboveMaximum)

	after := f.getPool(pool)
	assert.Equal(t, before.SqrtPrice, after.SqrtPrice)
	assert.Equal(t, before.VaultA, after.VaultA)
	assert.Empty(t, f.events.OfType(events.TypeTraded))
}

func TestSwapValidation(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	tests := []struct {
		name   string
		params SwapParams
		want   error
	}{
		{"zero amount", SwapParams{Pool: pool, AmountSpecifiedIsInput: true, AToB: true}, errs.ErrZeroAmount},
		{"limit above price selling a", SwapParams{Pool: pool, Amount: 10, AmountSpecifiedIsInput: true, AToB: true, SqrtPriceLimit: solvemath.Q64.Add64(1)}, errs.ErrInvalidSqrtPriceLimit},
		{"limit below price selling b", SwapParams{Pool: pool, Amount: 10, AmountSpecifiedIsInput: true, SqrtPriceLimit: solvemath.Q64.Sub64(1)}, errs.ErrInvalidSqrtPriceLimit},
		{"limit out of bounds", SwapParams{Pool: pool, Amount: 10, AmountSpecifiedIsInput: true, AToB: true, SqrtPriceLimit: uint128.From64(1)}, errs.ErrInvalidSqrtPrice},
		{"too many tick arrays", SwapParams{Pool: pool, Amount: 10, AmountSpecifiedIsInput: true, AToB: true, TickArrays: []int32{0, -5632, -11264, -16896}}, errs.ErrInvalidParameter},
		{"misaligned tick array", SwapParams{Pool: pool, Amount: 10, AmountSpecifiedIsInput: true, AToB: true, TickArrays: []int32{100}}, errs.ErrInvalidStartTick},
		{"unknown pool", SwapParams{Pool: solana.NewWallet().PublicKey(), Amount: 10, AmountSpecifiedIsInput: true}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Swap(f.ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSwapCrossesTickDownward(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1000)
	f.position(pool, 0, 128, 200)
	require.Equal(t, uint128.From64(1200), f.getPool(pool).Liquidity)

	// The pool sits exactly on tick 0, so the first step crosses it without
	// moving the price.
	res, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 2, AmountSpecifiedIsInput: true, AToB: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TicksCrossed)
	assert.Equal(t, uint128.From64(1000), res.NextLiquidity)
	assert.Less(t, res.NextTick, int32(0))
	assert.Greater(t, res.NextTick, int32(-128))

	p := f.getPool(pool)
	assert.Equal(t, uint128.From64(1000), p.Liquidity)
	assert.Equal(t, res.NextTick, p.TickCurrentIndex)
}

func TestSwapCrossesTickUpward(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)
	f.position(pool, 128, 256, 500_000_000)

	res, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 8_000_000, AmountSpecifiedIsInput: true, AToB: false})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TicksCrossed)
	assert.Equal(t, uint128.From64(500_000_000), res.NextLiquidity)
	assert.Greater(t, res.NextTick, int32(128))
	assert.Less(t, res.NextTick, int32(256))

	// Crossing flipped the outside growth of tick 128: the fees earned below
	// it are now on its outside.
	tick, err := f.engine.GetTick(f.ctx, pool, 128)
	require.NoError(t, err)
	assert.False(t, tick.FeeGrowthOutsideB.IsZero())

	// Crossing back restores the liquidity of the lower range.
	back, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 8_000_000, AmountSpecifiedIsInput: true, AToB: true})
	require.NoError(t, err)
	assert.Equal(t, 1, back.TicksCrossed)
	assert.Equal(t, uint128.From64(1_000_000_000), back.NextLiquidity)
}

func TestSwapPartialFill(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.pool(f.mints[0], f.mints[1], 4096, 3000, solvemath.Q64)
	f.position(pool, -4096, 4096, 1_000_000_000)

	_, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1_000_000_000_000, OtherAmountThreshold: math.MaxUint64, AToB: true})
	assert.ErrorIs(t, err, errs.ErrPartialFill)

	// An explicit limit accepts the partial fill.
	limit, err := solvemath.SqrtPriceFromTick(-8192)
	require.NoError(t, err)
	res, err := f.engine.Swap(f.ctx, SwapParams{
		Pool:                 pool,
		Amount:               1_000_000_000_000,
		OtherAmountThreshold: math.MaxUint64,
		SqrtPriceLimit:       limit,
		AToB:                 true,
	})
	require.NoError(t, err)
	assert.Equal(t, limit, res.NextSqrtPrice)
	assert.Equal(t, int32(-8192), res.NextTick)
	assert.True(t, res.NextLiquidity.IsZero())
	assert.Less(t, res.AmountOut, uint64(1_000_000_000_000))
	assert.NotZero(t, res.AmountOut)
}

func TestSwapTickArrayNotFound(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	// Only the current array is supplied and it runs out at its start.
	_, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1_000_000_000, AmountSpecifiedIsInput: true, AToB: true, TickArrays: []int32{0}})
	assert.ErrorIs(t, err, errs.ErrTickArrayNotFound)

	// The supplied arrays skip the one holding the current tick.
	_, err = f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, AmountSpecifiedIsInput: true, AToB: true, TickArrays: []int32{-5632}})
	assert.ErrorIs(t, err, errs.ErrTickArrayNotFound)

	// Supplying both arrays is enough for a small trade.
	_, err = f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, AmountSpecifiedIsInput: true, AToB: true, TickArrays: []int32{0, -5632}})
	assert.NoError(t, err)
}

func TestSwapThroughUninitializedArrays(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	// Arrays above 0 were never created; they read as empty and stay unstored.
	limit, err := solvemath.SqrtPriceFromTick(6000)
	require.NoError(t, err)
	res, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 100_000_000, AmountSpecifiedIsInput: true, SqrtPriceLimit: limit})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TicksCrossed)
	assert.True(t, res.NextLiquidity.IsZero())
	assert.Equal(t, int32(6000), res.NextTick)
	assert.Less(t, res.AmountIn, uint64(100_000_000))

	_, err = f.engine.GetTickArray(f.ctx, pool, 5632)
	assert.ErrorIs(t, err, errs.ErrTickArrayNotFound)

	// Without a limit the trade runs off the end of the last array.
	_, err = f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 100_000_000, AmountSpecifiedIsInput: true})
	assert.ErrorIs(t, err, errs.ErrTickArrayNotFound)
}

func TestQuoteSwapMatchesSwap(t *testing.T) {
	f := newFixture(t, 300)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)
	f.position(pool, -64, 0, 250_000_000)
	params := SwapParams{Pool: pool, Amount: 5_000_000, AmountSpecifiedIsInput: true, AToB: true}

	before := f.getPool(pool)
	quote, err := f.engine.QuoteSwap(f.ctx, params)
	require.NoError(t, err)
	assert.Equal(t, before.SqrtPrice, f.getPool(pool).SqrtPrice)
	assert.Empty(t, f.events.OfType(events.TypeTraded))

	res, err := f.engine.Swap(f.ctx, params)
	require.NoError(t, err)
	assert.Equal(t, quote, res)
}

func TestSwapEmitsTraded(t *testing.T) {
	f := newFixture(t, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	_, err := f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1000, AmountSpecifiedIsInput: true, AToB: true})
	require.NoError(t, err)

	traded := f.events.OfType(events.TypeTraded)
	require.Len(t, traded, 1)
	assert.Equal(t, pool.String(), traded[0].Pool)

	var payload events.Traded
	require.NoError(t, traded[0].Decode(&payload))
	assert.True(t, payload.AToB)
	assert.Equal(t, uint64(1000), payload.AmountIn)
	assert.Equal(t, uint64(996), payload.AmountOut)
	assert.Equal(t, uint64(3), payload.LPFee)
	assert.Equal(t, solvemath.Q64.String(), payload.PreSqrtPrice)
}

func TestSwapsConserveVaults(t *testing.T) {
	f := newFixture(t, 500)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)
	f.position(pool, -256, 64, 300_000_000)
	start := f.getPool(pool)
	vaultA, vaultB := start.VaultA, start.VaultB

	trades := []SwapParams{
		{Pool: pool, Amount: 5_000, AmountSpecifiedIsInput: true, AToB: true},
		{Pool: pool, Amount: 3_000_000, AmountSpecifiedIsInput: true, AToB: false},
		{Pool: pool, Amount: 300, OtherAmountThreshold: math.MaxUint64, AToB: true},
		{Pool: pool, Amount: 2_000_000, OtherAmountThreshold: math.MaxUint64, AToB: false},
		{Pool: pool, Amount: 12_000_000, AmountSpecifiedIsInput: true, AToB: true},
	}
	for _, p := range trades {
		res, err := f.engine.Swap(f.ctx, p)
		require.NoError(t, err)
		if p.AToB {
			vaultA += res.AmountIn
			vaultB -= res.AmountOut
		} else {
			vaultB += res.AmountIn
			vaultA -= res.AmountOut
		}
	}

	end := f.getPool(pool)
	assert.Equal(t, vaultA, end.VaultA)
	assert.Equal(t, vaultB, end.VaultB)
}

func TestTwoHopSwapExactInput(t *testing.T) {
	f := newFixture(t, 0)
	one := f.pool(f.mints[0], f.mints[1], 64, 3000, solvemath.Q64)
	two := f.pool(f.mints[1], f.mints[2], 64, 3000, solvemath.Q64)
	f.position(one, -128, 128, 1_000_000_000)
	f.position(two, -128, 128, 1_000_000_000)

	res, err := f.engine.TwoHopSwap(f.ctx, TwoHopSwapParams{
		PoolOne:                one,
		PoolTwo:                two,
		Amount:                 1000,
		OtherAmountThreshold:   992,
		AmountSpecifiedIsInput: true,
		AToBOne:                true,
		AToBTwo:                true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.AmountIn())
	assert.Equal(t, uint64(996), res.One.AmountOut)
	assert.Equal(t, uint64(996), res.Two.AmountIn)
	assert.Equal(t, uint64(992), res.AmountOut())
	assert.Len(t, f.events.OfType(events.TypeTraded), 2)
}

func TestTwoHopSwapExactOutput(t *testing.T) {
	f := newFixture(t, 0)
	one := f.pool(f.mints[0], f.mints[1], 64, 3000, solvemath.Q64)
	two := f.pool(f.mints[1], f.mints[2], 64, 3000, solvemath.Q64)
	f.position(one, -128, 128, 1_000_000_000)
	f.position(two, -128, 128, 1_000_000_000)

	res, err := f.engine.TwoHopSwap(f.ctx, TwoHopSwapParams{
		PoolOne:              one,
		PoolTwo:              two,
		Amount:               1000,
		OtherAmountThreshold: 1010,
		AToBOne:              true,
		AToBTwo:              true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.AmountOut())
	assert.Equal(t, uint64(1005), res.Two.AmountIn)
	assert.Equal(t, uint64(1005), res.One.AmountOut)
	assert.Equal(t, uint64(1010), res.AmountIn())
}

func TestTwoHopSwapThresholdIsEndToEnd(t *testing.T) {
	f := newFixture(t, 0)
	one := f.pool(f.mints[0], f.mints[1], 64, 3000, solvemath.Q64)
	two := f.pool(f.mints[1], f.mints[2], 64, 3000, solvemath.Q64)
	f.position(one, -128, 128, 1_000_000_000)
	f.position(two, -128, 128, 1_000_000_000)
	beforeOne, beforeTwo := f.getPool(one), f.getPool(two)

	_, err := f.engine.TwoHopSwap(f.ctx, TwoHopSwapParams{
		PoolOne:                one,
		PoolTwo:                two,
		Amount:                 1000,
		OtherAmountThreshold:   993,
		AmountSpecifiedIsInput: true,
		AToBOne:                true,
		AToBTwo:                true,
	})
	assert.ErrorIs(t, err, errs.ErrAmountOutBelowMinimum)

	// Neither hop was committed.
	assert.Equal(t, beforeOne.SqrtPrice, f.getPool(one).SqrtPrice)
	assert.Equal(t, beforeTwo.SqrtPrice, f.getPool(two).SqrtPrice)
}

func TestTwoHopSwapValidation(t *testing.T) {
	f := newFixture(t, 0)
	one := f.pool(f.mints[0], f.mints[1], 64, 3000, solvemath.Q64)
	two := f.pool(f.mints[1], f.mints[2], 64, 3000, solvemath.Q64)

	_, err := f.engine.TwoHopSwap(f.ctx, TwoHopSwapParams{PoolOne: one, PoolTwo: one, Amount: 1000, AmountSpecifiedIsInput: true})
	assert.ErrorIs(t, err, errs.ErrDuplicateTwoHopPool)

	// Selling mint 1 into pool one pays out mint 0, which pool two does not trade.
	_, err = f.engine.TwoHopSwap(f.ctx, TwoHopSwapParams{PoolOne: one, PoolTwo: two, Amount: 1000, AmountSpecifiedIsInput: true, AToBOne: false, AToBTwo: true})
	assert.ErrorIs(t, err, errs.ErrInvalidIntermediaryMint)
}
