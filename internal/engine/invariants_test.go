package engine

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
	"github.com/solve3fi/contracts/internal/store"
)

// activeLiquidity sums the liquidity net of every initialized tick at or
// below the current tick.
func (f *fixture) activeLiquidity(pool solana.PublicKey, ticks map[int32]bool, current int32) *big.Int {
	f.t.Helper()
	sum := new(big.Int)
	for idx := range ticks {
		if idx > current {
			continue
		}
		tick, err := f.engine.GetTick(f.ctx, pool, idx)
		require.NoError(f.t, err)
		if tick.Initialized {
			sum.Add(sum, tick.LiquidityNet.Big())
		}
	}
	return sum
}

func TestRandomSwapsKeepLiquidityAndFeeGrowth(t *testing.T) {
	for _, adaptive := range []bool{false, true} {
		name := "static"
		if adaptive {
			name = "adaptive"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 300)
			var pool solana.PublicKey
			if adaptive {
				f.adaptiveTier(f.authority)
				pool = f.adaptivePool(0)
			} else {
				pool = f.defaultPool()
			}
			rng := rand.New(rand.NewSource(42))

			ticks := make(map[int32]bool)
			for i := 0; i < 12; i++ {
				lower := int32(rng.Intn(170)-87) * 64
				upper := lower + int32(1+rng.Intn(40))*64
				if upper > 5568 {
					upper = 5568
				}
				if lower >= upper {
					lower = upper - 64
				}
				f.position(pool, lower, upper, uint64(1_000_000+rng.Int63n(1_000_000_000)))
				ticks[lower], ticks[upper] = true, true
			}

			low, err := solvemath.SqrtPriceFromTick(-5000)
			require.NoError(t, err)
			high, err := solvemath.SqrtPriceFromTick(5000)
			require.NoError(t, err)

			prev := f.getPool(pool)
			require.Equal(t, 0, f.activeLiquidity(pool, ticks, prev.TickCurrentIndex).Cmp(prev.Liquidity.Big()))

			for i := 0; i < 300; i++ {
				aToB := rng.Intn(2) == 0
				if aToB && prev.SqrtPrice.Cmp(low) <= 0 {
					aToB = false
				}
				if !aToB && prev.SqrtPrice.Cmp(high) >= 0 {
					aToB = true
				}
				limit := high
				if aToB {
					limit = low
				}
				p := SwapParams{
					Pool:                   pool,
					Amount:                 uint64(1_000 + rng.Int63n(50_000_000)),
					AmountSpecifiedIsInput: rng.Intn(5) > 0,
					AToB:                   aToB,
					SqrtPriceLimit:         limit,
				}
				if !p.AmountSpecifiedIsInput {
					p.Amount = uint64(1_000 + rng.Int63n(10_000_000))
				}
				f.clock.Advance(uint64(rng.Intn(90)))

				_, err := f.engine.Swap(f.ctx, p)
				require.NoError(t, err, "swap %d", i)

				next := f.getPool(pool)
				active := f.activeLiquidity(pool, ticks, next.TickCurrentIndex)
				require.Equal(t, 0, active.Cmp(next.Liquidity.Big()),
					"swap %d: pool liquidity %s, ticks at or below %d sum to %s", i, next.Liquidity, next.TickCurrentIndex, active)
				require.GreaterOrEqual(t, next.FeeGrowthGlobalA.Cmp(prev.FeeGrowthGlobalA), 0, "swap %d: fee growth A decreased", i)
				require.GreaterOrEqual(t, next.FeeGrowthGlobalB.Cmp(prev.FeeGrowthGlobalB), 0, "swap %d: fee growth B decreased", i)
				prev = next
			}
			assert.Len(t, f.events.OfType(events.TypeTraded), 300)
		})
	}
}

func TestFailedSwapLeavesStoreUntouched(t *testing.T) {
	ms := store.NewMemoryStore()
	f := newFixtureWithStore(t, ms, 0)
	pool := f.defaultPool()
	f.position(pool, -128, 128, 1_000_000_000)

	// Tick -128 claims more liquidity than the pool holds, so crossing it
	// downward cannot be applied.
	lowerKey, _, err := state.DeriveTickArrayAddress(pool, -5632)
	require.NoError(t, err)
	entry, err := ms.Get(f.ctx, lowerKey)
	require.NoError(t, err)
	var arr state.TickArray
	require.NoError(t, state.Decode(entry.Data, &arr))
	tick, err := arr.Tick(-128, 64)
	require.NoError(t, err)
	tick.LiquidityNet, err = solvemath.NewInt128(uint128.From64(2_000_000_000), false)
	require.NoError(t, err)
	tick.LiquidityGross = uint128.From64(2_000_000_000)
	require.NoError(t, arr.SetTick(-128, 64, tick))
	data, err := state.Encode(&arr)
	require.NoError(t, err)
	require.NoError(t, ms.Commit(f.ctx, []store.Write{{Key: lowerKey, Data: data, ExpectedVersion: entry.Version}}))

	upperKey, _, err := state.DeriveTickArrayAddress(pool, 0)
	require.NoError(t, err)
	keys := []solana.PublicKey{pool, lowerKey, upperKey}
	before := make(map[solana.PublicKey]store.Entry, len(keys))
	for _, k := range keys {
		before[k], err = ms.Get(f.ctx, k)
		require.NoError(t, err)
	}

	_, err = f.engine.Swap(f.ctx, SwapParams{Pool: pool, Amount: 1_000_000_000, AmountSpecifiedIsInput: true, AToB: true})
	require.ErrorIs(t, err, errs.ErrLiquidityUnderflow)

	for _, k := range keys {
		after, err := ms.Get(f.ctx, k)
		require.NoError(t, err)
		assert.Equal(t, before[k].Version, after.Version, "version of %s", k)
		assert.Equal(t, before[k].Data, after.Data, "data of %s", k)
	}
	assert.Empty(t, f.events.OfType(events.TypeTraded))
}
