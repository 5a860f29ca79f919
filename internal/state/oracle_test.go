package state

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/money"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

func testConstants() AdaptiveFeeConstants {
	return AdaptiveFeeConstants{
		FilterPeriod:             30,
		DecayPeriod:              600,
		ReductionFactor:          5000,
		AdaptiveFeeControlFactor: 4000,
		MaxVolatilityAccumulator: 450_000,
		TickGroupSize:            16,
		MajorSwapThresholdTicks:  64,
	}
}

func TestAdaptiveFeeConstantsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *AdaptiveFeeConstants)
		ok     bool
	}{
		{"valid", func(c *AdaptiveFeeConstants) {}, true},
		{"zero filter period", func(c *AdaptiveFeeConstants) { c.FilterPeriod = 0 }, false},
		{"decay equals filter", func(c *AdaptiveFeeConstants) { c.DecayPeriod = 30 }, false},
		{"control factor at denominator", func(c *AdaptiveFeeConstants) { c.AdaptiveFeeControlFactor = AdaptiveFeeControlFactorDenominator }, false},
		{"accumulator times group overflows", func(c *AdaptiveFeeConstants) { c.MaxVolatilityAccumulator = 1 << 30 }, false},
		{"reduction at denominator", func(c *AdaptiveFeeConstants) { c.ReductionFactor = ReductionFactorDenominator }, false},
		{"zero group size", func(c *AdaptiveFeeConstants) { c.TickGroupSize = 0 }, false},
		{"group larger than spacing", func(c *AdaptiveFeeConstants) { c.TickGroupSize = 128 }, false},
		{"group does not divide spacing", func(c *AdaptiveFeeConstants) { c.TickGroupSize = 24 }, false},
		{"group equals spacing", func(c *AdaptiveFeeConstants) { c.TickGroupSize = 64 }, true},
		{"zero threshold", func(c *AdaptiveFeeConstants) { c.MajorSwapThresholdTicks = 0 }, false},
		{"threshold of one array", func(c *AdaptiveFeeConstants) { c.MajorSwapThresholdTicks = 64 * 88 }, true},
		{"threshold beyond one array", func(c *AdaptiveFeeConstants) { c.MajorSwapThresholdTicks = 64*88 + 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConstants()
			tt.modify(&c)
			err := c.Validate(64)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrInvalidAdaptiveFeeConstants)
			assert.ErrorIs(t, err, errs.ErrInvalidParameter)
		})
	}
}

func TestAdaptiveFeeRate(t *testing.T) {
	c := testConstants()
	assert.Equal(t, money.SwapFeeRate(0), c.FeeRate(0))
	// (10_000 * 16)^2 * 4000 / 1e13 = 10.24
	assert.Equal(t, money.SwapFeeRate(11), c.FeeRate(10_000))
	// (50_000 * 16)^2 * 4000 / 1e13 = 256
	assert.Equal(t, money.SwapFeeRate(256), c.FeeRate(50_000))

	c.AdaptiveFeeControlFactor = AdaptiveFeeControlFactorDenominator - 1
	c.TickGroupSize = 1
	assert.Equal(t, money.FeeRateHardLimit, c.FeeRate(^uint32(0)))
}

func TestVolatilityAccumulator(t *testing.T) {
	c := testConstants()
	v := AdaptiveFeeVariables{VolatilityReference: 20_000, TickGroupIndexReference: 3}

	v.UpdateVolatilityAccumulator(0, c)
	assert.Equal(t, uint32(50_000), v.VolatilityAccumulator)
	v.UpdateVolatilityAccumulator(5, c)
	assert.Equal(t, uint32(40_000), v.VolatilityAccumulator)
	v.UpdateVolatilityAccumulator(-100, c)
	assert.Equal(t, c.MaxVolatilityAccumulator, v.VolatilityAccumulator)
}

func TestUpdateReference(t *testing.T) {
	c := testConstants()
	start := func() AdaptiveFeeVariables {
		return AdaptiveFeeVariables{
			LastReferenceUpdateTimestamp: 1000,
			VolatilityReference:          7_000,
			TickGroupIndexReference:      2,
			VolatilityAccumulator:        40_000,
		}
	}

	t.Run("inside filter period keeps reference", func(t *testing.T) {
		v := start()
		require.NoError(t, v.UpdateReference(9, 1010, c))
		assert.Equal(t, start(), v)
	})

	t.Run("inside decay period reduces accumulator", func(t *testing.T) {
		v := start()
		require.NoError(t, v.UpdateReference(9, 1100, c))
		assert.Equal(t, int32(9), v.TickGroupIndexReference)
		assert.Equal(t, uint32(20_000), v.VolatilityReference)
		assert.Equal(t, uint64(1100), v.LastReferenceUpdateTimestamp)
	})

	t.Run("after decay period resets reference", func(t *testing.T) {
		v := start()
		require.NoError(t, v.UpdateReference(9, 1700, c))
		assert.Equal(t, int32(9), v.TickGroupIndexReference)
		assert.Zero(t, v.VolatilityReference)
	})

	t.Run("major swap restarts the filter period", func(t *testing.T) {
		v := start()
		v.LastMajorSwapTimestamp = 1090
		require.NoError(t, v.UpdateReference(9, 1100, c))
		assert.Equal(t, start().TickGroupIndexReference, v.TickGroupIndexReference)
	})

	t.Run("stale reference resets", func(t *testing.T) {
		v := start()
		v.LastMajorSwapTimestamp = 1000 + MaxReferenceAge
		require.NoError(t, v.UpdateReference(9, 1001+MaxReferenceAge, c))
		assert.Equal(t, int32(9), v.TickGroupIndexReference)
		assert.Zero(t, v.VolatilityReference)
	})

	t.Run("time moving backwards", func(t *testing.T) {
		v := start()
		v.LastMajorSwapTimestamp = 2000
		assert.ErrorIs(t, v.UpdateReference(9, 1999, c), errs.ErrInvalidTimestamp)
	})
}

func TestMajorSwapTimestamp(t *testing.T) {
	c := testConstants()
	threshold, err := solvemath.SqrtPriceFromTick(64)
	require.NoError(t, err)
	below, err := solvemath.SqrtPriceFromTick(63)
	require.NoError(t, err)

	var v AdaptiveFeeVariables
	require.NoError(t, v.UpdateMajorSwapTimestamp(solvemath.Q64, below, 50, c))
	assert.Zero(t, v.LastMajorSwapTimestamp)
	require.NoError(t, v.UpdateMajorSwapTimestamp(threshold, solvemath.Q64, 60, c), "direction does not matter")
	assert.Equal(t, uint64(60), v.LastMajorSwapTimestamp)
}

func TestAdaptiveFeeTier(t *testing.T) {
	tier := &AdaptiveFeeTier{FeeTierIndex: 1024, TickSpacing: 64}
	require.NoError(t, tier.SetConstants(testConstants()))
	assert.ErrorIs(t, tier.SetDefaultBaseFeeRate(uint16(money.MaxFeeRate)+1), errs.ErrInvalidFeeRate)

	assert.False(t, tier.Permissioned())
	anyone := solana.NewWallet().PublicKey()
	assert.NoError(t, tier.RequireInitializePoolAuthority(anyone))
	assert.ErrorIs(t, tier.ValidateTradeEnableTimestamp(2000, 1000), errs.ErrInvalidTradeEnableTimestamp)
	assert.NoError(t, tier.ValidateTradeEnableTimestamp(0, 1000))

	tier.InitializePoolAuthority = solana.NewWallet().PublicKey()
	assert.ErrorIs(t, tier.RequireInitializePoolAuthority(anyone), errs.ErrUnauthorized)
	assert.NoError(t, tier.RequireInitializePoolAuthority(tier.InitializePoolAuthority))

	now := uint64(1_000_000)
	assert.NoError(t, tier.ValidateTradeEnableTimestamp(now+MaxTradeEnableTimestampDelta, now))
	assert.ErrorIs(t, tier.ValidateTradeEnableTimestamp(now+MaxTradeEnableTimestampDelta+1, now), errs.ErrInvalidTradeEnableTimestamp)
	assert.NoError(t, tier.ValidateTradeEnableTimestamp(now-MaxTradeEnableTimestampAge, now))
	assert.ErrorIs(t, tier.ValidateTradeEnableTimestamp(now-MaxTradeEnableTimestampAge-1, now), errs.ErrInvalidTradeEnableTimestamp)
}

func TestOracleSetConstantsClearsVariables(t *testing.T) {
	o := &Oracle{Variables: AdaptiveFeeVariables{VolatilityAccumulator: 9}}
	bad := testConstants()
	bad.TickGroupSize = 0
	assert.Error(t, o.SetConstants(bad, 64))
	assert.Equal(t, uint32(9), o.Variables.VolatilityAccumulator)

	require.NoError(t, o.SetConstants(testConstants(), 64))
	assert.Zero(t, o.Variables)
	assert.True(t, o.TradeEnabled(0))
}
