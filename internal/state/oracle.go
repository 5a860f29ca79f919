package state

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/money"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

// Adaptive fee scales and limits.
const (
	VolatilityAccumulatorScaleFactor    = 10_000
	ReductionFactorDenominator          = 10_000
	AdaptiveFeeControlFactorDenominator = 100_000

	// MaxReferenceAge is how long, in seconds, a volatility reference stays
	// usable before it is reset.
	MaxReferenceAge = 3_600

	// MaxTradeEnableTimestampDelta bounds how far in the future trading on a
	// new pool may be delayed.
	MaxTradeEnableTimestampDelta = 60 * 60 * 72

	// MaxTradeEnableTimestampAge is how far in the past a trade enable
	// timestamp may lie when a pool is created.
	MaxTradeEnableTimestampAge = 30
)

// AdaptiveFeeConstants shape the volatility fee of one pool.
type AdaptiveFeeConstants struct {
	FilterPeriod             uint16
	DecayPeriod              uint16
	ReductionFactor          uint16
	AdaptiveFeeControlFactor uint32
	MaxVolatilityAccumulator uint32
	TickGroupSize            uint16
	MajorSwapThresholdTicks  uint16
}

// Validate checks the constants against a pool's tick spacing.
func (c AdaptiveFeeConstants) Validate(tickSpacing uint16) error {
	switch {
	case c.FilterPeriod == 0:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "filter period must be at least 1")
	case c.DecayPeriod <= c.FilterPeriod:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "decay period %d must exceed filter period %d", c.DecayPeriod, c.FilterPeriod)
	case c.AdaptiveFeeControlFactor >= AdaptiveFeeControlFactorDenominator:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "control factor %d", c.AdaptiveFeeControlFactor)
	case uint64(c.MaxVolatilityAccumulator)*uint64(c.TickGroupSize) > uint64(^uint32(0)):
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "max volatility accumulator %d too large for tick group size %d", c.MaxVolatilityAccumulator, c.TickGroupSize)
	case c.ReductionFactor >= ReductionFactorDenominator:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "reduction factor %d", c.ReductionFactor)
	case c.TickGroupSize == 0 || c.TickGroupSize > tickSpacing || tickSpacing%c.TickGroupSize != 0:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "tick group size %d with tick spacing %d", c.TickGroupSize, tickSpacing)
	case c.MajorSwapThresholdTicks == 0 || int32(c.MajorSwapThresholdTicks) > int32(tickSpacing)*solvemath.TickArraySize:
		return errs.Newf(errs.ErrInvalidAdaptiveFeeConstants, "major swap threshold %d ticks", c.MajorSwapThresholdTicks)
	}
	return nil
}

// FeeRate returns the adaptive part of the fee for a volatility
// accumulator, rounded up and capped at the hard limit:
//
//	ceil(controlFactor * (va * tickGroupSize)^2 / (controlDenominator * scale^2))
func (c AdaptiveFeeConstants) FeeRate(volatilityAccumulator uint32) money.SwapFeeRate {
	crossed := uint256.NewInt(uint64(volatilityAccumulator) * uint64(c.TickGroupSize))
	num := new(uint256.Int).Mul(crossed, crossed)
	num.Mul(num, uint256.NewInt(uint64(c.AdaptiveFeeControlFactor)))
	den := uint256.NewInt(AdaptiveFeeControlFactorDenominator * VolatilityAccumulatorScaleFactor * VolatilityAccumulatorScaleFactor)

	rate := new(uint256.Int).Div(num, den)
	if !new(uint256.Int).Mod(num, den).IsZero() {
		rate.AddUint64(rate, 1)
	}
	if !rate.IsUint64() || rate.Uint64() > uint64(money.FeeRateHardLimit) {
		return money.FeeRateHardLimit
	}
	return money.SwapFeeRate(rate.Uint64())
}

// AdaptiveFeeVariables track recent price movement of one pool.
type AdaptiveFeeVariables struct {
	LastReferenceUpdateTimestamp uint64
	LastMajorSwapTimestamp       uint64
	VolatilityReference          uint32
	TickGroupIndexReference      int32
	VolatilityAccumulator        uint32
}

// UpdateVolatilityAccumulator measures how many tick groups the price is
// away from the reference group.
func (v *AdaptiveFeeVariables) UpdateVolatilityAccumulator(tickGroupIndex int32, c AdaptiveFeeConstants) {
	delta := int64(v.TickGroupIndexReference) - int64(tickGroupIndex)
	if delta < 0 {
		delta = -delta
	}
	acc := uint64(v.VolatilityReference) + uint64(delta)*VolatilityAccumulatorScaleFactor
	if acc > uint64(c.MaxVolatilityAccumulator) {
		acc = uint64(c.MaxVolatilityAccumulator)
	}
	v.VolatilityAccumulator = uint32(acc)
}

// UpdateReference moves the reference group and decays the volatility
// reference at the start of a swap. Trades inside the filter period keep
// the reference; trades inside the decay period carry a reduced share of
// the accumulator forward.
func (v *AdaptiveFeeVariables) UpdateReference(tickGroupIndex int32, now uint64, c AdaptiveFeeConstants) error {
	latest := v.LastReferenceUpdateTimestamp
	if v.LastMajorSwapTimestamp > latest {
		latest = v.LastMajorSwapTimestamp
	}
	if now < latest {
		return errs.ErrInvalidTimestamp
	}

	if now-v.LastReferenceUpdateTimestamp > MaxReferenceAge {
		v.TickGroupIndexReference = tickGroupIndex
		v.VolatilityReference = 0
		v.LastReferenceUpdateTimestamp = now
		return nil
	}

	elapsed := now - latest
	switch {
	case elapsed < uint64(c.FilterPeriod):
	case elapsed < uint64(c.DecayPeriod):
		v.TickGroupIndexReference = tickGroupIndex
		v.VolatilityReference = uint32(uint64(v.VolatilityAccumulator) * uint64(c.ReductionFactor) / ReductionFactorDenominator)
		v.LastReferenceUpdateTimestamp = now
	default:
		v.TickGroupIndexReference = tickGroupIndex
		v.VolatilityReference = 0
		v.LastReferenceUpdateTimestamp = now
	}
	return nil
}

// UpdateMajorSwapTimestamp records now when the price moved at least the
// major swap threshold.
func (v *AdaptiveFeeVariables) UpdateMajorSwapTimestamp(pre, post uint128.Uint128, now uint64, c AdaptiveFeeConstants) error {
	major, err := isMajorSwap(pre, post, c.MajorSwapThresholdTicks)
	if err != nil {
		return err
	}
	if major {
		v.LastMajorSwapTimestamp = now
	}
	return nil
}

func isMajorSwap(pre, post uint128.Uint128, thresholdTicks uint16) (bool, error) {
	smaller, larger := pre, post
	if smaller.Cmp(larger) > 0 {
		smaller, larger = larger, smaller
	}
	factor, err := solvemath.SqrtPriceFromTick(int32(thresholdTicks))
	if err != nil {
		return false, err
	}
	target := new(uint256.Int).Mul(solvemath.U256(smaller), solvemath.U256(factor))
	target.Rsh(target, 64)
	return solvemath.U256(larger).Cmp(target) >= 0, nil
}

// Oracle holds the adaptive fee state of one pool.
type Oracle struct {
	Header Header

	Pool                 solana.PublicKey
	TradeEnableTimestamp uint64
	Constants            AdaptiveFeeConstants
	Variables            AdaptiveFeeVariables
}

func (o *Oracle) Kind() Kind       { return KindOracle }
func (o *Oracle) header() *Header { return &o.Header }

// TradeEnabled reports whether swaps are allowed at now.
func (o *Oracle) TradeEnabled(now uint64) bool {
	return o.TradeEnableTimestamp <= now
}

// SetConstants validates and stores new constants and clears the
// variables, which were measured under the old ones.
func (o *Oracle) SetConstants(c AdaptiveFeeConstants, tickSpacing uint16) error {
	if err := c.Validate(tickSpacing); err != nil {
		return err
	}
	o.Constants = c
	o.Variables = AdaptiveFeeVariables{}
	return nil
}

// AdaptiveFeeTier is a fee tier whose pools charge a volatility fee on top
// of a base rate. It shares its address space with FeeTier: the index of
// an adaptive tier never equals its tick spacing.
type AdaptiveFeeTier struct {
	Header Header

	Config                  solana.PublicKey
	FeeTierIndex            uint16
	TickSpacing             uint16
	InitializePoolAuthority solana.PublicKey
	DelegatedFeeAuthority   solana.PublicKey
	DefaultBaseFeeRate      uint16
	Constants               AdaptiveFeeConstants
}

func (t *AdaptiveFeeTier) Kind() Kind       { return KindAdaptiveFeeTier }
func (t *AdaptiveFeeTier) header() *Header { return &t.Header }

// SetDefaultBaseFeeRate validates and stores the base rate of new pools.
func (t *AdaptiveFeeTier) SetDefaultBaseFeeRate(rate uint16) error {
	if err := money.FeeRate(rate).Validate(); err != nil {
		return err
	}
	t.DefaultBaseFeeRate = rate
	return nil
}

// SetConstants validates and stores the constants given to new pools.
func (t *AdaptiveFeeTier) SetConstants(c AdaptiveFeeConstants) error {
	if err := c.Validate(t.TickSpacing); err != nil {
		return err
	}
	t.Constants = c
	return nil
}

// Permissioned reports whether only InitializePoolAuthority may create
// pools from the tier.
func (t *AdaptiveFeeTier) Permissioned() bool {
	return !t.InitializePoolAuthority.IsZero()
}

// RequireInitializePoolAuthority fails unless authority may create pools.
func (t *AdaptiveFeeTier) RequireInitializePoolAuthority(authority solana.PublicKey) error {
	if !t.Permissioned() {
		return nil
	}
	return requireAuthority(t.InitializePoolAuthority, authority, "initialize pool authority")
}

// RequireDelegatedFeeAuthority fails unless authority may set pool fee rates.
func (t *AdaptiveFeeTier) RequireDelegatedFeeAuthority(authority solana.PublicKey) error {
	return requireAuthority(t.DelegatedFeeAuthority, authority, "delegated fee authority")
}

// ValidateTradeEnableTimestamp checks the trading start requested for a new
// pool. Zero means trading starts immediately; only permissioned tiers may
// ask for anything else.
func (t *AdaptiveFeeTier) ValidateTradeEnableTimestamp(ts, now uint64) error {
	switch {
	case ts == 0:
		return nil
	case !t.Permissioned():
		return errs.Newf(errs.ErrInvalidTradeEnableTimestamp, "permissionless tier cannot delay trading")
	case ts > now && ts-now > MaxTradeEnableTimestampDelta:
		return errs.Newf(errs.ErrInvalidTradeEnableTimestamp, "%d is more than %d seconds ahead", ts, MaxTradeEnableTimestampDelta)
	case ts <= now && now-ts > MaxTradeEnableTimestampAge:
		return errs.Newf(errs.ErrInvalidTradeEnableTimestamp, "%d is more than %d seconds ago", ts, MaxTradeEnableTimestampAge)
	}
	return nil
}
