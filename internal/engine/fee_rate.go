package engine

import (
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/money"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// feeRateManager picks the fee rate of each swap step. A pool without an
// oracle charges its static rate. An adaptive pool adds a volatility fee
// that is recomputed whenever the price enters a new tick group, so steps
// are cut at tick group boundaries while the accumulator can still grow.
type feeRateManager struct {
	aToB       bool
	staticRate uint16
	oracle     *state.Oracle

	group int32
	// Tick groups outside [coreLower, coreUpper] charge the capped
	// accumulator.
	coreLower, coreUpper int32
	lowerBound           uint128.Uint128
	upperBound           uint128.Uint128
}

func newFeeRateManager(pool *state.Pool, oracle *state.Oracle, aToB bool, now uint64) (*feeRateManager, error) {
	m := &feeRateManager{aToB: aToB, staticRate: pool.FeeRate}
	if oracle == nil {
		return m, nil
	}
	m.oracle = oracle
	c := oracle.Constants
	v := &oracle.Variables
	size := int32(c.TickGroupSize)

	m.group = floorDiv(pool.TickCurrentIndex, size)
	if err := v.UpdateReference(m.group, now, c); err != nil {
		return nil, err
	}

	var headroom int32
	if c.MaxVolatilityAccumulator > v.VolatilityReference {
		gap := int64(c.MaxVolatilityAccumulator - v.VolatilityReference)
		headroom = int32((gap + state.VolatilityAccumulatorScaleFactor - 1) / state.VolatilityAccumulatorScaleFactor)
	}
	m.coreLower = v.TickGroupIndexReference - headroom
	m.coreUpper = v.TickGroupIndexReference + headroom

	var err error
	if m.lowerBound, err = groupEdgePrice(m.coreLower, size); err != nil {
		return nil, err
	}
	if m.upperBound, err = groupEdgePrice(m.coreUpper+1, size); err != nil {
		return nil, err
	}
	return m, nil
}

// update refreshes the volatility accumulator for the current tick group.
func (m *feeRateManager) update() {
	if m.oracle == nil {
		return
	}
	m.oracle.Variables.UpdateVolatilityAccumulator(m.group, m.oracle.Constants)
}

// totalRate is the static rate plus the volatility fee, capped at the hard
// limit.
func (m *feeRateManager) totalRate() money.SwapFeeRate {
	rate := money.SwapFeeRate(m.staticRate)
	if m.oracle != nil {
		rate += m.oracle.Constants.FeeRate(m.oracle.Variables.VolatilityAccumulator)
	}
	return rate.Capped()
}

// boundedTarget shortens target so a step ends at the edge of the current
// tick group. Outside the core range the accumulator is already capped and
// the step may run further. Without liquidity the price moves freely.
func (m *feeRateManager) boundedTarget(target, liquidity uint128.Uint128) (uint128.Uint128, error) {
	if m.oracle == nil || liquidity.IsZero() {
		return target, nil
	}
	size := int32(m.oracle.Constants.TickGroupSize)

	if m.aToB {
		switch {
		case m.group < m.coreLower:
			return target, nil
		case m.group > m.coreUpper:
			return maxPrice(target, m.upperBound), nil
		}
		edge, err := groupEdgePrice(m.group, size)
		if err != nil {
			return uint128.Zero, err
		}
		return maxPrice(target, edge), nil
	}

	switch {
	case m.group > m.coreUpper:
		return target, nil
	case m.group < m.coreLower:
		return minPrice(target, m.lowerBound), nil
	}
	edge, err := groupEdgePrice(m.group+1, size)
	if err != nil {
		return uint128.Zero, err
	}
	return minPrice(target, edge), nil
}

// sync moves the current tick group to where a step left the price. A
// downward swap resting on a group's lower edge has left that group.
func (m *feeRateManager) sync(price, tickPrice uint128.Uint128, nextTick int32) error {
	if m.oracle == nil {
		return nil
	}
	tick := nextTick
	if !price.Equals(tickPrice) {
		var err error
		if tick, err = solvemath.TickFromSqrtPrice(price); err != nil {
			return err
		}
	}
	size := int32(m.oracle.Constants.TickGroupSize)
	m.group = floorDiv(tick, size)
	if m.aToB && floorMod(tick, size) == 0 {
		edge, err := solvemath.SqrtPriceFromTick(tick)
		if err != nil {
			return err
		}
		if price.Equals(edge) {
			m.group--
		}
	}
	return nil
}

// finish records a major swap on the oracle.
func (m *feeRateManager) finish(pre, post uint128.Uint128, now uint64) error {
	if m.oracle == nil {
		return nil
	}
	return m.oracle.Variables.UpdateMajorSwapTimestamp(pre, post, now, m.oracle.Constants)
}

// groupEdgePrice is the sqrt price at the lower edge of a tick group,
// clamped to the tick domain.
func groupEdgePrice(group, size int32) (uint128.Uint128, error) {
	tick := int64(group) * int64(size)
	switch {
	case tick < int64(solvemath.MinTick):
		tick = int64(solvemath.MinTick)
	case tick > int64(solvemath.MaxTick):
		tick = int64(solvemath.MaxTick)
	}
	return solvemath.SqrtPriceFromTick(int32(tick))
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int32) int32 {
	return a - floorDiv(a, b)*b
}

func maxPrice(a, b uint128.Uint128) uint128.Uint128 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minPrice(a, b uint128.Uint128) uint128.Uint128 {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
