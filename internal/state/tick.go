package state

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

// NumRewards is the number of reward slots per pool.
const NumRewards = 3

// Growths is a set of fee and reward growth accumulators, either a pool's
// global values or one region's share of them.
type Growths struct {
	FeeA    uint128.Uint128
	FeeB    uint128.Uint128
	Rewards [NumRewards]uint128.Uint128
}

// Sub is the wrapping difference g - o of every accumulator.
func (g Growths) Sub(o Growths) Growths {
	out := Growths{
		FeeA: g.FeeA.SubWrap(o.FeeA),
		FeeB: g.FeeB.SubWrap(o.FeeB),
	}
	for i := range g.Rewards {
		out.Rewards[i] = g.Rewards[i].SubWrap(o.Rewards[i])
	}
	return out
}

// Tick is one slot of a tick array.
type Tick struct {
	Initialized          bool
	LiquidityNet         solvemath.Int128
	LiquidityGross       uint128.Uint128
	FeeGrowthOutsideA    uint128.Uint128
	FeeGrowthOutsideB    uint128.Uint128
	RewardGrowthsOutside [NumRewards]uint128.Uint128
}

func (t Tick) outside() Growths {
	return Growths{FeeA: t.FeeGrowthOutsideA, FeeB: t.FeeGrowthOutsideB, Rewards: t.RewardGrowthsOutside}
}

func (t *Tick) setOutside(g Growths) {
	t.FeeGrowthOutsideA = g.FeeA
	t.FeeGrowthOutsideB = g.FeeB
	t.RewardGrowthsOutside = g.Rewards
}

// ModifyLiquidity returns the tick after a position boundary at tickIndex
// changes its liquidity by delta. The first reference seeds the outside
// growth with the global growth when the tick is at or below the current
// tick. A tick whose gross liquidity returns to zero is reset.
func (t Tick) ModifyLiquidity(tickIndex, currentTick int32, delta solvemath.Int128, isUpper bool, global Growths) (Tick, error) {
	if delta.IsZero() {
		return t, nil
	}

	gross, err := solvemath.AddLiquidityDelta(t.LiquidityGross, delta)
	if err != nil {
		return Tick{}, err
	}
	if gross.IsZero() {
		return Tick{}, nil
	}

	next := t
	if t.LiquidityGross.IsZero() {
		if currentTick >= tickIndex {
			next.setOutside(global)
		} else {
			next.setOutside(Growths{})
		}
	}

	if isUpper {
		next.LiquidityNet, err = t.LiquidityNet.Sub(delta)
	} else {
		next.LiquidityNet, err = t.LiquidityNet.Add(delta)
	}
	if err != nil {
		return Tick{}, errs.Newf(errs.ErrArithmeticOverflow, "liquidity net at tick %d", tickIndex)
	}

	next.Initialized = true
	next.LiquidityGross = gross
	return next, nil
}

// Cross flips the outside growth of the tick as the price moves across it.
func (t Tick) Cross(global Growths) Tick {
	next := t
	next.setOutside(global.Sub(t.outside()))
	return next
}

// GrowthsInside returns the growth accrued between two boundary ticks.
// An uninitialized lower tick counts all global growth as below it; an
// uninitialized upper tick counts none as above it.
func GrowthsInside(lower, upper Tick, lowerIndex, upperIndex, currentTick int32, global Growths) Growths {
	var below, above Growths
	switch {
	case !lower.Initialized:
		below = global
	case currentTick < lowerIndex:
		below = global.Sub(lower.outside())
	default:
		below = lower.outside()
	}

	switch {
	case !upper.Initialized:
	case currentTick < upperIndex:
		above = upper.outside()
	default:
		above = global.Sub(upper.outside())
	}

	return global.Sub(below).Sub(above)
}

// TickArray is a contiguous segment of TickArraySize ticks of one pool.
type TickArray struct {
	Header Header

	Pool              solana.PublicKey
	StartTickIndex    int32
	Ticks             [solvemath.TickArraySize]Tick
	InitializedBitmap solvemath.TickBitmap
}

func (a *TickArray) Kind() Kind       { return KindTickArray }
func (a *TickArray) header() *Header { return &a.Header }

// NewTickArray returns an empty array starting at start.
func NewTickArray(pool solana.PublicKey, start int32, tickSpacing uint16) (*TickArray, error) {
	if !solvemath.IsValidStartTick(start, tickSpacing) {
		return nil, errs.Newf(errs.ErrInvalidStartTick, "start %d, tick spacing %d", start, tickSpacing)
	}
	return &TickArray{Pool: pool, StartTickIndex: start}, nil
}

// Contains reports whether tickIndex falls within the array's span.
func (a *TickArray) Contains(tickIndex int32, tickSpacing uint16) bool {
	return tickIndex >= a.StartTickIndex && tickIndex < a.StartTickIndex+solvemath.TicksInArray(tickSpacing)
}

// Tick returns the tick at tickIndex.
func (a *TickArray) Tick(tickIndex int32, tickSpacing uint16) (Tick, error) {
	off, ok := solvemath.TickOffset(tickIndex, a.StartTickIndex, tickSpacing)
	if !ok {
		return Tick{}, errs.Newf(errs.ErrInvalidTickIndex, "tick %d not in array starting at %d", tickIndex, a.StartTickIndex)
	}
	return a.Ticks[off], nil
}

// SetTick stores t at tickIndex and keeps the bitmap in step.
func (a *TickArray) SetTick(tickIndex int32, tickSpacing uint16, t Tick) error {
	off, ok := solvemath.TickOffset(tickIndex, a.StartTickIndex, tickSpacing)
	if !ok {
		return errs.Newf(errs.ErrInvalidTickIndex, "tick %d not in array starting at %d", tickIndex, a.StartTickIndex)
	}
	a.Ticks[off] = t
	a.InitializedBitmap.Set(off, t.Initialized)
	return nil
}

// InSearchRange reports whether a swap positioned at tickIndex may search
// this array. Searching upwards the window is shifted down one spacing,
// since the search starts at the slot after tickIndex.
func (a *TickArray) InSearchRange(tickIndex int32, tickSpacing uint16, aToB bool) bool {
	lower := a.StartTickIndex
	upper := a.StartTickIndex + solvemath.TicksInArray(tickSpacing)
	if !aToB {
		lower -= int32(tickSpacing)
		upper -= int32(tickSpacing)
	}
	return tickIndex >= lower && tickIndex < upper
}

// NextInitializedTick returns the next initialized tick at or below tickIndex
// (aToB) or strictly above it, within this array.
func (a *TickArray) NextInitializedTick(tickIndex int32, tickSpacing uint16, aToB bool) (int32, bool) {
	ts := int32(tickSpacing)
	lhs := tickIndex - a.StartTickIndex
	off := lhs / ts
	if lhs%ts < 0 {
		off--
	}
	if !aToB {
		off++
	}
	found, ok := a.InitializedBitmap.NextInitialized(int(off), aToB)
	if !ok {
		return 0, false
	}
	return a.StartTickIndex + int32(found)*ts, true
}

// Empty reports whether no tick in the array is initialized.
func (a *TickArray) Empty() bool {
	return a.InitializedBitmap.Count() == 0
}
