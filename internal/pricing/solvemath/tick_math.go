package solvemath

import (
	"math/big"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

// Tick domain and the sqrt prices at its bounds, in Q64.64.
const (
	MinTick int32 = -443636
	MaxTick int32 = 443636

	// TickArraySize is the number of tick slots in one tick array.
	TickArraySize = 88

	// FullRangeOnlyTickSpacingThreshold is the smallest spacing whose pools
	// only accept full-range positions.
	FullRangeOnlyTickSpacingThreshold uint16 = 32768
)

var (
	MinSqrtPrice = uint128.From64(4295048016)
	MaxSqrtPrice = uint128.FromBig(mustBig("79226673515401279992447579061"))
)

// sqrt(1.0001^-(2^i)) in Q128.128 for i = 1..18. The i = 0 term seeds the
// product directly.
var tickRatios = [...]struct {
	bit   uint32
	ratio *uint256.Int
}{
	{0x2, uint256.MustFromHex("0xfff97272373d413259a46990580e213a")},
	{0x4, uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc")},
	{0x8, uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0")},
	{0x10, uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644")},
	{0x20, uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0")},
	{0x40, uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861")},
	{0x80, uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053")},
	{0x100, uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4")},
	{0x200, uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54")},
	{0x400, uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3")},
	{0x800, uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9")},
	{0x1000, uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825")},
	{0x2000, uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5")},
	{0x4000, uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7")},
	{0x8000, uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6")},
	{0x10000, uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9")},
	{0x20000, uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604")},
	{0x40000, uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98")},
}

var (
	tickRatioOdd = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	maxUint256   = new(uint256.Int).SetAllOne()
)

// SqrtPriceFromTick returns sqrt(1.0001^tick) in Q64.64, rounded down.
func SqrtPriceFromTick(tick int32) (uint128.Uint128, error) {
	if tick < MinTick || tick > MaxTick {
		return uint128.Zero, errs.ErrInvalidTickIndex
	}

	abs := uint32(tick)
	if tick < 0 {
		abs = uint32(-tick)
	}

	ratio := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if abs&0x1 != 0 {
		ratio.Set(tickRatioOdd)
	}
	for _, r := range tickRatios {
		if abs&r.bit != 0 {
			ratio.Mul(ratio, r.ratio)
			ratio.Rsh(ratio, 128)
		}
	}

	// The table holds ratios below one; positive ticks take the reciprocal.
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}
	ratio.Rsh(ratio, 64)
	return U128(ratio)
}

// TickFromSqrtPrice returns the greatest tick whose sqrt price does not
// exceed sqrtPrice.
func TickFromSqrtPrice(sqrtPrice uint128.Uint128) (int32, error) {
	if sqrtPrice.Cmp(MinSqrtPrice) < 0 || sqrtPrice.Cmp(MaxSqrtPrice) > 0 {
		return 0, errs.ErrInvalidSqrtPrice
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		p, err := SqrtPriceFromTick(mid)
		if err != nil {
			return 0, err
		}
		if p.Cmp(sqrtPrice) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// IsValidSqrtPrice reports whether p lies within [MinSqrtPrice, MaxSqrtPrice].
func IsValidSqrtPrice(p uint128.Uint128) bool {
	return p.Cmp(MinSqrtPrice) >= 0 && p.Cmp(MaxSqrtPrice) <= 0
}

// IsFullRangeOnly reports whether pools with this spacing only allow
// full-range positions.
func IsFullRangeOnly(tickSpacing uint16) bool {
	return tickSpacing >= FullRangeOnlyTickSpacingThreshold
}

// FullRangeIndexes returns the outermost usable ticks for a spacing.
func FullRangeIndexes(tickSpacing uint16) (int32, int32) {
	ts := int32(tickSpacing)
	return (MinTick / ts) * ts, (MaxTick / ts) * ts
}

// IsUsableTick reports whether tick is in the domain and aligned to the spacing.
func IsUsableTick(tick int32, tickSpacing uint16) bool {
	if tickSpacing == 0 || tick < MinTick || tick > MaxTick {
		return false
	}
	return tick%int32(tickSpacing) == 0
}

// TicksInArray is the tick span covered by one tick array.
func TicksInArray(tickSpacing uint16) int32 {
	return TickArraySize * int32(tickSpacing)
}

// TickArrayStartIndex returns the start tick of the array containing tick.
func TickArrayStartIndex(tick int32, tickSpacing uint16) int32 {
	span := TicksInArray(tickSpacing)
	start := tick / span
	if tick < 0 && tick%span != 0 {
		start--
	}
	return start * span
}

// IsValidStartTick reports whether start is the start index of a tick array
// that intersects the tick domain.
func IsValidStartTick(start int32, tickSpacing uint16) bool {
	if tickSpacing == 0 {
		return false
	}
	span := TicksInArray(tickSpacing)
	if start%span != 0 {
		return false
	}
	minStart := TickArrayStartIndex(MinTick, tickSpacing)
	return start >= minStart && start <= MaxTick
}

// TickOffset returns the slot of tick within the array starting at start, or
// false when the tick is outside the array or not aligned.
func TickOffset(tick, start int32, tickSpacing uint16) (int, bool) {
	ts := int32(tickSpacing)
	if tick < start || tick >= start+TicksInArray(tickSpacing) || (tick-start)%ts != 0 {
		return 0, false
	}
	return int((tick - start) / ts), true
}

func mustBig(s string) *big.Int {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("solvemath: invalid constant " + s)
	}
	return b
}
