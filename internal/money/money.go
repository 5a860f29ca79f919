// Package money provides the integer fee-rate types used by pools.
// Rates are stored as small unsigned integers against fixed denominators so
// fee arithmetic never touches floating point.
package money

import (
	"fmt"
	"math/bits"

	"github.com/solve3fi/contracts/internal/errs"
)

// Denominators and bounds.
const (
	FeeRateDenominator         uint64 = 1_000_000 // 100% = 1_000_000, 3000 = 0.3%
	ProtocolFeeRateDenominator uint64 = 10_000    // basis points of the trading fee
	MaxFeeRate                 FeeRate         = 60_000
	MaxProtocolFeeRate         ProtocolFeeRate = 2_500
	FeeRateHardLimit           SwapFeeRate     = 100_000 // static plus adaptive fee
)

// FeeRate is a pool trading fee in hundredths of a basis point.
type FeeRate uint16

// SwapFeeRate is the rate charged on one swap step. It widens FeeRate so the
// adaptive component can push it past what a pool stores.
type SwapFeeRate uint32

// ProtocolFeeRate is the protocol's share of trading fees in basis points.
type ProtocolFeeRate uint16

// --- FeeRate ---

// Validate checks the rate against MaxFeeRate.
func (r FeeRate) Validate() error {
	if r > MaxFeeRate {
		return fmt.Errorf("fee rate %d above maximum %d: %w", r, MaxFeeRate, errs.ErrInvalidFeeRate)
	}
	return nil
}

func (r FeeRate) String() string {
	return fmt.Sprintf("%d/%d", uint16(r), FeeRateDenominator)
}

// --- SwapFeeRate ---

// Capped returns the rate limited to FeeRateHardLimit.
func (r SwapFeeRate) Capped() SwapFeeRate {
	if r > FeeRateHardLimit {
		return FeeRateHardLimit
	}
	return r
}

// Split divides an input amount into the part that trades and the fee,
// rounding the traded part down.
// Example: SwapFeeRate(3000).Split(1000) = (997, 3)
func (r SwapFeeRate) Split(amount uint64) (net, fee uint64) {
	r = r.Capped()
	hi, lo := bits.Mul64(amount, FeeRateDenominator-uint64(r))
	net, _ = bits.Div64(hi, lo, FeeRateDenominator)
	return net, amount - net
}

// FeeOnNet returns the fee owed on top of a net traded amount, rounded up.
// The cap keeps the fee below net, so the result always fits.
func (r SwapFeeRate) FeeOnNet(net uint64) uint64 {
	r = r.Capped()
	den := FeeRateDenominator - uint64(r)
	hi, lo := bits.Mul64(net, uint64(r))
	q, rem := bits.Div64(hi, lo, den)
	if rem != 0 {
		q++
	}
	return q
}

// --- ProtocolFeeRate ---

// Validate checks the rate against MaxProtocolFeeRate.
func (r ProtocolFeeRate) Validate() error {
	if r > MaxProtocolFeeRate {
		return fmt.Errorf("protocol fee rate %d above maximum %d: %w", r, MaxProtocolFeeRate, errs.ErrInvalidProtocolFeeRate)
	}
	return nil
}

// Share returns the protocol's cut of a trading fee, rounded down.
// Example: ProtocolFeeRate(300).Share(1000) = 30
func (r ProtocolFeeRate) Share(fee uint64) uint64 {
	hi, lo := bits.Mul64(fee, uint64(r))
	q, _ := bits.Div64(hi, lo, ProtocolFeeRateDenominator)
	return q
}

func (r ProtocolFeeRate) String() string {
	return fmt.Sprintf("%d bps", uint16(r))
}
