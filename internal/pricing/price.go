// Package pricing converts between Q64.64 square-root prices and
// human-readable prices.
package pricing

import (
	"fmt"
	"math/big"

	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

// precision of intermediate floats, enough for exact Q64.64 squares.
const precision = 512

var (
	q64  = new(big.Float).SetPrec(precision).SetMantExp(big.NewFloat(1), 64)
	q128 = new(big.Float).SetPrec(precision).SetMantExp(big.NewFloat(1), 128)
)

// pow10 returns 10^decimals as *big.Int
func pow10(decimals int) *big.Int {
	if decimals < 0 {
		decimals = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// decimalScale returns 10^(decimalsA-decimalsB), the factor turning raw
// token B per raw token A into whole B per whole A.
func decimalScale(decimalsA, decimalsB uint8) *big.Float {
	diff := int(decimalsA) - int(decimalsB)
	scale := new(big.Float).SetPrec(precision).SetInt(pow10(abs(diff)))
	if diff < 0 {
		return new(big.Float).SetPrec(precision).Quo(big.NewFloat(1), scale)
	}
	return scale
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PriceFromSqrtPrice returns the price of one whole token A in whole token B.
func PriceFromSqrtPrice(sqrtPrice uint128.Uint128, decimalsA, decimalsB uint8) *big.Float {
	root := new(big.Float).SetPrec(precision).SetInt(sqrtPrice.Big())
	root.Quo(root, q64)
	price := new(big.Float).SetPrec(precision).Mul(root, root)
	return price.Mul(price, decimalScale(decimalsA, decimalsB))
}

// SqrtPriceFromPrice returns the Q64.64 square-root price for a price of one
// whole token A in whole token B, rounded down.
func SqrtPriceFromPrice(price *big.Float, decimalsA, decimalsB uint8) (uint128.Uint128, error) {
	if price == nil || price.Sign() <= 0 {
		return uint128.Zero, errs.Newf(errs.ErrInvalidParameter, "price must be positive")
	}
	raw := new(big.Float).SetPrec(precision).Quo(price, decimalScale(decimalsA, decimalsB))
	// floor(sqrt(raw * 2^128)) in integers keeps exact squares exact.
	squared, _ := raw.Mul(raw, q128).Int(nil)
	out := new(big.Int).Sqrt(squared)
	if out.BitLen() > 128 {
		return uint128.Zero, errs.Newf(errs.ErrInvalidSqrtPrice, "price %s", price.Text('g', 10))
	}
	sqrtPrice := uint128.FromBig(out)
	if !solvemath.IsValidSqrtPrice(sqrtPrice) {
		return uint128.Zero, errs.Newf(errs.ErrInvalidSqrtPrice, "price %s", price.Text('g', 10))
	}
	return sqrtPrice, nil
}

// ParsePrice parses a decimal price such as "187.25".
func ParsePrice(s string) (*big.Float, error) {
	p, _, err := big.ParseFloat(s, 10, precision, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return p, nil
}

// FormatAmount renders a raw token amount in whole tokens.
func FormatAmount(raw uint64, decimals uint8) string {
	val := new(big.Float).SetPrec(precision).SetUint64(raw)
	val.Quo(val, new(big.Float).SetPrec(precision).SetInt(pow10(int(decimals))))
	return val.Text('f', int(decimals))
}
