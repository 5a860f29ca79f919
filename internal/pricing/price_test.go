package pricing

import (
	"errors"
	"math/big"
	"testing"

	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

var one = uint128.From64(1).Lsh(64)

func TestPriceFromSqrtPrice(t *testing.T) {
	tests := []struct {
		name      string
		sqrtPrice uint128.Uint128
		decA      uint8
		decB      uint8
		want      float64
	}{
		{"parity", one, 6, 6, 1},
		{"doubled root", one.Mul64(2), 6, 6, 4},
		{"halved root", one.Rsh(1), 0, 0, 0.25},
		{"A has more decimals", one, 9, 6, 1000},
		{"B has more decimals", one, 6, 9, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := PriceFromSqrtPrice(tt.sqrtPrice, tt.decA, tt.decB).Float64()
			if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("PriceFromSqrtPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSqrtPriceFromPrice(t *testing.T) {
	tests := []struct {
		name    string
		price   string
		decA    uint8
		decB    uint8
		want    uint128.Uint128
		wantErr error
	}{
		{name: "parity", price: "1", decA: 6, decB: 6, want: one},
		{name: "four", price: "4", decA: 0, decB: 0, want: one.Mul64(2)},
		{name: "decimal scaled", price: "1000", decA: 9, decB: 6, want: one},
		{name: "zero", price: "0", wantErr: errs.ErrInvalidParameter},
		{name: "negative", price: "-2", wantErr: errs.ErrInvalidParameter},
		{name: "above max", price: "1e40", wantErr: errs.ErrInvalidSqrtPrice},
		{name: "below min", price: "1e-40", wantErr: errs.ErrInvalidSqrtPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePrice(tt.price)
			if err != nil {
				t.Fatalf("ParsePrice() error = %v", err)
			}
			got, err := SqrtPriceFromPrice(p, tt.decA, tt.decB)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SqrtPriceFromPrice() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SqrtPriceFromPrice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SqrtPriceFromPrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPriceRoundTrip(t *testing.T) {
	for _, tick := range []int32{-443636, -50000, -1, 0, 1, 12345, 443636} {
		sqrtPrice, err := solvemath.SqrtPriceFromTick(tick)
		if err != nil {
			t.Fatalf("SqrtPriceFromTick(%d) error = %v", tick, err)
		}
		got, err := SqrtPriceFromPrice(PriceFromSqrtPrice(sqrtPrice, 6, 6), 6, 6)
		if err != nil {
			t.Fatalf("tick %d: SqrtPriceFromPrice() error = %v", tick, err)
		}
		if got != sqrtPrice {
			t.Errorf("tick %d: round trip = %s, want %s", tick, got, sqrtPrice)
		}
	}
}

func TestParsePrice(t *testing.T) {
	if _, err := ParsePrice("abc"); err == nil {
		t.Error("ParsePrice(abc) expected error")
	}
	p, err := ParsePrice("187.25")
	if err != nil {
		t.Fatalf("ParsePrice() error = %v", err)
	}
	if p.Cmp(big.NewFloat(187.25)) != 0 {
		t.Errorf("ParsePrice() = %s", p.Text('f', 2))
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		raw      uint64
		decimals uint8
		want     string
	}{
		{1500000, 6, "1.500000"},
		{1, 9, "0.000000001"},
		{42, 0, "42"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.raw, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %s, want %s", tt.raw, tt.decimals, got, tt.want)
		}
	}
}
