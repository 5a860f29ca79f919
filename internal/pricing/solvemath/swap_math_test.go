package solvemath

import (
	"errors"
	"testing"

	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

func mustPrice(t *testing.T, tick int32) uint128.Uint128 {
	t.Helper()
	p, err := SqrtPriceFromTick(tick)
	if err != nil {
		t.Fatalf("SqrtPriceFromTick(%d): %v", tick, err)
	}
	return p
}

func TestAmountDeltas(t *testing.T) {
	l := uint128.From64(1_000_000_000)
	p0, p64 := mustPrice(t, 0), mustPrice(t, 64)

	tests := []struct {
		name string
		fn   func(a, b, l uint128.Uint128, r Rounding) (uint64, error)
		r    Rounding
		want uint64
	}{
		{"A round up", AmountDeltaA, RoundUp, 3194726},
		{"A round down", AmountDeltaA, RoundDown, 3194725},
		{"B round up", AmountDeltaB, RoundUp, 3204965},
		{"B round down", AmountDeltaB, RoundDown, 3204964},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(p0, p64, l, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
			// argument order does not matter
			swapped, _ := tt.fn(p64, p0, l, tt.r)
			if swapped != got {
				t.Errorf("order dependent: %d vs %d", swapped, got)
			}
		})
	}
}

func TestAmountDeltaOverflow(t *testing.T) {
	huge := uint128.New(0, 1<<40)
	_, err := AmountDeltaB(MinSqrtPrice, MaxSqrtPrice, huge, RoundUp)
	if !errors.Is(err, errs.ErrArithmeticOverflow) {
		t.Errorf("error = %v, want arithmetic overflow", err)
	}
}

func TestComputeSwapStep(t *testing.T) {
	l := uint128.From64(1_000_000_000)
	p0 := mustPrice(t, 0)

	tests := []struct {
		name      string
		amount    uint64
		target    int32
		isInput   bool
		aToB      bool
		wantNext  string
		wantIn    uint64
		wantOut   uint64
		wantFee   uint64
		reachesTo bool
	}{
		{"exact in a to b", 1000, -64, true, true, "18446725682324046339", 997, 996, 3, false},
		{"exact in b to a", 1000, 64, true, false, "18446762465113393104", 997, 996, 3, false},
		{"exact out a to b", 1000, -64, false, true, "18446725626965477906", 1001, 1000, 4, false},
		{"reaches target", 1_000_000_000, -64, true, true, "18387811781193591352", 3204965, 3194725, 9644, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := mustPrice(t, tt.target)
			res, err := ComputeSwapStep(tt.amount, 3000, l, p0, target, tt.isInput, tt.aToB)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.NextSqrtPrice.String() != tt.wantNext {
				t.Errorf("next sqrt price = %s, want %s", res.NextSqrtPrice, tt.wantNext)
			}
			if res.AmountIn != tt.wantIn || res.AmountOut != tt.wantOut || res.FeeAmount != tt.wantFee {
				t.Errorf("in/out/fee = %d/%d/%d, want %d/%d/%d",
					res.AmountIn, res.AmountOut, res.FeeAmount, tt.wantIn, tt.wantOut, tt.wantFee)
			}
			if res.NextSqrtPrice.Equals(target) != tt.reachesTo {
				t.Errorf("reached target = %v, want %v", !tt.reachesTo, tt.reachesTo)
			}
			if tt.isInput && !tt.reachesTo && res.AmountIn+res.FeeAmount != tt.amount {
				t.Errorf("partial exact-in step must consume the whole amount")
			}
		})
	}
}

func TestComputeSwapStepZeroLiquidity(t *testing.T) {
	p0, target := mustPrice(t, 0), mustPrice(t, -64)
	res, err := ComputeSwapStep(1000, 3000, uint128.Zero, p0, target, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NextSqrtPrice.Equals(target) || res.AmountIn != 0 || res.AmountOut != 0 || res.FeeAmount != 0 {
		t.Errorf("zero liquidity step = %+v", res)
	}
}

func TestNextSqrtPriceDirection(t *testing.T) {
	l := uint128.From64(1_000_000)
	p := mustPrice(t, 0)

	down, err := NextSqrtPrice(p, l, 1000, true, true)
	if err != nil || down.Cmp(p) >= 0 {
		t.Errorf("a to b input must lower the price: %s, %v", down, err)
	}
	up, err := NextSqrtPrice(p, l, 1000, true, false)
	if err != nil || up.Cmp(p) <= 0 {
		t.Errorf("b to a input must raise the price: %s, %v", up, err)
	}
	same, _ := NextSqrtPrice(p, l, 0, true, true)
	if !same.Equals(p) {
		t.Errorf("zero amount moved the price")
	}
}

func TestMulDiv64(t *testing.T) {
	tests := []struct {
		a, b, d uint64
		r       Rounding
		want    uint64
		wantErr bool
	}{
		{1000, 997000, 1_000_000, RoundDown, 997, false},
		{997, 3000, 997000, RoundUp, 3, false},
		{1, 1, 3, RoundUp, 1, false},
		{1, 1, 3, RoundDown, 0, false},
		{^uint64(0), 2, 1, RoundDown, 0, true},
		{1, 1, 0, RoundDown, 0, true},
	}

	for _, tt := range tests {
		got, err := MulDiv64(tt.a, tt.b, tt.d, tt.r)
		if (err != nil) != tt.wantErr {
			t.Errorf("MulDiv64(%d, %d, %d) error = %v", tt.a, tt.b, tt.d, err)
			continue
		}
		if got != tt.want {
			t.Errorf("MulDiv64(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.d, got, tt.want)
		}
	}
}

func TestMulDivRounding(t *testing.T) {
	got, err := MulDiv(uint128.From64(10), uint128.From64(10), uint128.From64(3), RoundUp)
	if err != nil || got.Cmp64(34) != 0 {
		t.Errorf("MulDiv round up = %s, %v", got, err)
	}
	got, err = MulDiv(uint128.Max, uint128.Max, uint128.Max, RoundDown)
	if err != nil || !got.Equals(uint128.Max) {
		t.Errorf("MulDiv(max, max, max) = %s, %v", got, err)
	}
	if _, err := MulDiv(uint128.Max, uint128.From64(2), uint128.From64(1), RoundDown); !errors.Is(err, errs.ErrArithmeticOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}
