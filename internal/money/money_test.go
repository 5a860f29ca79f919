package money

import (
	"errors"
	"testing"

	"github.com/solve3fi/contracts/internal/errs"
)

func TestSwapFeeRateSplit(t *testing.T) {
	tests := []struct {
		name    string
		rate    SwapFeeRate
		amount  uint64
		wantNet uint64
		wantFee uint64
	}{
		{"0.3% of 1000", 3000, 1000, 997, 3},
		{"0.3% of 1", 3000, 1, 0, 1},
		{"0.01% of 1000000", 100, 1_000_000, 999_900, 100},
		{"zero rate", 0, 1000, 1000, 0},
		{"max stored rate", SwapFeeRate(MaxFeeRate), 1000, 940, 60},
		{"hard limit", FeeRateHardLimit, 1000, 900, 100},
		{"above hard limit is capped", 250_000, 1000, 900, 100},
		{"large amount", 3000, ^uint64(0), 18391403841488422960, 55340232221128655},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee := tt.rate.Split(tt.amount)
			if net != tt.wantNet || fee != tt.wantFee {
				t.Errorf("got (%d, %d), want (%d, %d)", net, fee, tt.wantNet, tt.wantFee)
			}
			if net+fee != tt.amount {
				t.Errorf("split does not conserve amount")
			}
		})
	}
}

func TestSwapFeeRateFeeOnNet(t *testing.T) {
	tests := []struct {
		rate SwapFeeRate
		net  uint64
		want uint64
	}{
		{3000, 997, 3},
		{3000, 3204965, 9644},
		{3000, 1, 1},
		{0, 1000, 0},
		{FeeRateHardLimit, 900, 100},
		{FeeRateHardLimit, ^uint64(0), 2049638230412172402},
	}

	for _, tt := range tests {
		if got := tt.rate.FeeOnNet(tt.net); got != tt.want {
			t.Errorf("SwapFeeRate(%d).FeeOnNet(%d) = %d, want %d", tt.rate, tt.net, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"fee rate at max", MaxFeeRate.Validate(), false},
		{"fee rate above max", (MaxFeeRate + 1).Validate(), true},
		{"protocol rate at max", MaxProtocolFeeRate.Validate(), false},
		{"protocol rate above max", (MaxProtocolFeeRate + 1).Validate(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", tt.err, tt.wantErr)
			}
			if tt.err != nil && !errors.Is(tt.err, errs.ErrInvalidParameter) {
				t.Errorf("error %v is not an invalid parameter", tt.err)
			}
		})
	}

	if !errors.Is((MaxFeeRate + 1).Validate(), errs.ErrInvalidFeeRate) {
		t.Error("fee rate error must be ErrInvalidFeeRate")
	}
}

func TestProtocolFeeRateShare(t *testing.T) {
	tests := []struct {
		rate ProtocolFeeRate
		fee  uint64
		want uint64
	}{
		{300, 1000, 30},
		{300, 3, 0},
		{2500, 9644, 2411},
		{0, 1000, 0},
	}

	for _, tt := range tests {
		if got := tt.rate.Share(tt.fee); got != tt.want {
			t.Errorf("ProtocolFeeRate(%d).Share(%d) = %d, want %d", tt.rate, tt.fee, got, tt.want)
		}
	}
}

func TestFormatting(t *testing.T) {
	if got := FeeRate(3000).String(); got != "3000/1000000" {
		t.Errorf("String() = %q", got)
	}
	if got := ProtocolFeeRate(300).String(); got != "300 bps" {
		t.Errorf("String() = %q", got)
	}
}
