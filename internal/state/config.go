package state

import (
	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/money"
)

// GlobalConfig holds the authorities shared by every pool under one namespace.
type GlobalConfig struct {
	Header Header

	Namespace                     [32]byte
	FeeAuthority                  solana.PublicKey
	CollectProtocolFeesAuthority  solana.PublicKey
	RewardEmissionsSuperAuthority solana.PublicKey
	DefaultProtocolFeeRate        uint16
}

func (c *GlobalConfig) Kind() Kind       { return KindGlobalConfig }
func (c *GlobalConfig) header() *Header { return &c.Header }

// RequireFeeAuthority fails unless authority holds the fee authority.
func (c *GlobalConfig) RequireFeeAuthority(authority solana.PublicKey) error {
	return requireAuthority(c.FeeAuthority, authority, "fee authority")
}

// RequireCollectProtocolFeesAuthority fails unless authority may collect protocol fees.
func (c *GlobalConfig) RequireCollectProtocolFeesAuthority(authority solana.PublicKey) error {
	return requireAuthority(c.CollectProtocolFeesAuthority, authority, "collect protocol fees authority")
}

// RequireRewardEmissionsSuperAuthority fails unless authority is the reward super authority.
func (c *GlobalConfig) RequireRewardEmissionsSuperAuthority(authority solana.PublicKey) error {
	return requireAuthority(c.RewardEmissionsSuperAuthority, authority, "reward emissions super authority")
}

// SetDefaultProtocolFeeRate validates and stores the rate given to new pools.
func (c *GlobalConfig) SetDefaultProtocolFeeRate(rate uint16) error {
	if err := money.ProtocolFeeRate(rate).Validate(); err != nil {
		return err
	}
	c.DefaultProtocolFeeRate = rate
	return nil
}

// FeeTier maps a tick spacing to the default fee rate of new pools.
type FeeTier struct {
	Header Header

	Config         solana.PublicKey
	TickSpacing    uint16
	DefaultFeeRate uint16
}

func (t *FeeTier) Kind() Kind       { return KindFeeTier }
func (t *FeeTier) header() *Header { return &t.Header }

// SetDefaultFeeRate validates and stores the default fee rate.
func (t *FeeTier) SetDefaultFeeRate(rate uint16) error {
	if err := money.FeeRate(rate).Validate(); err != nil {
		return err
	}
	t.DefaultFeeRate = rate
	return nil
}

func requireAuthority(want, got solana.PublicKey, role string) error {
	if !want.Equals(got) {
		return errs.Newf(errs.ErrUnauthorized, "%s is not the %s", got, role)
	}
	return nil
}
