package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/state"
)

// Authorities are the roles held in a global config.
type Authorities struct {
	Fee                  solana.PublicKey
	CollectProtocolFees  solana.PublicKey
	RewardEmissionsSuper solana.PublicKey
}

// InitializeConfig creates the global config for namespace.
func (e *Engine) InitializeConfig(ctx context.Context, namespace string, auth Authorities, defaultProtocolFeeRate uint16) (solana.PublicKey, error) {
	key, _, err := state.DeriveConfigAddress(namespace)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.mutate(ctx, "initialize_config", []solana.PublicKey{key}, func(tx *txn) error {
		if found, err := tx.exists(key); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "config %q", namespace)
		}

		cfg := &state.GlobalConfig{
			FeeAuthority:                  auth.Fee,
			CollectProtocolFeesAuthority:  auth.CollectProtocolFees,
			RewardEmissionsSuperAuthority: auth.RewardEmissionsSuper,
		}
		copy(cfg.Namespace[:], namespace)
		if err := cfg.SetDefaultProtocolFeeRate(defaultProtocolFeeRate); err != nil {
			return err
		}
		tx.put(key, cfg)
		return nil
	})
	return key, err
}

// SetFeeAuthority hands the fee authority to next.
func (e *Engine) SetFeeAuthority(ctx context.Context, config, authority, next solana.PublicKey) error {
	return e.updateConfig(ctx, "set_fee_authority", config, func(cfg *state.GlobalConfig) error {
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		cfg.FeeAuthority = next
		return nil
	})
}

// SetCollectProtocolFeesAuthority hands the protocol fee collection role to next.
func (e *Engine) SetCollectProtocolFeesAuthority(ctx context.Context, config, authority, next solana.PublicKey) error {
	return e.updateConfig(ctx, "set_collect_protocol_fees_authority", config, func(cfg *state.GlobalConfig) error {
		if err := cfg.RequireCollectProtocolFeesAuthority(authority); err != nil {
			return err
		}
		cfg.CollectProtocolFeesAuthority = next
		return nil
	})
}

// SetRewardEmissionsSuperAuthority hands the reward super authority to next.
func (e *Engine) SetRewardEmissionsSuperAuthority(ctx context.Context, config, authority, next solana.PublicKey) error {
	return e.updateConfig(ctx, "set_reward_emissions_super_authority", config, func(cfg *state.GlobalConfig) error {
		if err := cfg.RequireRewardEmissionsSuperAuthority(authority); err != nil {
			return err
		}
		cfg.RewardEmissionsSuperAuthority = next
		return nil
	})
}

// SetDefaultProtocolFeeRate changes the protocol fee rate new pools start with.
func (e *Engine) SetDefaultProtocolFeeRate(ctx context.Context, config, authority solana.PublicKey, rate uint16) error {
	return e.updateConfig(ctx, "set_default_protocol_fee_rate", config, func(cfg *state.GlobalConfig) error {
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		return cfg.SetDefaultProtocolFeeRate(rate)
	})
}

func (e *Engine) updateConfig(ctx context.Context, op string, config solana.PublicKey, fn func(*state.GlobalConfig) error) error {
	return e.mutate(ctx, op, []solana.PublicKey{config}, func(tx *txn) error {
		cfg, err := tx.config(config)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		tx.put(config, cfg)
		return nil
	})
}

// CreateFeeTier registers the default fee rate for a tick spacing.
func (e *Engine) CreateFeeTier(ctx context.Context, config, authority solana.PublicKey, tickSpacing, defaultFeeRate uint16) (solana.PublicKey, error) {
	if tickSpacing == 0 {
		return solana.PublicKey{}, errs.Newf(errs.ErrInvalidTickSpacing, "tick spacing must be positive")
	}
	key, _, err := state.DeriveFeeTierAddress(config, tickSpacing)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.mutate(ctx, "create_fee_tier", []solana.PublicKey{config}, func(tx *txn) error {
		cfg, err := tx.config(config)
		if err != nil {
			return err
		}
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		if found, err := tx.exists(key); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "fee tier for tick spacing %d", tickSpacing)
		}

		tier := &state.FeeTier{Config: config, TickSpacing: tickSpacing}
		if err := tier.SetDefaultFeeRate(defaultFeeRate); err != nil {
			return err
		}
		tx.put(key, tier)
		return nil
	})
	return key, err
}

// SetDefaultFeeRate changes the fee rate of a tier. Existing pools keep theirs.
func (e *Engine) SetDefaultFeeRate(ctx context.Context, config, authority solana.PublicKey, tickSpacing, rate uint16) error {
	key, _, err := state.DeriveFeeTierAddress(config, tickSpacing)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "set_default_fee_rate", []solana.PublicKey{config}, func(tx *txn) error {
		cfg, err := tx.config(config)
		if err != nil {
			return err
		}
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		tier, err := tx.feeTier(key)
		if err != nil {
			return err
		}
		if err := tier.SetDefaultFeeRate(rate); err != nil {
			return err
		}
		tx.put(key, tier)
		return nil
	})
}

// AdaptiveFeeTierParams describes a new adaptive fee tier.
type AdaptiveFeeTierParams struct {
	// FeeTierIndex keys the tier and its pools. It must differ from
	// TickSpacing, which is the index of static tiers.
	FeeTierIndex uint16
	TickSpacing  uint16
	// InitializePoolAuthority, when set, is the only key allowed to create
	// pools from the tier.
	InitializePoolAuthority solana.PublicKey
	DelegatedFeeAuthority   solana.PublicKey
	DefaultBaseFeeRate      uint16
	Constants               state.AdaptiveFeeConstants
}

// InitializeAdaptiveFeeTier registers a fee tier whose pools charge a
// volatility fee on top of their base rate.
func (e *Engine) InitializeAdaptiveFeeTier(ctx context.Context, config, authority solana.PublicKey, p AdaptiveFeeTierParams) (solana.PublicKey, error) {
	if p.TickSpacing == 0 {
		return solana.PublicKey{}, errs.Newf(errs.ErrInvalidTickSpacing, "tick spacing must be positive")
	}
	if p.FeeTierIndex == p.TickSpacing {
		return solana.PublicKey{}, errs.Newf(errs.ErrInvalidFeeTierIndex, "index %d is reserved for the static tier of that spacing", p.FeeTierIndex)
	}
	key, _, err := state.DeriveFeeTierAddress(config, p.FeeTierIndex)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.mutate(ctx, "initialize_adaptive_fee_tier", []solana.PublicKey{config}, func(tx *txn) error {
		cfg, err := tx.config(config)
		if err != nil {
			return err
		}
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		if found, err := tx.exists(key); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "fee tier with index %d", p.FeeTierIndex)
		}

		tier := &state.AdaptiveFeeTier{
			Config:                  config,
			FeeTierIndex:            p.FeeTierIndex,
			TickSpacing:             p.TickSpacing,
			InitializePoolAuthority: p.InitializePoolAuthority,
			DelegatedFeeAuthority:   p.DelegatedFeeAuthority,
		}
		if err := tier.SetDefaultBaseFeeRate(p.DefaultBaseFeeRate); err != nil {
			return err
		}
		if err := tier.SetConstants(p.Constants); err != nil {
			return err
		}
		tx.put(key, tier)
		return nil
	})
	return key, err
}

// SetDefaultBaseFeeRate changes the base rate new pools of an adaptive tier
// start with.
func (e *Engine) SetDefaultBaseFeeRate(ctx context.Context, config, authority solana.PublicKey, feeTierIndex, rate uint16) error {
	return e.updateAdaptiveFeeTier(ctx, "set_default_base_fee_rate", config, authority, feeTierIndex, func(tier *state.AdaptiveFeeTier) error {
		return tier.SetDefaultBaseFeeRate(rate)
	})
}

// SetDelegatedFeeAuthority changes who may set the fee rate of the tier's pools.
func (e *Engine) SetDelegatedFeeAuthority(ctx context.Context, config, authority solana.PublicKey, feeTierIndex uint16, next solana.PublicKey) error {
	return e.updateAdaptiveFeeTier(ctx, "set_delegated_fee_authority", config, authority, feeTierIndex, func(tier *state.AdaptiveFeeTier) error {
		tier.DelegatedFeeAuthority = next
		return nil
	})
}

// SetInitializePoolAuthority changes who may create pools from the tier. The
// zero key opens the tier to everyone.
func (e *Engine) SetInitializePoolAuthority(ctx context.Context, config, authority solana.PublicKey, feeTierIndex uint16, next solana.PublicKey) error {
	return e.updateAdaptiveFeeTier(ctx, "set_initialize_pool_authority", config, authority, feeTierIndex, func(tier *state.AdaptiveFeeTier) error {
		tier.InitializePoolAuthority = next
		return nil
	})
}

// SetAdaptiveFeeConstants changes the constants given to new pools of the
// tier. Existing oracles keep theirs.
func (e *Engine) SetAdaptiveFeeConstants(ctx context.Context, config, authority solana.PublicKey, feeTierIndex uint16, c state.AdaptiveFeeConstants) error {
	return e.updateAdaptiveFeeTier(ctx, "set_adaptive_fee_constants", config, authority, feeTierIndex, func(tier *state.AdaptiveFeeTier) error {
		return tier.SetConstants(c)
	})
}

func (e *Engine) updateAdaptiveFeeTier(ctx context.Context, op string, config, authority solana.PublicKey, feeTierIndex uint16, fn func(*state.AdaptiveFeeTier) error) error {
	key, _, err := state.DeriveFeeTierAddress(config, feeTierIndex)
	if err != nil {
		return err
	}
	return e.mutate(ctx, op, []solana.PublicKey{config}, func(tx *txn) error {
		cfg, err := tx.config(config)
		if err != nil {
			return err
		}
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		tier, err := tx.adaptiveFeeTier(key)
		if err != nil {
			return err
		}
		if err := fn(tier); err != nil {
			return err
		}
		tx.put(key, tier)
		return nil
	})
}
