package engine

import (
	"bytes"
	"context"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// InitializePoolParams describes a new pool.
type InitializePoolParams struct {
	Config           solana.PublicKey
	TokenMintA       solana.PublicKey
	TokenMintB       solana.PublicKey
	TickSpacing      uint16
	InitialSqrtPrice uint128.Uint128
}

// InitializePool creates a pool for a mint pair under a fee tier. Mint A must
// sort before mint B.
func (e *Engine) InitializePool(ctx context.Context, p InitializePoolParams) (solana.PublicKey, error) {
	tick, err := initialTick(p.TokenMintA, p.TokenMintB, p.InitialSqrtPrice)
	if err != nil {
		return solana.PublicKey{}, err
	}
	key, bump, err := state.DerivePoolAddress(p.Config, p.TokenMintA, p.TokenMintB, p.TickSpacing)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tierKey, _, err := state.DeriveFeeTierAddress(p.Config, p.TickSpacing)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.mutate(ctx, "initialize_pool", []solana.PublicKey{key}, func(tx *txn) error {
		tier, err := tx.feeTier(tierKey)
		if err != nil {
			return err
		}
		_, err = createPool(tx, key, bump, p, p.TickSpacing, tier.DefaultFeeRate, tick)
		return err
	})
	return key, err
}

// InitializeAdaptivePoolParams describes a new pool under an adaptive fee tier.
type InitializeAdaptivePoolParams struct {
	Config           solana.PublicKey
	TokenMintA       solana.PublicKey
	TokenMintB       solana.PublicKey
	FeeTierIndex     uint16
	InitialSqrtPrice uint128.Uint128
	// Authority must hold the tier's initialize pool authority when the tier
	// is permissioned.
	Authority solana.PublicKey
	// TradeEnableTimestamp delays the first swap. Zero allows trading at once.
	TradeEnableTimestamp uint64
}

// InitializePoolWithAdaptiveFee creates a pool and its oracle from an
// adaptive fee tier.
func (e *Engine) InitializePoolWithAdaptiveFee(ctx context.Context, p InitializeAdaptivePoolParams) (solana.PublicKey, error) {
	tick, err := initialTick(p.TokenMintA, p.TokenMintB, p.InitialSqrtPrice)
	if err != nil {
		return solana.PublicKey{}, err
	}
	key, bump, err := state.DerivePoolAddress(p.Config, p.TokenMintA, p.TokenMintB, p.FeeTierIndex)
	if err != nil {
		return solana.PublicKey{}, err
	}
	tierKey, _, err := state.DeriveFeeTierAddress(p.Config, p.FeeTierIndex)
	if err != nil {
		return solana.PublicKey{}, err
	}
	oracleKey, _, err := state.DeriveOracleAddress(key)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = e.mutate(ctx, "initialize_pool_with_adaptive_fee", []solana.PublicKey{key}, func(tx *txn) error {
		tier, err := tx.adaptiveFeeTier(tierKey)
		if err != nil {
			return err
		}
		if err := tier.RequireInitializePoolAuthority(p.Authority); err != nil {
			return err
		}
		if err := tier.ValidateTradeEnableTimestamp(p.TradeEnableTimestamp, tx.now); err != nil {
			return err
		}

		base := InitializePoolParams{
			Config:           p.Config,
			TokenMintA:       p.TokenMintA,
			TokenMintB:       p.TokenMintB,
			TickSpacing:      tier.TickSpacing,
			InitialSqrtPrice: p.InitialSqrtPrice,
		}
		if _, err := createPool(tx, key, bump, base, p.FeeTierIndex, tier.DefaultBaseFeeRate, tick); err != nil {
			return err
		}

		oracle := &state.Oracle{Pool: key, TradeEnableTimestamp: p.TradeEnableTimestamp}
		if err := oracle.SetConstants(tier.Constants, tier.TickSpacing); err != nil {
			return err
		}
		tx.put(oracleKey, oracle)
		return nil
	})
	return key, err
}

func initialTick(mintA, mintB solana.PublicKey, sqrtPrice uint128.Uint128) (int32, error) {
	if bytes.Compare(mintA[:], mintB[:]) >= 0 {
		return 0, errs.ErrInvalidTokenMintOrder
	}
	if !solvemath.IsValidSqrtPrice(sqrtPrice) {
		return 0, errs.Newf(errs.ErrInvalidSqrtPrice, "initial sqrt price %s", sqrtPrice)
	}
	return solvemath.TickFromSqrtPrice(sqrtPrice)
}

// createPool stages a new pool at key and emits its creation.
func createPool(tx *txn, key solana.PublicKey, bump uint8, p InitializePoolParams, feeTierIndex, feeRate uint16, tick int32) (*state.Pool, error) {
	cfg, err := tx.config(p.Config)
	if err != nil {
		return nil, err
	}
	if found, err := tx.exists(key); err != nil {
		return nil, err
	} else if found {
		return nil, errs.Newf(errs.ErrAlreadyExists, "pool %s", key)
	}

	pool := &state.Pool{
		Config:                     p.Config,
		Bump:                       bump,
		TokenMintA:                 p.TokenMintA,
		TokenMintB:                 p.TokenMintB,
		TickSpacing:                p.TickSpacing,
		FeeTierIndex:               feeTierIndex,
		SqrtPrice:                  p.InitialSqrtPrice,
		TickCurrentIndex:           tick,
		RewardLastUpdatedTimestamp: tx.now,
	}
	if err := pool.SetFeeRate(feeRate); err != nil {
		return nil, err
	}
	if err := pool.SetProtocolFeeRate(cfg.DefaultProtocolFeeRate); err != nil {
		return nil, err
	}
	for i := range pool.RewardInfos {
		pool.RewardInfos[i].Authority = cfg.RewardEmissionsSuperAuthority
	}
	tx.put(key, pool)

	tx.emit(events.TypePoolInitialized, key, solana.PublicKey{}, events.PoolInitialized{
		Config:          p.Config.String(),
		TokenMintA:      p.TokenMintA.String(),
		TokenMintB:      p.TokenMintB.String(),
		TickSpacing:     p.TickSpacing,
		FeeTierIndex:    feeTierIndex,
		FeeRate:         pool.FeeRate,
		ProtocolFeeRate: pool.ProtocolFeeRate,
		SqrtPrice:       p.InitialSqrtPrice.String(),
		Tick:            tick,
	})
	return pool, nil
}

// InitializeTickArray creates the empty tick array of a pool starting at start.
func (e *Engine) InitializeTickArray(ctx context.Context, poolKey solana.PublicKey, start int32) (solana.PublicKey, error) {
	key, _, err := state.DeriveTickArrayAddress(poolKey, start)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = e.mutate(ctx, "initialize_tick_array", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		if found, err := tx.exists(key); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "tick array %d of pool %s", start, poolKey)
		}
		arr, err := state.NewTickArray(poolKey, start, pool.TickSpacing)
		if err != nil {
			return err
		}
		tx.put(key, arr)
		return nil
	})
	return key, err
}

// SetFeeRate changes a pool's trading fee rate.
func (e *Engine) SetFeeRate(ctx context.Context, poolKey, authority solana.PublicKey, rate uint16) error {
	return e.updatePoolAsFeeAuthority(ctx, "set_fee_rate", poolKey, authority, func(pool *state.Pool) error {
		return pool.SetFeeRate(rate)
	})
}

// SetProtocolFeeRate changes a pool's protocol fee rate.
func (e *Engine) SetProtocolFeeRate(ctx context.Context, poolKey, authority solana.PublicKey, rate uint16) error {
	return e.updatePoolAsFeeAuthority(ctx, "set_protocol_fee_rate", poolKey, authority, func(pool *state.Pool) error {
		return pool.SetProtocolFeeRate(rate)
	})
}

// SetFeeRateByDelegatedFeeAuthority changes the base fee rate of an adaptive
// pool on behalf of its tier's delegated fee authority.
func (e *Engine) SetFeeRateByDelegatedFeeAuthority(ctx context.Context, poolKey, authority solana.PublicKey, rate uint16) error {
	return e.mutate(ctx, "set_fee_rate_by_delegated_fee_authority", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		if !pool.HasAdaptiveFeeTier() {
			return errs.Newf(errs.ErrNotAdaptiveFeePool, "pool %s", poolKey)
		}
		tierKey, _, err := state.DeriveFeeTierAddress(pool.Config, pool.FeeTierIndex)
		if err != nil {
			return err
		}
		tier, err := tx.adaptiveFeeTier(tierKey)
		if err != nil {
			return err
		}
		if err := tier.RequireDelegatedFeeAuthority(authority); err != nil {
			return err
		}
		if err := pool.SetFeeRate(rate); err != nil {
			return err
		}
		tx.put(poolKey, pool)
		return nil
	})
}

func (e *Engine) updatePoolAsFeeAuthority(ctx context.Context, op string, poolKey, authority solana.PublicKey, fn func(*state.Pool) error) error {
	return e.mutate(ctx, op, []solana.PublicKey{poolKey}, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		cfg, err := tx.config(pool.Config)
		if err != nil {
			return err
		}
		if err := cfg.RequireFeeAuthority(authority); err != nil {
			return err
		}
		if err := fn(pool); err != nil {
			return err
		}
		tx.put(poolKey, pool)
		return nil
	})
}

// CollectProtocolFees pays out and zeroes the protocol's accumulated fees.
func (e *Engine) CollectProtocolFees(ctx context.Context, poolKey, authority solana.PublicKey) (solvemath.TokenAmounts, error) {
	var out solvemath.TokenAmounts
	err := e.mutate(ctx, "collect_protocol_fees", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		cfg, err := tx.config(pool.Config)
		if err != nil {
			return err
		}
		if err := cfg.RequireCollectProtocolFeesAuthority(authority); err != nil {
			return err
		}

		out = solvemath.TokenAmounts{A: pool.ProtocolFeeOwedA, B: pool.ProtocolFeeOwedB}
		if err := withdraw(pool, out); err != nil {
			return err
		}
		pool.ProtocolFeeOwedA, pool.ProtocolFeeOwedB = 0, 0
		tx.put(poolKey, pool)

		tx.emit(events.TypeProtocolFeesCollected, poolKey, solana.PublicKey{}, events.FeesCollected{AmountA: out.A, AmountB: out.B})
		return nil
	})
	return out, err
}

// deposit adds amounts to the pool vaults.
func deposit(pool *state.Pool, amounts solvemath.TokenAmounts) error {
	a, err := solvemath.Add64(pool.VaultA, amounts.A)
	if err != nil {
		return err
	}
	b, err := solvemath.Add64(pool.VaultB, amounts.B)
	if err != nil {
		return err
	}
	pool.VaultA, pool.VaultB = a, b
	return nil
}

// withdraw removes amounts from the pool vaults.
func withdraw(pool *state.Pool, amounts solvemath.TokenAmounts) error {
	a, err := solvemath.Sub64(pool.VaultA, amounts.A)
	if err != nil {
		return err
	}
	b, err := solvemath.Sub64(pool.VaultB, amounts.B)
	if err != nil {
		return err
	}
	pool.VaultA, pool.VaultB = a, b
	return nil
}
