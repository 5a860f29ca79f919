package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// InitializeReward registers mint as the reward of slot index. Only the
// slot's reward authority may do so, and slots are filled in order.
func (e *Engine) InitializeReward(ctx context.Context, poolKey, authority solana.PublicKey, index int, mint solana.PublicKey) error {
	return e.updatePool(ctx, "initialize_reward", poolKey, func(tx *txn, pool *state.Pool) error {
		if err := requireRewardAuthority(pool, index, authority); err != nil {
			return err
		}
		return pool.InitializeReward(index, mint)
	})
}

// FundReward deposits amount into the vault of reward slot index.
func (e *Engine) FundReward(ctx context.Context, poolKey solana.PublicKey, index int, amount uint64) error {
	return e.updatePool(ctx, "fund_reward", poolKey, func(tx *txn, pool *state.Pool) error {
		info, err := pool.RewardInfo(index)
		if err != nil {
			return err
		}
		if amount == 0 {
			return errs.ErrZeroAmount
		}
		info.VaultBalance, err = solvemath.Add64(info.VaultBalance, amount)
		return err
	})
}

// SetRewardEmissions changes the emission rate of reward slot index. Growth
// up to now is credited at the old rate.
func (e *Engine) SetRewardEmissions(ctx context.Context, poolKey, authority solana.PublicKey, index int, emissionsPerSecondX64 uint128.Uint128) error {
	return e.updatePool(ctx, "set_reward_emissions", poolKey, func(tx *txn, pool *state.Pool) error {
		if err := requireRewardAuthority(pool, index, authority); err != nil {
			return err
		}
		if err := pool.UpdateRewards(tx.now); err != nil {
			return err
		}
		return pool.SetRewardEmissions(index, emissionsPerSecondX64)
	})
}

// SetRewardAuthority hands slot index's reward authority to next.
func (e *Engine) SetRewardAuthority(ctx context.Context, poolKey, authority solana.PublicKey, index int, next solana.PublicKey) error {
	return e.updatePool(ctx, "set_reward_authority", poolKey, func(tx *txn, pool *state.Pool) error {
		if err := requireRewardAuthority(pool, index, authority); err != nil {
			return err
		}
		pool.RewardInfos[index].Authority = next
		return nil
	})
}

// SetRewardAuthorityBySuperAuthority lets the config's reward emissions super
// authority reassign any slot's reward authority.
func (e *Engine) SetRewardAuthorityBySuperAuthority(ctx context.Context, poolKey, superAuthority solana.PublicKey, index int, next solana.PublicKey) error {
	return e.updatePool(ctx, "set_reward_authority_by_super_authority", poolKey, func(tx *txn, pool *state.Pool) error {
		cfg, err := tx.config(pool.Config)
		if err != nil {
			return err
		}
		if err := cfg.RequireRewardEmissionsSuperAuthority(superAuthority); err != nil {
			return err
		}
		if index < 0 || index >= state.NumRewards {
			return errs.ErrInvalidRewardIndex
		}
		pool.RewardInfos[index].Authority = next
		return nil
	})
}

func (e *Engine) updatePool(ctx context.Context, op string, poolKey solana.PublicKey, fn func(*txn, *state.Pool) error) error {
	return e.mutate(ctx, op, []solana.PublicKey{poolKey}, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		if err := fn(tx, pool); err != nil {
			return err
		}
		tx.put(poolKey, pool)
		return nil
	})
}

func requireRewardAuthority(pool *state.Pool, index int, authority solana.PublicKey) error {
	if index < 0 || index >= state.NumRewards {
		return errs.ErrInvalidRewardIndex
	}
	if !pool.RewardInfos[index].Authority.Equals(authority) {
		return errs.Newf(errs.ErrUnauthorized, "%s is not the reward authority of slot %d", authority, index)
	}
	return nil
}
