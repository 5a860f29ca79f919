package engine

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// GetConfig reads a global config.
func (e *Engine) GetConfig(ctx context.Context, key solana.PublicKey) (*state.GlobalConfig, error) {
	return get(ctx, e, (*txn).config, key)
}

// GetFeeTier reads a fee tier.
func (e *Engine) GetFeeTier(ctx context.Context, key solana.PublicKey) (*state.FeeTier, error) {
	return get(ctx, e, (*txn).feeTier, key)
}

// GetPool reads a pool.
func (e *Engine) GetPool(ctx context.Context, key solana.PublicKey) (*state.Pool, error) {
	return get(ctx, e, (*txn).pool, key)
}

// GetPosition reads a position.
func (e *Engine) GetPosition(ctx context.Context, key solana.PublicKey) (*state.Position, error) {
	return get(ctx, e, (*txn).position, key)
}

// GetAdaptiveFeeTier reads an adaptive fee tier.
func (e *Engine) GetAdaptiveFeeTier(ctx context.Context, key solana.PublicKey) (*state.AdaptiveFeeTier, error) {
	return get(ctx, e, (*txn).adaptiveFeeTier, key)
}

// GetOracle reads the adaptive fee oracle of a pool.
func (e *Engine) GetOracle(ctx context.Context, pool solana.PublicKey) (*state.Oracle, error) {
	key, _, err := state.DeriveOracleAddress(pool)
	if err != nil {
		return nil, err
	}
	return get(ctx, e, (*txn).oracle, key)
}

// GetLock reads the lock of a position.
func (e *Engine) GetLock(ctx context.Context, position solana.PublicKey) (*state.Lock, error) {
	key, _, err := state.DeriveLockAddress(position)
	if err != nil {
		return nil, err
	}
	return get(ctx, e, (*txn).lock, key)
}

// GetTickArray reads the tick array of pool starting at start.
func (e *Engine) GetTickArray(ctx context.Context, pool solana.PublicKey, start int32) (*state.TickArray, error) {
	var arr *state.TickArray
	err := e.view(ctx, func(tx *txn) error {
		var err error
		_, arr, err = tx.tickArray(pool, start)
		return err
	})
	return arr, err
}

// GetTick reads one tick of a pool. Ticks in arrays that were never created
// read as uninitialized.
func (e *Engine) GetTick(ctx context.Context, poolKey solana.PublicKey, tickIndex int32) (state.Tick, error) {
	var t state.Tick
	err := e.view(ctx, func(tx *txn) error {
		pool, err := tx.pool(poolKey)
		if err != nil {
			return err
		}
		if !solvemath.IsUsableTick(tickIndex, pool.TickSpacing) {
			return errs.Newf(errs.ErrInvalidTickIndex, "tick %d with tick spacing %d", tickIndex, pool.TickSpacing)
		}
		_, arr, err := tx.tickArray(poolKey, solvemath.TickArrayStartIndex(tickIndex, pool.TickSpacing))
		if errors.Is(err, errs.ErrTickArrayNotFound) {
			t = state.Tick{}
			return nil
		}
		if err != nil {
			return err
		}
		t, err = arr.Tick(tickIndex, pool.TickSpacing)
		return err
	})
	return t, err
}

// ListPools returns the keys of every stored pool in key order.
func (e *Engine) ListPools(ctx context.Context) ([]solana.PublicKey, error) {
	return e.list(ctx, state.KindPool)
}

// ListPositions returns the positions of pool held by owner. A zero pool or
// owner matches any.
func (e *Engine) ListPositions(ctx context.Context, pool, owner solana.PublicKey) (map[solana.PublicKey]*state.Position, error) {
	keys, err := e.list(ctx, state.KindPosition)
	if err != nil {
		return nil, err
	}
	out := make(map[solana.PublicKey]*state.Position)
	err = e.view(ctx, func(tx *txn) error {
		for _, key := range keys {
			pos, err := tx.position(key)
			if err != nil {
				return err
			}
			if !pool.IsZero() && !pos.Pool.Equals(pool) {
				continue
			}
			if !owner.IsZero() && !pos.Owner.Equals(owner) {
				continue
			}
			out[key] = pos
		}
		return nil
	})
	return out, err
}

func (e *Engine) list(ctx context.Context, kind state.Kind) ([]solana.PublicKey, error) {
	keys, err := e.store.List(ctx, kind.Discriminator[:])
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys, nil
}

func get[R any](ctx context.Context, e *Engine, load func(*txn, solana.PublicKey) (R, error), key solana.PublicKey) (R, error) {
	var rec R
	err := e.view(ctx, func(tx *txn) error {
		var err error
		rec, err = load(tx, key)
		return err
	})
	return rec, err
}
