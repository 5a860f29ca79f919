package engine

import (
	"context"
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

// NoTokenLimit disables a TokenMax guard.
const NoTokenLimit = math.MaxUint64

// OpenPositionParams describes a new position.
type OpenPositionParams struct {
	Pool         solana.PublicKey
	PositionMint solana.PublicKey
	Owner        solana.PublicKey
	TickLower    int32
	TickUpper    int32
}

// OpenPosition creates an empty position over [TickLower, TickUpper).
func (e *Engine) OpenPosition(ctx context.Context, p OpenPositionParams) (solana.PublicKey, error) {
	key, _, err := state.DerivePositionAddress(p.PositionMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = e.mutate(ctx, "open_position", []solana.PublicKey{p.Pool}, func(tx *txn) error {
		pool, err := tx.pool(p.Pool)
		if err != nil {
			return err
		}
		if err := pool.ValidateTickRange(p.TickLower, p.TickUpper); err != nil {
			return err
		}
		if found, err := tx.exists(key); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "position for mint %s", p.PositionMint)
		}

		tx.put(key, &state.Position{
			Pool:           p.Pool,
			PositionMint:   p.PositionMint,
			Owner:          p.Owner,
			TickLowerIndex: p.TickLower,
			TickUpperIndex: p.TickUpper,
		})
		tx.emit(events.TypePositionOpened, p.Pool, key, events.PositionOpened{
			Owner:        p.Owner.String(),
			PositionMint: p.PositionMint.String(),
			TickLower:    p.TickLower,
			TickUpper:    p.TickUpper,
		})
		return nil
	})
	return key, err
}

// IncreaseLiquidityParams adds liquidity to a position. The deposit fails if
// it needs more than TokenMaxA or TokenMaxB.
type IncreaseLiquidityParams struct {
	Position  solana.PublicKey
	Owner     solana.PublicKey
	Liquidity uint128.Uint128
	TokenMaxA uint64
	TokenMaxB uint64
}

// DecreaseLiquidityParams removes liquidity from a position. The withdrawal
// fails if it pays less than TokenMinA or TokenMinB.
type DecreaseLiquidityParams struct {
	Position  solana.PublicKey
	Owner     solana.PublicKey
	Liquidity uint128.Uint128
	TokenMinA uint64
	TokenMinB uint64
}

// IncreaseLiquidity deposits liquidity and returns the tokens it took.
func (e *Engine) IncreaseLiquidity(ctx context.Context, p IncreaseLiquidityParams) (solvemath.TokenAmounts, error) {
	poolKey, err := e.positionPool(ctx, p.Position)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}

	var out solvemath.TokenAmounts
	err = e.mutate(ctx, "increase_liquidity", []solana.PublicKey{poolKey}, func(tx *txn) error {
		out, err = e.increaseLiquidity(tx, p)
		return err
	})
	if err == nil {
		e.metrics.RecordLiquidityChange(ctx, poolKey.String(), true)
	}
	return out, err
}

// IncreaseLiquidityByTokenAmounts deposits the largest liquidity that maxA
// and maxB can fund at the current price.
func (e *Engine) IncreaseLiquidityByTokenAmounts(ctx context.Context, position, owner solana.PublicKey, maxA, maxB uint64) (uint128.Uint128, solvemath.TokenAmounts, error) {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return uint128.Zero, solvemath.TokenAmounts{}, err
	}

	var (
		liquidity uint128.Uint128
		out       solvemath.TokenAmounts
	)
	err = e.mutate(ctx, "increase_liquidity", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		pool, err := tx.pool(pos.Pool)
		if err != nil {
			return err
		}
		liquidity, err = solvemath.LiquidityFromTokenAmounts(pool.TickCurrentIndex, pool.SqrtPrice, pos.TickLowerIndex, pos.TickUpperIndex, maxA, maxB)
		if err != nil {
			return err
		}
		out, err = e.increaseLiquidity(tx, IncreaseLiquidityParams{
			Position:  position,
			Owner:     owner,
			Liquidity: liquidity,
			TokenMaxA: maxA,
			TokenMaxB: maxB,
		})
		return err
	})
	if err == nil {
		e.metrics.RecordLiquidityChange(ctx, poolKey.String(), true)
	}
	return liquidity, out, err
}

func (e *Engine) increaseLiquidity(tx *txn, p IncreaseLiquidityParams) (solvemath.TokenAmounts, error) {
	if p.Liquidity.IsZero() {
		return solvemath.TokenAmounts{}, errs.ErrZeroLiquidity
	}
	delta, err := solvemath.ConvertToLiquidityDelta(p.Liquidity, true)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}
	m, err := e.modifyLiquidity(tx, p.Position, p.Owner, delta)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}
	if m.amounts.A > p.TokenMaxA {
		return solvemath.TokenAmounts{}, errs.Newf(errs.ErrTokenMaxExceeded, "token A needs %d, max %d", m.amounts.A, p.TokenMaxA)
	}
	if m.amounts.B > p.TokenMaxB {
		return solvemath.TokenAmounts{}, errs.Newf(errs.ErrTokenMaxExceeded, "token B needs %d, max %d", m.amounts.B, p.TokenMaxB)
	}
	if err := deposit(m.pool, m.amounts); err != nil {
		return solvemath.TokenAmounts{}, err
	}
	m.stage(tx)

	tx.emit(events.TypeLiquidityIncreased, m.position.Pool, p.Position, events.LiquidityChanged{
		TickLower: m.position.TickLowerIndex,
		TickUpper: m.position.TickUpperIndex,
		Liquidity: p.Liquidity.String(),
		AmountA:   m.amounts.A,
		AmountB:   m.amounts.B,
	})
	return m.amounts, nil
}

// DecreaseLiquidity withdraws liquidity and returns the tokens paid out.
func (e *Engine) DecreaseLiquidity(ctx context.Context, p DecreaseLiquidityParams) (solvemath.TokenAmounts, error) {
	if p.Liquidity.IsZero() {
		return solvemath.TokenAmounts{}, errs.ErrZeroLiquidity
	}
	delta, err := solvemath.ConvertToLiquidityDelta(p.Liquidity, false)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}
	poolKey, err := e.positionPool(ctx, p.Position)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}

	var out solvemath.TokenAmounts
	err = e.mutate(ctx, "decrease_liquidity", []solana.PublicKey{poolKey}, func(tx *txn) error {
		if err := requireUnlocked(tx, p.Position); err != nil {
			return err
		}
		m, err := e.modifyLiquidity(tx, p.Position, p.Owner, delta)
		if err != nil {
			return err
		}
		if m.amounts.A < p.TokenMinA {
			return errs.Newf(errs.ErrTokenMinSubceeded, "token A pays %d, min %d", m.amounts.A, p.TokenMinA)
		}
		if m.amounts.B < p.TokenMinB {
			return errs.Newf(errs.ErrTokenMinSubceeded, "token B pays %d, min %d", m.amounts.B, p.TokenMinB)
		}
		if err := withdraw(m.pool, m.amounts); err != nil {
			return err
		}
		m.stage(tx)
		out = m.amounts

		tx.emit(events.TypeLiquidityDecreased, m.position.Pool, p.Position, events.LiquidityChanged{
			TickLower: m.position.TickLowerIndex,
			TickUpper: m.position.TickUpperIndex,
			Liquidity: p.Liquidity.String(),
			AmountA:   m.amounts.A,
			AmountB:   m.amounts.B,
		})
		return nil
	})
	if err == nil {
		e.metrics.RecordLiquidityChange(ctx, poolKey.String(), false)
	}
	return out, err
}

// UpdateFeesAndRewards credits a position with the fees and rewards earned
// since its last update. The position must hold liquidity.
func (e *Engine) UpdateFeesAndRewards(ctx context.Context, position solana.PublicKey) error {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "update_fees_and_rewards", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if pos.Liquidity.IsZero() {
			return errs.ErrZeroLiquidity
		}
		return e.accrue(tx, position, pos)
	})
}

// CollectFees pays out and zeroes the fees owed to a position.
func (e *Engine) CollectFees(ctx context.Context, position, owner solana.PublicKey) (solvemath.TokenAmounts, error) {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return solvemath.TokenAmounts{}, err
	}

	var out solvemath.TokenAmounts
	err = e.mutate(ctx, "collect_fees", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		if !pos.Liquidity.IsZero() {
			if err := e.accrue(tx, position, pos); err != nil {
				return err
			}
		}
		pool, err := tx.pool(pos.Pool)
		if err != nil {
			return err
		}

		out = solvemath.TokenAmounts{A: pos.FeeOwedA, B: pos.FeeOwedB}
		if err := withdraw(pool, out); err != nil {
			return err
		}
		pos.FeeOwedA, pos.FeeOwedB = 0, 0
		tx.put(position, pos)
		tx.put(pos.Pool, pool)

		tx.emit(events.TypeFeesCollected, pos.Pool, position, events.FeesCollected{AmountA: out.A, AmountB: out.B})
		return nil
	})
	return out, err
}

// CollectReward pays out a position's owed reward, up to what the reward
// vault holds. Whatever the vault cannot cover stays owed.
func (e *Engine) CollectReward(ctx context.Context, position, owner solana.PublicKey, index int) (uint64, error) {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return 0, err
	}

	var paid uint64
	err = e.mutate(ctx, "collect_reward", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		pool, err := tx.pool(pos.Pool)
		if err != nil {
			return err
		}
		info, err := pool.RewardInfo(index)
		if err != nil {
			return err
		}
		if !pos.Liquidity.IsZero() {
			if err := e.accrue(tx, position, pos); err != nil {
				return err
			}
		}

		owed := &pos.RewardInfos[index].AmountOwed
		paid = min(*owed, info.VaultBalance)
		*owed -= paid
		info.VaultBalance -= paid
		tx.put(position, pos)
		tx.put(pos.Pool, pool)

		tx.emit(events.TypeRewardCollected, pos.Pool, position, events.RewardCollected{
			Index:  index,
			Mint:   info.Mint.String(),
			Amount: paid,
		})
		return nil
	})
	return paid, err
}

// ClosePosition deletes a position that holds no liquidity and owes nothing.
func (e *Engine) ClosePosition(ctx context.Context, position, owner solana.PublicKey) error {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "close_position", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		if err := requireUnlocked(tx, position); err != nil {
			return err
		}
		if !pos.IsEmpty() {
			return errs.ErrPositionNotEmpty
		}
		tx.del(position)
		tx.emit(events.TypePositionClosed, pos.Pool, position, events.PositionClosed{Owner: owner.String()})
		return nil
	})
}

// ResetPositionRange moves an empty position to a new tick range.
func (e *Engine) ResetPositionRange(ctx context.Context, position, owner solana.PublicKey, lower, upper int32) error {
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "reset_position_range", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		if err := requireUnlocked(tx, position); err != nil {
			return err
		}
		pool, err := tx.pool(pos.Pool)
		if err != nil {
			return err
		}
		if err := pool.ValidateTickRange(lower, upper); err != nil {
			return err
		}
		if err := pos.ResetRange(lower, upper); err != nil {
			return err
		}
		tx.put(position, pos)
		return nil
	})
}

// LockPosition permanently locks a position's liquidity. Fees and rewards
// stay collectable and liquidity may still be added, but the position can
// no longer be decreased, reset or closed.
func (e *Engine) LockPosition(ctx context.Context, position, owner solana.PublicKey) (solana.PublicKey, error) {
	lockKey, _, err := state.DeriveLockAddress(position)
	if err != nil {
		return solana.PublicKey{}, err
	}
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return solana.PublicKey{}, err
	}
	err = e.mutate(ctx, "lock_position", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		if pos.Liquidity.IsZero() {
			return errs.ErrPositionNotLockable
		}
		if found, err := tx.exists(lockKey); err != nil {
			return err
		} else if found {
			return errs.Newf(errs.ErrAlreadyExists, "position %s is already locked", position)
		}

		lock := &state.Lock{
			Position:        position,
			PositionOwner:   owner,
			Pool:            pos.Pool,
			LockedTimestamp: tx.now,
			LockType:        state.LockPermanent,
		}
		tx.put(lockKey, lock)
		tx.emit(events.TypePositionLocked, pos.Pool, position, events.PositionLocked{
			Owner:    owner.String(),
			LockType: lock.LockType.String(),
		})
		return nil
	})
	return lockKey, err
}

// TransferPosition hands a position to a new owner. A locked position
// carries its lock along.
func (e *Engine) TransferPosition(ctx context.Context, position, owner, newOwner solana.PublicKey) error {
	if newOwner.IsZero() {
		return errs.Newf(errs.ErrInvalidParameter, "new owner is empty")
	}
	lockKey, _, err := state.DeriveLockAddress(position)
	if err != nil {
		return err
	}
	poolKey, err := e.positionPool(ctx, position)
	if err != nil {
		return err
	}
	return e.mutate(ctx, "transfer_position", []solana.PublicKey{poolKey}, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		if err := pos.RequireOwner(owner); err != nil {
			return err
		}
		pos.Owner = newOwner
		tx.put(position, pos)

		lock, err := tx.lock(lockKey)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		lock.PositionOwner = newOwner
		tx.put(lockKey, lock)
		return nil
	})
}

func requireUnlocked(tx *txn, position solana.PublicKey) error {
	lockKey, _, err := state.DeriveLockAddress(position)
	if err != nil {
		return err
	}
	locked, err := tx.exists(lockKey)
	if err != nil {
		return err
	}
	if locked {
		return errs.Newf(errs.ErrPositionLocked, "position %s", position)
	}
	return nil
}

// positionPool reads the pool a position belongs to, which is needed before
// the pool's lock can be taken.
func (e *Engine) positionPool(ctx context.Context, position solana.PublicKey) (solana.PublicKey, error) {
	var pool solana.PublicKey
	err := e.view(ctx, func(tx *txn) error {
		pos, err := tx.position(position)
		if err != nil {
			return err
		}
		pool = pos.Pool
		return nil
	})
	return pool, err
}

// liquidityChange is a staged modify-liquidity result.
type liquidityChange struct {
	pool     *state.Pool
	poolKey  solana.PublicKey
	position *state.Position
	posKey   solana.PublicKey
	arrays   [2]boundary
	amounts  solvemath.TokenAmounts
}

type boundary struct {
	key   solana.PublicKey
	array *state.TickArray
}

func (m *liquidityChange) stage(tx *txn) {
	tx.put(m.poolKey, m.pool)
	tx.put(m.posKey, m.position)
	for _, b := range m.arrays {
		tx.put(b.key, b.array)
	}
}

// modifyLiquidity applies delta to a position, its boundary ticks and the
// pool's active liquidity. Fees and rewards are accrued first. Nothing is
// staged; the caller checks token limits and then stages.
func (e *Engine) modifyLiquidity(tx *txn, posKey, owner solana.PublicKey, delta solvemath.Int128) (*liquidityChange, error) {
	pos, err := tx.position(posKey)
	if err != nil {
		return nil, err
	}
	if err := pos.RequireOwner(owner); err != nil {
		return nil, err
	}
	if delta.IsZero() && pos.Liquidity.IsZero() {
		return nil, errs.ErrZeroLiquidity
	}
	pool, err := tx.pool(pos.Pool)
	if err != nil {
		return nil, err
	}

	rewards, err := pool.NextRewardInfos(tx.now)
	if err != nil {
		return nil, err
	}

	lowerKey, lowerArr, err := tx.tickArray(pos.Pool, solvemath.TickArrayStartIndex(pos.TickLowerIndex, pool.TickSpacing))
	if err != nil {
		return nil, err
	}
	upperKey, upperArr, err := tx.tickArray(pos.Pool, solvemath.TickArrayStartIndex(pos.TickUpperIndex, pool.TickSpacing))
	if err != nil {
		return nil, err
	}
	lower, err := lowerArr.Tick(pos.TickLowerIndex, pool.TickSpacing)
	if err != nil {
		return nil, err
	}
	upper, err := upperArr.Tick(pos.TickUpperIndex, pool.TickSpacing)
	if err != nil {
		return nil, err
	}

	global := pool.GlobalGrowths()
	for i, r := range rewards {
		global.Rewards[i] = r.GrowthGlobalX64
	}

	inside := state.GrowthsInside(lower, upper, pos.TickLowerIndex, pos.TickUpperIndex, pool.TickCurrentIndex, global)
	nextPos := *pos
	if err := nextPos.ModifyLiquidity(delta, inside); err != nil {
		return nil, err
	}

	nextLower, err := lower.ModifyLiquidity(pos.TickLowerIndex, pool.TickCurrentIndex, delta, false, global)
	if err != nil {
		return nil, err
	}
	nextUpper, err := upper.ModifyLiquidity(pos.TickUpperIndex, pool.TickCurrentIndex, delta, true, global)
	if err != nil {
		return nil, err
	}

	nextPool := *pool
	if pool.InRange(pos.TickLowerIndex, pos.TickUpperIndex) {
		if nextPool.Liquidity, err = solvemath.AddLiquidityDelta(pool.Liquidity, delta); err != nil {
			return nil, err
		}
	}
	nextPool.RewardInfos = rewards
	nextPool.RewardLastUpdatedTimestamp = tx.now

	amounts, err := solvemath.LiquidityTokenDeltas(pool.TickCurrentIndex, pool.SqrtPrice, pos.TickLowerIndex, pos.TickUpperIndex, delta)
	if err != nil {
		return nil, err
	}

	// Both boundaries may live in the same array.
	if err := lowerArr.SetTick(pos.TickLowerIndex, pool.TickSpacing, nextLower); err != nil {
		return nil, err
	}
	if err := upperArr.SetTick(pos.TickUpperIndex, pool.TickSpacing, nextUpper); err != nil {
		return nil, err
	}
	*pos = nextPos
	*pool = nextPool

	return &liquidityChange{
		pool:     pool,
		poolKey:  pos.Pool,
		position: pos,
		posKey:   posKey,
		arrays:   [2]boundary{{lowerKey, lowerArr}, {upperKey, upperArr}},
		amounts:  amounts,
	}, nil
}

// accrue brings a position's owed fees and rewards up to date and stages the
// position and pool.
func (e *Engine) accrue(tx *txn, posKey solana.PublicKey, pos *state.Position) error {
	m, err := e.modifyLiquidity(tx, posKey, pos.Owner, solvemath.Int128{})
	if err != nil {
		return err
	}
	tx.put(m.poolKey, m.pool)
	tx.put(m.posKey, m.position)
	return nil
}
