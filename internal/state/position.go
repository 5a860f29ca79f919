package state

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

// PositionRewardInfo tracks one reward slot for a position.
type PositionRewardInfo struct {
	GrowthInsideCheckpoint uint128.Uint128
	AmountOwed             uint64
}

// Position is a liquidity position over [TickLowerIndex, TickUpperIndex).
type Position struct {
	Header Header

	Pool           solana.PublicKey
	PositionMint   solana.PublicKey
	Owner          solana.PublicKey
	Liquidity      uint128.Uint128
	TickLowerIndex int32
	TickUpperIndex int32

	FeeGrowthCheckpointA uint128.Uint128
	FeeOwedA             uint64
	FeeGrowthCheckpointB uint128.Uint128
	FeeOwedB             uint64

	RewardInfos [NumRewards]PositionRewardInfo
}

func (p *Position) Kind() Kind       { return KindPosition }
func (p *Position) header() *Header { return &p.Header }

// RequireOwner fails unless authority owns the position.
func (p *Position) RequireOwner(authority solana.PublicKey) error {
	return requireAuthority(p.Owner, authority, "position owner")
}

// IsEmpty reports whether the position holds no liquidity and owes nothing.
func (p *Position) IsEmpty() bool {
	if !p.Liquidity.IsZero() || p.FeeOwedA != 0 || p.FeeOwedB != 0 {
		return false
	}
	for _, r := range p.RewardInfos {
		if r.AmountOwed != 0 {
			return false
		}
	}
	return true
}

// ResetRange moves an empty position to a new range.
func (p *Position) ResetRange(lower, upper int32) error {
	if !p.IsEmpty() {
		return errs.ErrPositionNotEmpty
	}
	if lower == p.TickLowerIndex && upper == p.TickUpperIndex {
		return errs.ErrSameTickRange
	}
	p.TickLowerIndex = lower
	p.TickUpperIndex = upper
	p.FeeGrowthCheckpointA = uint128.Zero
	p.FeeGrowthCheckpointB = uint128.Zero
	for i := range p.RewardInfos {
		p.RewardInfos[i].GrowthInsideCheckpoint = uint128.Zero
	}
	return nil
}

// Accrue credits the position with growth accumulated inside its range since
// its checkpoints and moves the checkpoints to inside. Calling it again with
// the same inside growth changes nothing.
func (p *Position) Accrue(inside Growths) error {
	feeA, err := accrued(inside.FeeA, p.FeeGrowthCheckpointA, p.Liquidity)
	if err != nil {
		return err
	}
	feeB, err := accrued(inside.FeeB, p.FeeGrowthCheckpointB, p.Liquidity)
	if err != nil {
		return err
	}

	next := *p
	if next.FeeOwedA, err = solvemath.Add64(p.FeeOwedA, feeA); err != nil {
		return err
	}
	if next.FeeOwedB, err = solvemath.Add64(p.FeeOwedB, feeB); err != nil {
		return err
	}
	next.FeeGrowthCheckpointA = inside.FeeA
	next.FeeGrowthCheckpointB = inside.FeeB

	for i := range next.RewardInfos {
		r := &next.RewardInfos[i]
		amount, err := accrued(inside.Rewards[i], r.GrowthInsideCheckpoint, p.Liquidity)
		if err != nil {
			return err
		}
		if r.AmountOwed, err = solvemath.Add64(r.AmountOwed, amount); err != nil {
			return err
		}
		r.GrowthInsideCheckpoint = inside.Rewards[i]
	}

	*p = next
	return nil
}

// ModifyLiquidity accrues against inside and then applies delta.
func (p *Position) ModifyLiquidity(delta solvemath.Int128, inside Growths) error {
	if delta.IsNeg() && p.Liquidity.Cmp(delta.Abs()) < 0 {
		return errs.Newf(errs.ErrInsufficientLiquidity, "position holds %s, removing %s", p.Liquidity, delta.Abs())
	}
	next := *p
	if err := next.Accrue(inside); err != nil {
		return err
	}
	l, err := solvemath.AddLiquidityDelta(p.Liquidity, delta)
	if err != nil {
		return err
	}
	next.Liquidity = l
	*p = next
	return nil
}

// accrued is floor((inside - checkpoint) * liquidity / 2^64) with the growth
// difference taken modulo 2^128.
func accrued(inside, checkpoint, liquidity uint128.Uint128) (uint64, error) {
	v, err := solvemath.MulShiftRight64(solvemath.WrappingSub128(inside, checkpoint), liquidity, solvemath.RoundDown)
	if err != nil {
		return 0, err
	}
	if v.Hi != 0 {
		return 0, errs.ErrTokenAmountOverflow
	}
	return v.Lo, nil
}
