package state

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/money"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

// DayInSeconds is the emission window a reward vault must cover.
const DayInSeconds = 60 * 60 * 24

// RewardInfo is one reward slot of a pool.
type RewardInfo struct {
	Mint                  solana.PublicKey
	Authority             solana.PublicKey
	VaultBalance          uint64
	EmissionsPerSecondX64 uint128.Uint128
	GrowthGlobalX64       uint128.Uint128
}

// Initialized reports whether the slot has a reward mint.
func (r RewardInfo) Initialized() bool {
	return !r.Mint.IsZero()
}

// Pool is the state of one concentrated-liquidity pool.
type Pool struct {
	Header Header

	Config          solana.PublicKey
	Bump            uint8
	TokenMintA      solana.PublicKey
	TokenMintB      solana.PublicKey
	TickSpacing     uint16
	FeeTierIndex    uint16
	FeeRate         uint16
	ProtocolFeeRate uint16

	Liquidity        uint128.Uint128
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32

	ProtocolFeeOwedA uint64
	ProtocolFeeOwedB uint64
	VaultA           uint64
	VaultB           uint64

	FeeGrowthGlobalA uint128.Uint128
	FeeGrowthGlobalB uint128.Uint128

	RewardLastUpdatedTimestamp uint64
	RewardInfos                [NumRewards]RewardInfo
}

func (p *Pool) Kind() Kind       { return KindPool }
func (p *Pool) header() *Header { return &p.Header }

// GlobalGrowths returns the pool's fee and reward accumulators.
func (p *Pool) GlobalGrowths() Growths {
	g := Growths{FeeA: p.FeeGrowthGlobalA, FeeB: p.FeeGrowthGlobalB}
	for i, r := range p.RewardInfos {
		g.Rewards[i] = r.GrowthGlobalX64
	}
	return g
}

// HasAdaptiveFeeTier reports whether the pool was created from an adaptive
// fee tier. Static tiers are indexed by their tick spacing.
func (p *Pool) HasAdaptiveFeeTier() bool {
	return p.FeeTierIndex != p.TickSpacing
}

// FullRangeOnly reports whether the pool only accepts full-range positions.
func (p *Pool) FullRangeOnly() bool {
	return solvemath.IsFullRangeOnly(p.TickSpacing)
}

// SetFeeRate validates and stores a new trading fee rate.
func (p *Pool) SetFeeRate(rate uint16) error {
	if err := money.FeeRate(rate).Validate(); err != nil {
		return err
	}
	p.FeeRate = rate
	return nil
}

// SetProtocolFeeRate validates and stores a new protocol fee rate.
func (p *Pool) SetProtocolFeeRate(rate uint16) error {
	if err := money.ProtocolFeeRate(rate).Validate(); err != nil {
		return err
	}
	p.ProtocolFeeRate = rate
	return nil
}

// ValidateTickRange checks that [lower, upper) is usable for a position.
func (p *Pool) ValidateTickRange(lower, upper int32) error {
	if !solvemath.IsUsableTick(lower, p.TickSpacing) || !solvemath.IsUsableTick(upper, p.TickSpacing) || lower >= upper {
		return errs.Newf(errs.ErrInvalidTickRange, "[%d, %d) with tick spacing %d", lower, upper, p.TickSpacing)
	}
	if p.FullRangeOnly() {
		minTick, maxTick := solvemath.FullRangeIndexes(p.TickSpacing)
		if lower != minTick || upper != maxTick {
			return errs.ErrFullRangeOnly
		}
	}
	return nil
}

// InRange reports whether the current tick lies in [lower, upper).
func (p *Pool) InRange(lower, upper int32) bool {
	return p.TickCurrentIndex >= lower && p.TickCurrentIndex < upper
}

// NextRewardInfos returns the reward slots brought forward to now. Growth is
// emitted only while the pool has active liquidity. An emission too large to
// compute adds nothing; an accumulator that would wrap is an error, the same
// rule ApplyFees uses for fee growth.
func (p *Pool) NextRewardInfos(now uint64) ([NumRewards]RewardInfo, error) {
	if now < p.RewardLastUpdatedTimestamp {
		return p.RewardInfos, errs.ErrInvalidTimestamp
	}
	next := p.RewardInfos
	if p.Liquidity.IsZero() || now == p.RewardLastUpdatedTimestamp {
		return next, nil
	}

	elapsed := uint128.From64(now - p.RewardLastUpdatedTimestamp)
	for i := range next {
		if !next[i].Initialized() {
			continue
		}
		delta, err := solvemath.MulDiv(elapsed, next[i].EmissionsPerSecondX64, p.Liquidity, solvemath.RoundDown)
		if err != nil {
			delta = uint128.Zero
		}
		if next[i].GrowthGlobalX64, err = solvemath.Add128(next[i].GrowthGlobalX64, delta); err != nil {
			return p.RewardInfos, errs.ErrRewardGrowthOverflow
		}
	}
	return next, nil
}

// UpdateRewards brings the reward slots forward to now.
func (p *Pool) UpdateRewards(now uint64) error {
	next, err := p.NextRewardInfos(now)
	if err != nil {
		return err
	}
	p.RewardInfos = next
	p.RewardLastUpdatedTimestamp = now
	return nil
}

// InitializeReward registers mint in slot index. Slots fill in order.
func (p *Pool) InitializeReward(index int, mint solana.PublicKey) error {
	if index < 0 || index >= NumRewards {
		return errs.ErrInvalidRewardIndex
	}
	lowest := -1
	for i, r := range p.RewardInfos {
		if !r.Initialized() {
			lowest = i
			break
		}
	}
	if lowest != index {
		return errs.Newf(errs.ErrInvalidRewardIndex, "slot %d, next free slot %d", index, lowest)
	}
	if mint.IsZero() {
		return errs.Newf(errs.ErrInvalidParameter, "reward mint is empty")
	}
	p.RewardInfos[index].Mint = mint
	return nil
}

// RewardInfo returns an initialized reward slot.
func (p *Pool) RewardInfo(index int) (*RewardInfo, error) {
	if index < 0 || index >= NumRewards || !p.RewardInfos[index].Initialized() {
		return nil, errs.ErrInvalidRewardIndex
	}
	return &p.RewardInfos[index], nil
}

// SetRewardEmissions changes the emission rate of a slot. The vault must hold
// at least one day of emissions at the new rate. Rewards must already be
// brought forward to the current time.
func (p *Pool) SetRewardEmissions(index int, emissionsPerSecondX64 uint128.Uint128) error {
	info, err := p.RewardInfo(index)
	if err != nil {
		return err
	}
	daily := new(uint256.Int).Mul(uint256.NewInt(DayInSeconds), solvemath.U256(emissionsPerSecondX64))
	daily.Rsh(daily, 64)
	if daily.Cmp(uint256.NewInt(info.VaultBalance)) > 0 {
		return errs.Newf(errs.ErrRewardVaultUnderfunded, "needs %s, vault holds %d", daily.Dec(), info.VaultBalance)
	}
	info.EmissionsPerSecondX64 = emissionsPerSecondX64
	return nil
}

// ApplyFees folds a step's trading fee into the protocol balance and the
// input-side fee growth. Returns the LP share of fee. When the pool has no
// active liquidity the whole fee goes to the protocol.
func (p *Pool) ApplyFees(fee uint64, liquidity uint128.Uint128, growth *uint128.Uint128, protocolFee *uint64) (uint64, error) {
	protocolShare := money.ProtocolFeeRate(p.ProtocolFeeRate).Share(fee)
	lpShare := fee - protocolShare
	if liquidity.IsZero() {
		protocolShare, lpShare = fee, 0
	}

	var err error
	if *protocolFee, err = solvemath.Add64(*protocolFee, protocolShare); err != nil {
		return 0, err
	}
	if lpShare == 0 {
		return 0, nil
	}

	delta, err := solvemath.MulDiv(uint128.From64(lpShare), solvemath.Q64, liquidity, solvemath.RoundDown)
	if err != nil {
		return 0, err
	}
	if *growth, err = solvemath.Add128(*growth, delta); err != nil {
		return 0, errs.ErrFeeGrowthOverflow
	}
	return lpShare, nil
}
