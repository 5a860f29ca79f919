package scenario

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/engine"
	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
	"github.com/solve3fi/contracts/internal/state"
)

const defaultAuthority = "admin"

type poolRef struct {
	key              solana.PublicKey
	symbolA, symbolB string
	mintA, mintB     solana.PublicKey
	rewards          [state.NumRewards]string
}

type positionRef struct {
	key   solana.PublicKey
	owner solana.PublicKey
	pool  string
}

// trade is the outcome of the last swap a session ran.
type trade struct {
	amountIn     uint64
	amountOut    uint64
	ticksCrossed int
}

// Session is one scenario's view of an engine: its clock, its keys and the
// records its steps created.
type Session struct {
	scenario *Scenario
	engine   *engine.Engine
	clock    *SimClock
	keys     *Keyring

	config    solana.PublicKey
	pools     map[string]*poolRef
	positions map[string]*positionRef

	last      *trade
	collected map[string]uint64
}

type handler func(s *Session, ctx context.Context, st Step) error

var handlers = map[string]handler{
	"initialize_config":             (*Session).initializeConfig,
	"set_default_protocol_fee_rate": (*Session).setDefaultProtocolFeeRate,
	"create_fee_tier":               (*Session).createFeeTier,
	"initialize_pool":               (*Session).initializePool,
	"initialize_tick_array":         (*Session).initializeTickArrays,
	"set_fee_rate":                  (*Session).setFeeRate,
	"set_protocol_fee_rate":         (*Session).setProtocolFeeRate,
	"open_position":                 (*Session).openPosition,
	"increase_liquidity":            (*Session).increaseLiquidity,
	"decrease_liquidity":            (*Session).decreaseLiquidity,
	"reset_position_range":          (*Session).resetPositionRange,
	"update_fees_and_rewards":       (*Session).updateFeesAndRewards,
	"collect_fees":                  (*Session).collectFees,
	"collect_reward":                (*Session).collectReward,
	"collect_protocol_fees":         (*Session).collectProtocolFees,
	"close_position":                (*Session).closePosition,
	"lock_position":                 (*Session).lockPosition,
	"initialize_reward":             (*Session).initializeReward,
	"fund_reward":                   (*Session).fundReward,
	"set_reward_emissions":          (*Session).setRewardEmissions,
	"swap":                          (*Session).swap,
	"two_hop_swap":                  (*Session).twoHopSwap,
	"advance":                       (*Session).advance,
	"expect":                        (*Session).expect,
}

func newSession(sc *Scenario, eng *engine.Engine, clock *SimClock, keys *Keyring) *Session {
	return &Session{
		scenario:  sc,
		engine:    eng,
		clock:     clock,
		keys:      keys,
		pools:     make(map[string]*poolRef),
		positions: make(map[string]*positionRef),
	}
}

// Engine returns the engine the session runs against.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Pool returns the key of a named pool.
func (s *Session) Pool(name string) (solana.PublicKey, error) {
	p, err := s.pool(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return p.key, nil
}

// PoolNames returns the names of the pools the session created.
func (s *Session) PoolNames() []string {
	names := make([]string, 0, len(s.pools))
	for n := range s.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Quote prices a swap on a named pool without executing it.
func (s *Session) Quote(ctx context.Context, pool, sell string, amount uint64, exactOut bool) (engine.SwapResult, error) {
	p, err := s.swapParams(Step{Pool: pool, Sell: sell, Amount: amount, ExactOut: exactOut})
	if err != nil {
		return engine.SwapResult{}, err
	}
	return s.engine.QuoteSwap(ctx, p)
}

func (s *Session) run(ctx context.Context, st Step) error {
	return handlers[st.Op](s, ctx, st)
}

func (s *Session) actor(name string) solana.PublicKey {
	if name == "" {
		name = defaultAuthority
	}
	return s.keys.Actor(name)
}

func (s *Session) pool(name string) (*poolRef, error) {
	p, ok := s.pools[name]
	if !ok {
		return nil, fmt.Errorf("unknown pool %q", name)
	}
	return p, nil
}

func (s *Session) position(name string) (*positionRef, error) {
	p, ok := s.positions[name]
	if !ok {
		return nil, fmt.Errorf("unknown position %q", name)
	}
	return p, nil
}

// side reports whether symbol is token A of the pool.
func (p *poolRef) side(symbol string) (bool, error) {
	switch {
	case strings.EqualFold(symbol, p.symbolA):
		return true, nil
	case strings.EqualFold(symbol, p.symbolB):
		return false, nil
	}
	return false, fmt.Errorf("token %s is not traded by pool %s/%s", symbol, p.symbolA, p.symbolB)
}

// amounts splits a symbol-keyed map into token A and B amounts. Tokens not
// listed take def.
func (p *poolRef) amounts(bySymbol map[string]uint64, def uint64) (uint64, uint64, error) {
	a, b := def, def
	for sym, v := range bySymbol {
		isA, err := p.side(sym)
		if err != nil {
			return 0, 0, err
		}
		if isA {
			a = v
		} else {
			b = v
		}
	}
	return a, b, nil
}

func (p *poolRef) bySymbol(a, b uint64) map[string]uint64 {
	return map[string]uint64{p.symbolA: a, p.symbolB: b}
}

func (s *Session) initializeConfig(ctx context.Context, st Step) error {
	auth := s.actor(st.Authority)
	key, err := s.engine.InitializeConfig(ctx, s.scenario.Namespace, engine.Authorities{
		Fee:                  auth,
		CollectProtocolFees:  auth,
		RewardEmissionsSuper: auth,
	}, st.ProtocolFeeRate)
	if err != nil {
		return err
	}
	s.config = key
	return nil
}

func (s *Session) setDefaultProtocolFeeRate(ctx context.Context, st Step) error {
	return s.engine.SetDefaultProtocolFeeRate(ctx, s.config, s.actor(st.Authority), st.ProtocolFeeRate)
}

func (s *Session) createFeeTier(ctx context.Context, st Step) error {
	_, err := s.engine.CreateFeeTier(ctx, s.config, s.actor(st.Authority), st.TickSpacing, st.FeeRate)
	return err
}

func (s *Session) initializePool(ctx context.Context, st Step) error {
	if st.Pool == "" {
		return fmt.Errorf("pool name is required")
	}
	if _, ok := s.pools[st.Pool]; ok {
		return fmt.Errorf("pool %q already defined", st.Pool)
	}
	if len(st.Tokens) != 2 {
		return fmt.Errorf("pool %s needs exactly two tokens", st.Pool)
	}

	ref := &poolRef{
		symbolA: strings.ToUpper(st.Tokens[0]),
		symbolB: strings.ToUpper(st.Tokens[1]),
	}
	ref.mintA, ref.mintB = s.keys.Mint(ref.symbolA), s.keys.Mint(ref.symbolB)
	if bytes.Compare(ref.mintA[:], ref.mintB[:]) > 0 {
		ref.symbolA, ref.symbolB = ref.symbolB, ref.symbolA
		ref.mintA, ref.mintB = ref.mintB, ref.mintA
	}

	price, err := initialPrice(st)
	if err != nil {
		return err
	}
	ref.key, err = s.engine.InitializePool(ctx, engine.InitializePoolParams{
		Config:           s.config,
		TokenMintA:       ref.mintA,
		TokenMintB:       ref.mintB,
		TickSpacing:      st.TickSpacing,
		InitialSqrtPrice: price,
	})
	if err != nil {
		return err
	}
	s.pools[st.Pool] = ref

	for _, start := range st.Starts {
		if _, err := s.engine.InitializeTickArray(ctx, ref.key, start); err != nil {
			return err
		}
	}
	return nil
}

func initialPrice(st Step) (uint128.Uint128, error) {
	if st.SqrtPrice != "" {
		p, err := uint128.FromString(st.SqrtPrice)
		if err != nil {
			return uint128.Zero, fmt.Errorf("invalid sqrt price %q: %w", st.SqrtPrice, err)
		}
		return p, nil
	}
	return solvemath.SqrtPriceFromTick(st.Tick)
}

func (s *Session) initializeTickArrays(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	for _, start := range st.Starts {
		if _, err := s.engine.InitializeTickArray(ctx, p.key, start); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) setFeeRate(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	return s.engine.SetFeeRate(ctx, p.key, s.actor(st.Authority), st.FeeRate)
}

func (s *Session) setProtocolFeeRate(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	return s.engine.SetProtocolFeeRate(ctx, p.key, s.actor(st.Authority), st.ProtocolFeeRate)
}

func (s *Session) openPosition(ctx context.Context, st Step) error {
	if _, ok := s.positions[st.Position]; ok || st.Position == "" {
		return fmt.Errorf("position name %q is empty or already used", st.Position)
	}
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	owner := s.actor(st.Owner)
	key, err := s.engine.OpenPosition(ctx, engine.OpenPositionParams{
		Pool:         p.key,
		PositionMint: s.keys.PositionMint(st.Position),
		Owner:        owner,
		TickLower:    st.Lower,
		TickUpper:    st.Upper,
	})
	if err != nil {
		return err
	}
	s.positions[st.Position] = &positionRef{key: key, owner: owner, pool: st.Pool}
	return nil
}

func (s *Session) positionAndPool(name string) (*positionRef, *poolRef, error) {
	pos, err := s.position(name)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.pool(pos.pool)
	if err != nil {
		return nil, nil, err
	}
	return pos, p, nil
}

// owner resolves who signs a position step: the named actor, or the owner
// recorded at open.
func (s *Session) owner(st Step, pos *positionRef) solana.PublicKey {
	if st.Owner != "" {
		return s.keys.Actor(st.Owner)
	}
	return pos.owner
}

func (s *Session) increaseLiquidity(ctx context.Context, st Step) error {
	pos, p, err := s.positionAndPool(st.Position)
	if err != nil {
		return err
	}
	maxA, maxB, err := p.amounts(st.TokenMax, math.MaxUint64)
	if err != nil {
		return err
	}
	if st.Liquidity == 0 {
		_, _, err = s.engine.IncreaseLiquidityByTokenAmounts(ctx, pos.key, s.owner(st, pos), maxA, maxB)
		return err
	}
	_, err = s.engine.IncreaseLiquidity(ctx, engine.IncreaseLiquidityParams{
		Position:  pos.key,
		Owner:     s.owner(st, pos),
		Liquidity: uint128.From64(st.Liquidity),
		TokenMaxA: maxA,
		TokenMaxB: maxB,
	})
	return err
}

func (s *Session) decreaseLiquidity(ctx context.Context, st Step) error {
	pos, p, err := s.positionAndPool(st.Position)
	if err != nil {
		return err
	}
	minA, minB, err := p.amounts(st.TokenMin, 0)
	if err != nil {
		return err
	}
	out, err := s.engine.DecreaseLiquidity(ctx, engine.DecreaseLiquidityParams{
		Position:  pos.key,
		Owner:     s.owner(st, pos),
		Liquidity: uint128.From64(st.Liquidity),
		TokenMinA: minA,
		TokenMinB: minB,
	})
	if err != nil {
		return err
	}
	s.collected = p.bySymbol(out.A, out.B)
	return nil
}

func (s *Session) resetPositionRange(ctx context.Context, st Step) error {
	pos, err := s.position(st.Position)
	if err != nil {
		return err
	}
	return s.engine.ResetPositionRange(ctx, pos.key, s.owner(st, pos), st.Lower, st.Upper)
}

func (s *Session) updateFeesAndRewards(ctx context.Context, st Step) error {
	pos, err := s.position(st.Position)
	if err != nil {
		return err
	}
	return s.engine.UpdateFeesAndRewards(ctx, pos.key)
}

func (s *Session) collectFees(ctx context.Context, st Step) error {
	pos, p, err := s.positionAndPool(st.Position)
	if err != nil {
		return err
	}
	out, err := s.engine.CollectFees(ctx, pos.key, s.owner(st, pos))
	if err != nil {
		return err
	}
	s.collected = p.bySymbol(out.A, out.B)
	return nil
}

func (s *Session) collectReward(ctx context.Context, st Step) error {
	pos, p, err := s.positionAndPool(st.Position)
	if err != nil {
		return err
	}
	paid, err := s.engine.CollectReward(ctx, pos.key, s.owner(st, pos), st.Index)
	if err != nil {
		return err
	}
	s.collected = map[string]uint64{p.rewards[st.Index]: paid}
	return nil
}

func (s *Session) collectProtocolFees(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	out, err := s.engine.CollectProtocolFees(ctx, p.key, s.actor(st.Authority))
	if err != nil {
		return err
	}
	s.collected = p.bySymbol(out.A, out.B)
	return nil
}

func (s *Session) closePosition(ctx context.Context, st Step) error {
	pos, err := s.position(st.Position)
	if err != nil {
		return err
	}
	if err := s.engine.ClosePosition(ctx, pos.key, s.owner(st, pos)); err != nil {
		return err
	}
	delete(s.positions, st.Position)
	return nil
}

func (s *Session) lockPosition(ctx context.Context, st Step) error {
	pos, err := s.position(st.Position)
	if err != nil {
		return err
	}
	_, err = s.engine.LockPosition(ctx, pos.key, s.owner(st, pos))
	return err
}

func (s *Session) initializeReward(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	if st.Index < 0 || st.Index >= len(p.rewards) {
		return errs.ErrInvalidRewardIndex
	}
	symbol := strings.ToUpper(st.Token)
	if err := s.engine.InitializeReward(ctx, p.key, s.actor(st.Authority), st.Index, s.keys.Mint(symbol)); err != nil {
		return err
	}
	p.rewards[st.Index] = symbol
	return nil
}

func (s *Session) fundReward(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	return s.engine.FundReward(ctx, p.key, st.Index, st.Amount)
}

func (s *Session) setRewardEmissions(ctx context.Context, st Step) error {
	p, err := s.pool(st.Pool)
	if err != nil {
		return err
	}
	perSecondX64 := uint128.From64(st.PerSecond).Lsh(64)
	return s.engine.SetRewardEmissions(ctx, p.key, s.actor(st.Authority), st.Index, perSecondX64)
}

func (s *Session) swapParams(st Step) (engine.SwapParams, error) {
	p, err := s.pool(st.Pool)
	if err != nil {
		return engine.SwapParams{}, err
	}
	aToB, err := p.side(st.Sell)
	if err != nil {
		return engine.SwapParams{}, err
	}
	params := engine.SwapParams{
		Pool:                   p.key,
		Amount:                 st.Amount,
		OtherAmountThreshold:   defaultThreshold(st),
		AmountSpecifiedIsInput: !st.ExactOut,
		AToB:                   aToB,
		TickArrays:             st.TickArrays,
	}
	if st.LimitTick != nil {
		if params.SqrtPriceLimit, err = solvemath.SqrtPriceFromTick(*st.LimitTick); err != nil {
			return engine.SwapParams{}, err
		}
	}
	return params, nil
}

// defaultThreshold accepts any result when the step sets no threshold.
func defaultThreshold(st Step) uint64 {
	switch {
	case st.Threshold != nil:
		return *st.Threshold
	case st.ExactOut:
		return math.MaxUint64
	default:
		return 0
	}
}

func (s *Session) swap(ctx context.Context, st Step) error {
	params, err := s.swapParams(st)
	if err != nil {
		return err
	}
	res, err := s.engine.Swap(ctx, params)
	if err != nil {
		return err
	}
	s.last = &trade{amountIn: res.AmountIn, amountOut: res.AmountOut, ticksCrossed: res.TicksCrossed}
	return nil
}

func (s *Session) twoHopSwap(ctx context.Context, st Step) error {
	if len(st.Route) != 2 {
		return fmt.Errorf("two hop swap needs a route of two pools")
	}
	one, err := s.pool(st.Route[0])
	if err != nil {
		return err
	}
	two, err := s.pool(st.Route[1])
	if err != nil {
		return err
	}
	aToBOne, err := one.side(st.Sell)
	if err != nil {
		return err
	}
	intermediary := one.symbolA
	if aToBOne {
		intermediary = one.symbolB
	}
	aToBTwo, err := two.side(intermediary)
	if err != nil {
		return err
	}

	res, err := s.engine.TwoHopSwap(ctx, engine.TwoHopSwapParams{
		PoolOne:                one.key,
		PoolTwo:                two.key,
		Amount:                 st.Amount,
		OtherAmountThreshold:   defaultThreshold(st),
		AmountSpecifiedIsInput: !st.ExactOut,
		AToBOne:                aToBOne,
		AToBTwo:                aToBTwo,
	})
	if err != nil {
		return err
	}
	s.last = &trade{
		amountIn:     res.AmountIn(),
		amountOut:    res.AmountOut(),
		ticksCrossed: res.One.TicksCrossed + res.Two.TicksCrossed,
	}
	return nil
}

func (s *Session) advance(_ context.Context, st Step) error {
	s.clock.Advance(st.Seconds)
	return nil
}
