package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/errs"
)

// mismatches collects failed assertions of one expect step.
type mismatches []string

func (m *mismatches) check(field string, got, want any) {
	if fmt.Sprint(got) != fmt.Sprint(want) {
		*m = append(*m, fmt.Sprintf("%s: got %v, want %v", field, got, want))
	}
}

func (m *mismatches) checkTokens(field string, got, want map[string]uint64) {
	keys := make([]string, 0, len(want))
	for sym := range want {
		keys = append(keys, sym)
	}
	sort.Strings(keys)
	for _, sym := range keys {
		m.check(field+"."+sym, got[strings.ToUpper(sym)], want[sym])
	}
}

func (m mismatches) err() error {
	if len(m) == 0 {
		return nil
	}
	return fmt.Errorf("expectation failed: %s", strings.Join(m, "; "))
}

func (s *Session) expect(ctx context.Context, st Step) error {
	if st.Expect == nil {
		return fmt.Errorf("expect step without expectations")
	}
	switch {
	case st.Position != "":
		return s.expectPosition(ctx, st.Position, st.Expect)
	case st.Pool != "":
		return s.expectPool(ctx, st.Pool, st.Expect)
	default:
		return s.expectLast(st.Expect)
	}
}

func (s *Session) expectPool(ctx context.Context, name string, want *Expectation) error {
	ref, err := s.pool(name)
	if err != nil {
		return err
	}
	pool, err := s.engine.GetPool(ctx, ref.key)
	if err != nil {
		return err
	}

	var m mismatches
	if want.Liquidity != nil {
		m.check("liquidity", pool.Liquidity, uint128.From64(*want.Liquidity))
	}
	if want.Tick != nil {
		m.check("tick", pool.TickCurrentIndex, *want.Tick)
	}
	m.checkTokens("vaults", ref.bySymbol(pool.VaultA, pool.VaultB), want.Vaults)
	m.checkTokens("protocol_fees", ref.bySymbol(pool.ProtocolFeeOwedA, pool.ProtocolFeeOwedB), want.ProtocolFees)
	return m.err()
}

func (s *Session) expectPosition(ctx context.Context, name string, want *Expectation) error {
	ref, p, err := s.positionAndPool(name)
	if err != nil {
		return err
	}
	pos, err := s.engine.GetPosition(ctx, ref.key)
	if err != nil {
		return err
	}

	var m mismatches
	if want.Liquidity != nil {
		m.check("liquidity", pos.Liquidity, uint128.From64(*want.Liquidity))
	}
	m.checkTokens("fees_owed", p.bySymbol(pos.FeeOwedA, pos.FeeOwedB), want.FeesOwed)
	for i, owed := range want.RewardsOwed {
		if i >= len(pos.RewardInfos) {
			m = append(m, fmt.Sprintf("rewards_owed: %d slots listed", len(want.RewardsOwed)))
			break
		}
		m.check(fmt.Sprintf("rewards_owed[%d]", i), pos.RewardInfos[i].AmountOwed, owed)
	}
	return m.err()
}

func (s *Session) expectLast(want *Expectation) error {
	var m mismatches
	if want.AmountIn != nil || want.AmountOut != nil || want.TicksCrossed != nil {
		if s.last == nil {
			return fmt.Errorf("no trade to check")
		}
		if want.AmountIn != nil {
			m.check("amount_in", s.last.amountIn, *want.AmountIn)
		}
		if want.AmountOut != nil {
			m.check("amount_out", s.last.amountOut, *want.AmountOut)
		}
		if want.TicksCrossed != nil {
			m.check("ticks_crossed", s.last.ticksCrossed, *want.TicksCrossed)
		}
	}
	if want.Collected != nil {
		m.checkTokens("collected", s.collected, want.Collected)
	}
	return m.err()
}

// matchError reports whether err is what an expect_error step names: an
// error kind label such as slippage_exceeded, or text in the message.
func matchError(err error, want string) bool {
	if err == nil {
		return false
	}
	return errs.KindOf(err) == want || strings.Contains(err.Error(), want)
}
