package scenario

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/platform/config"
	"github.com/solve3fi/contracts/internal/store"
)

const prelude = `
  - op: initialize_config
  - op: create_fee_tier
    tick_spacing: 64
    fee_rate: 3000
  - op: initialize_pool
    pool: main
    tokens: [AAA, BBB]
    tick_spacing: 64
    starts: [-5632, 0]
  - op: open_position
    position: lp
    pool: main
    lower: -128
    upper: 128
  - op: increase_liquidity
    position: lp
    liquidity: 1000000000
`

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(doc))
	require.NoError(t, err)
	return sc
}

func TestParse(t *testing.T) {
	sc := mustParse(t, "name: demo\nsteps:\n  - op: advance\n    seconds: 5\n")
	assert.Equal(t, "demo", sc.Namespace)
	assert.Equal(t, uint64(DefaultStartTime), sc.StartTime)
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, uint64(5), sc.Steps[0].Seconds)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "steps: []\n", "name is required"},
		{"unknown op", "name: x\nsteps:\n  - op: teleport\n", `unknown op "teleport"`},
		{"unknown field", "name: x\nsteps:\n  - op: advance\n    minutes: 3\n", "minutes"},
		{"long namespace", "name: x\nnamespace: " + strings.Repeat("n", 33) + "\n", "namespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKeyring(t *testing.T) {
	reg, err := config.NewTokenRegistry(nil)
	require.NoError(t, err)
	sol, err := reg.Lookup("SOL")
	require.NoError(t, err)

	a := NewKeyring("one", reg)
	b := NewKeyring("two", reg)

	assert.Equal(t, a.Actor("alice"), NewKeyring("one", nil).Actor("alice"))
	assert.NotEqual(t, a.Actor("alice"), b.Actor("alice"))
	assert.NotEqual(t, a.Actor("alice"), a.PositionMint("alice"))
	assert.Equal(t, sol.Mint, a.Mint("sol"))
	assert.NotEqual(t, sol.Mint, NewKeyring("one", nil).Mint("SOL"))
}

func TestSimClock(t *testing.T) {
	c := NewSimClock(100)
	c.Advance(25)
	assert.Equal(t, uint64(125), c.Now())
}

func TestRunAllSharesStore(t *testing.T) {
	scenarios, err := LoadAll([]string{"testdata"})
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	rec := events.NewRecorder()
	r := &Runner{Store: store.NewMemoryStore(), Publisher: rec, Concurrency: 2}
	reports, err := r.RunAll(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "basic", reports[0].Name)
	assert.Equal(t, "rewards", reports[1].Name)

	// Both scenarios created their own pool in the shared store.
	pools, err := reports[0].Session.Engine().ListPools(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, 2)
	assert.Len(t, rec.OfType(events.TypePoolInitialized), 2)
}

func TestRunFailsOnExpectation(t *testing.T) {
	sc := mustParse(t, "name: wrong\nsteps:"+prelude+`
  - op: expect
    pool: main
    expect:
      liquidity: 5
`)
	_, err := (&Runner{}).Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 6 (expect)")
	assert.Contains(t, err.Error(), "liquidity: got 1000000000, want 5")
}

func TestRunExpectError(t *testing.T) {
	t.Run("error expected but none", func(t *testing.T) {
		sc := mustParse(t, "name: none\nsteps:"+prelude+`
  - op: swap
    pool: main
    sell: AAA
    amount: 1000
    expect_error: slippage_exceeded
`)
		_, err := (&Runner{}).Run(context.Background(), sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got none")
	})

	t.Run("different error", func(t *testing.T) {
		sc := mustParse(t, "name: other\nsteps:"+prelude+`
  - op: swap
    pool: main
    sell: AAA
    amount: 0
    expect_error: slippage_exceeded
`)
		_, err := (&Runner{}).Run(context.Background(), sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount must be greater than zero")
	})

	t.Run("message text", func(t *testing.T) {
		sc := mustParse(t, "name: text\nsteps:"+prelude+`
  - op: swap
    pool: main
    sell: CCC
    amount: 10
    expect_error: not traded by pool
`)
		_, err := (&Runner{}).Run(context.Background(), sc)
		assert.NoError(t, err)
	})
}

func TestTwoHopScenario(t *testing.T) {
	sc := mustParse(t, "name: route\nsteps:"+prelude+`
  - op: initialize_pool
    pool: second
    tokens: [BBB, CCC]
    tick_spacing: 64
    starts: [-5632, 0]
  - op: open_position
    position: lp2
    pool: second
    lower: -128
    upper: 128
  - op: increase_liquidity
    position: lp2
    liquidity: 1000000000
  - op: two_hop_swap
    route: [main, second]
    sell: AAA
    amount: 1000
  - op: expect
    expect:
      amount_in: 1000
      amount_out: 992
`)
	_, err := (&Runner{}).Run(context.Background(), sc)
	require.NoError(t, err)
}

func TestQuoteAfterRun(t *testing.T) {
	sc := mustParse(t, "name: quote\nsteps:"+prelude)
	rep, err := (&Runner{}).Run(context.Background(), sc)
	require.NoError(t, err)

	ctx := context.Background()
	key, err := rep.Session.Pool("main")
	require.NoError(t, err)
	before, err := rep.Session.Engine().GetPool(ctx, key)
	require.NoError(t, err)

	q, err := rep.Session.Quote(ctx, "main", "BBB", 1000, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), q.AmountIn)
	assert.Equal(t, uint64(996), q.AmountOut)

	after, err := rep.Session.Engine().GetPool(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, before.SqrtPrice, after.SqrtPrice)
	assert.Equal(t, []string{"main"}, rep.Session.PoolNames())

	_, err = rep.Session.Quote(ctx, "missing", "BBB", 1000, false)
	assert.Error(t, err)
}

func TestRunLockPosition(t *testing.T) {
	sc := mustParse(t, "name: lock\nsteps:"+prelude+`
  - op: lock_position
    position: lp
    owner: mallory
    expect_error: unauthorized
  - op: lock_position
    position: lp
  - op: decrease_liquidity
    position: lp
    liquidity: 1
    expect_error: position is locked
  - op: close_position
    position: lp
    expect_error: position is locked
  - op: expect
    pool: main
    expect:
      liquidity: 1000000000
`)
	_, err := (&Runner{}).Run(context.Background(), sc)
	require.NoError(t, err)
}
