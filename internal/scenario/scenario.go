// Package scenario replays scripted pool operations against an engine.
//
// A scenario is a YAML file naming actors, tokens, pools and positions
// symbolically. Steps run in order against a simulated clock; expect steps
// assert on the resulting state. Token amounts are keyed by token symbol, so
// authors never need to know which mint of a pool sorts first.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultStartTime is the simulated unix time a scenario starts at.
const DefaultStartTime = 1_700_000_000

// Scenario is one scripted run.
type Scenario struct {
	Name string `yaml:"name"`
	// Namespace keys the global config the scenario creates. It defaults to
	// the name, so scenarios sharing a store do not collide.
	Namespace string `yaml:"namespace"`
	StartTime uint64 `yaml:"start_time"`
	Steps     []Step `yaml:"steps"`
}

// Step is one operation or assertion. Op selects which fields apply.
type Step struct {
	Op string `yaml:"op"`

	// Actors and symbolic names.
	Authority string   `yaml:"authority"`
	Owner     string   `yaml:"owner"`
	Pool      string   `yaml:"pool"`
	Position  string   `yaml:"position"`
	Tokens    []string `yaml:"tokens"`
	Token     string   `yaml:"token"`
	Route     []string `yaml:"route"`

	// Pool and tier parameters.
	TickSpacing     uint16  `yaml:"tick_spacing"`
	FeeRate         uint16  `yaml:"fee_rate"`
	ProtocolFeeRate uint16  `yaml:"protocol_fee_rate"`
	Tick            int32   `yaml:"tick"`
	SqrtPrice       string  `yaml:"sqrt_price"`
	Starts          []int32 `yaml:"starts"`

	// Position range.
	Lower int32 `yaml:"lower"`
	Upper int32 `yaml:"upper"`

	// Liquidity and token amounts keyed by symbol.
	Liquidity uint64            `yaml:"liquidity"`
	TokenMax  map[string]uint64 `yaml:"token_max"`
	TokenMin  map[string]uint64 `yaml:"token_min"`

	// Swap parameters. Sell names the input token.
	Sell       string  `yaml:"sell"`
	Amount     uint64  `yaml:"amount"`
	ExactOut   bool    `yaml:"exact_out"`
	Threshold  *uint64 `yaml:"threshold"`
	LimitTick  *int32  `yaml:"limit_tick"`
	TickArrays []int32 `yaml:"tick_arrays"`

	// Rewards.
	Index     int    `yaml:"index"`
	PerSecond uint64 `yaml:"per_second"`

	// Clock.
	Seconds uint64 `yaml:"seconds"`

	Expect      *Expectation `yaml:"expect"`
	ExpectError string       `yaml:"expect_error"`
}

// Expectation asserts on a pool, a position or the last trade. Unset fields
// are not checked.
type Expectation struct {
	Liquidity    *uint64           `yaml:"liquidity"`
	Tick         *int32            `yaml:"tick"`
	Vaults       map[string]uint64 `yaml:"vaults"`
	ProtocolFees map[string]uint64 `yaml:"protocol_fees"`
	FeesOwed     map[string]uint64 `yaml:"fees_owed"`
	RewardsOwed  []uint64          `yaml:"rewards_owed"`
	AmountIn     *uint64           `yaml:"amount_in"`
	AmountOut    *uint64           `yaml:"amount_out"`
	TicksCrossed *int              `yaml:"ticks_crossed"`
	Collected    map[string]uint64 `yaml:"collected"`
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.UnmarshalStrict(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario name is required")
	}
	if sc.Namespace == "" {
		sc.Namespace = sc.Name
	}
	if len(sc.Namespace) > 32 {
		return nil, fmt.Errorf("scenario %s: namespace longer than 32 bytes", sc.Name)
	}
	if sc.StartTime == 0 {
		sc.StartTime = DefaultStartTime
	}
	for i, st := range sc.Steps {
		if _, ok := handlers[st.Op]; !ok {
			return nil, fmt.Errorf("scenario %s: step %d: unknown op %q", sc.Name, i+1, st.Op)
		}
	}
	return &sc, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// LoadAll loads every path. Directories contribute their .yaml and .yml
// files in name order.
func LoadAll(paths []string) ([]*Scenario, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
	}

	out := make([]*Scenario, 0, len(files))
	seen := make(map[string]string)
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[sc.Namespace]; ok {
			return nil, fmt.Errorf("%s and %s both use namespace %q", prev, f, sc.Namespace)
		}
		seen[sc.Namespace] = f
		out = append(out, sc)
	}
	return out, nil
}

func stepName(i int, st Step) string {
	return fmt.Sprintf("step %d (%s)", i+1, strings.ReplaceAll(st.Op, "_", " "))
}
