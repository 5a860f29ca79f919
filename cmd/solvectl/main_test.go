package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solve3fi/contracts/internal/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTickCommands(t *testing.T) {
	out, err := execute(t, "tick", "to-price", "0", "--tick-spacing", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "sqrt_price:  18446744073709551616")
	assert.Contains(t, out, "price:       1\n")
	assert.Contains(t, out, "array_start: 0")

	out, err = execute(t, "tick", "from-sqrt-price", "18446744073709551616")
	require.NoError(t, err)
	assert.Contains(t, out, "tick:        0")

	out, err = execute(t, "tick", "from-price", "1000", "--decimals-a", "9", "--decimals-b", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "tick:        0")

	_, err = execute(t, "tick", "to-price", "500000")
	assert.Error(t, err)
}

func TestAddressCommands(t *testing.T) {
	cfgKey, bump, err := state.DeriveConfigAddress("demo")
	require.NoError(t, err)

	out, err := execute(t, "address", "config", "--namespace", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, cfgKey.String())
	assert.Contains(t, out, "bump")
	_ = bump

	tierKey, _, err := state.DeriveFeeTierAddress(cfgKey, 64)
	require.NoError(t, err)
	out, err = execute(t, "address", "fee-tier", "64", "--namespace", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, tierKey.String())

	_, err = execute(t, "address", "fee-tier", "0", "--namespace", "demo")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", "../../internal/scenario/testdata", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "basic")
	assert.Contains(t, out, "rewards")
}

func TestQuoteCommand(t *testing.T) {
	out, err := execute(t, "quote", "../../internal/scenario/testdata/basic.yaml",
		"--sell", "BBB", "--amount", "1000", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "amount_in:       1000")
}
