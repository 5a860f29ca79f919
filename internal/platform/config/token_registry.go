package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// TokenInfo contains token metadata for pool pairs
type TokenInfo struct {
	Symbol   string           // Token symbol (SOL, USDC, etc.)
	Mint     solana.PublicKey // Mint address
	Decimals uint8
}

// defaultTokens are well-known mints; the tokens config section extends or
// overrides them.
var defaultTokens = []struct {
	symbol   string
	mint     string
	decimals uint8
}{
	{"SOL", "So11111111111111111111111111111111111111112", 9},
	{"USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6},
	{"USDT", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", 6},
	{"MSOL", "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", 9},
	{"BONK", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", 5},
	{"JUP", "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", 6},
}

// TokenRegistry maps token symbols to mints
type TokenRegistry struct {
	bySymbol map[string]TokenInfo
}

// NewTokenRegistry builds a registry from the defaults plus overrides given
// as symbol -> base58 mint. Symbols are case-insensitive.
func NewTokenRegistry(overrides map[string]string) (*TokenRegistry, error) {
	r := &TokenRegistry{bySymbol: make(map[string]TokenInfo, len(defaultTokens)+len(overrides))}
	for _, t := range defaultTokens {
		r.bySymbol[t.symbol] = TokenInfo{
			Symbol:   t.symbol,
			Mint:     solana.MustPublicKeyFromBase58(t.mint),
			Decimals: t.decimals,
		}
	}
	for symbol, raw := range overrides {
		mint, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("token %s: invalid mint %q: %w", symbol, raw, err)
		}
		symbol = strings.ToUpper(symbol)
		info := r.bySymbol[symbol]
		info.Symbol = symbol
		info.Mint = mint
		r.bySymbol[symbol] = info
	}
	return r, nil
}

// Lookup returns the token for symbol.
func (r *TokenRegistry) Lookup(symbol string) (TokenInfo, error) {
	info, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return TokenInfo{}, fmt.Errorf("unknown token: %s", symbol)
	}
	return info, nil
}

// Symbols returns the registered symbols in sorted order.
func (r *TokenRegistry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParsePair parses a pair string like "SOL-USDC" into its two tokens,
// ordered so that the first mint sorts before the second, which is the
// order pools are keyed by. Swapped reports whether the order differs
// from the string.
//
// Example: ParsePair("USDC-SOL") returns SOL, USDC and swapped == true.
func (r *TokenRegistry) ParsePair(pair string) (a, b TokenInfo, swapped bool, err error) {
	parts := strings.Split(pair, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TokenInfo{}, TokenInfo{}, false, fmt.Errorf("invalid pair format: %s (expected BASE-QUOTE)", pair)
	}

	first, err := r.Lookup(parts[0])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, false, err
	}
	second, err := r.Lookup(parts[1])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, false, err
	}

	switch cmp := bytes.Compare(first.Mint[:], second.Mint[:]); {
	case cmp == 0:
		return TokenInfo{}, TokenInfo{}, false, fmt.Errorf("pair %s uses the same mint twice", pair)
	case cmp > 0:
		return second, first, true, nil
	default:
		return first, second, false, nil
	}
}
