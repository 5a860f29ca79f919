package scenario

import (
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"

	"github.com/solve3fi/contracts/internal/platform/config"
)

// Keyring maps symbolic names to keys. Keys are derived from the namespace
// and name, so a scenario produces the same keys on every run.
type Keyring struct {
	namespace string
	registry  *config.TokenRegistry

	mu   sync.Mutex
	keys map[string]solana.PublicKey
}

// NewKeyring creates a keyring. Tokens found in registry use their real
// mints; a nil registry derives every mint.
func NewKeyring(namespace string, registry *config.TokenRegistry) *Keyring {
	return &Keyring{
		namespace: namespace,
		registry:  registry,
		keys:      make(map[string]solana.PublicKey),
	}
}

// Actor returns the key of a named actor.
func (k *Keyring) Actor(name string) solana.PublicKey {
	return k.derive("actor", name)
}

// Mint returns the mint of a token symbol.
func (k *Keyring) Mint(symbol string) solana.PublicKey {
	if k.registry != nil {
		if info, err := k.registry.Lookup(symbol); err == nil {
			return info.Mint
		}
	}
	return k.derive("mint", symbol)
}

// PositionMint returns the mint that keys a named position.
func (k *Keyring) PositionMint(name string) solana.PublicKey {
	return k.derive("position", name)
}

func (k *Keyring) derive(class, name string) solana.PublicKey {
	id := class + ":" + name
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.keys[id]; ok {
		return key
	}
	h := blake3.New()
	h.Write([]byte("solve-scenario\x00"))
	h.Write([]byte(k.namespace))
	h.Write([]byte{0})
	h.Write([]byte(id))
	var key solana.PublicKey
	copy(key[:], h.Sum(nil))
	k.keys[id] = key
	return key
}

// SimClock is a settable clock for replaying scenarios.
type SimClock struct {
	now atomic.Uint64
}

// NewSimClock creates a clock reading start.
func NewSimClock(start uint64) *SimClock {
	c := &SimClock{}
	c.now.Store(start)
	return c
}

// Now returns the simulated unix time.
func (c *SimClock) Now() uint64 { return c.now.Load() }

// Advance moves the clock forward.
func (c *SimClock) Advance(seconds uint64) { c.now.Add(seconds) }
