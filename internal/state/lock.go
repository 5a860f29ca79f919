package state

import "github.com/gagliardetto/solana-go"

// LockType says how a position is locked.
type LockType uint8

const (
	// LockPermanent keeps the position's liquidity in the pool forever.
	LockPermanent LockType = iota
)

func (t LockType) String() string {
	if t == LockPermanent {
		return "permanent"
	}
	return "unknown"
}

// Lock marks a position whose liquidity can no longer be withdrawn. Fees
// and rewards stay collectable and liquidity may still be added.
type Lock struct {
	Header Header

	Position        solana.PublicKey
	PositionOwner   solana.PublicKey
	Pool            solana.PublicKey
	LockedTimestamp uint64
	LockType        LockType
}

func (l *Lock) Kind() Kind       { return KindLock }
func (l *Lock) header() *Header { return &l.Header }
