// Package events describes what the engine announces after a successful
// commit, and the publishers that deliver those announcements.
package events

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"
)

// Type names an event.
type Type string

const (
	TypePoolInitialized       Type = "PoolInitialized"
	TypeLiquidityIncreased    Type = "LiquidityIncreased"
	TypeLiquidityDecreased    Type = "LiquidityDecreased"
	TypeTraded                Type = "Traded"
	TypeFeesCollected         Type = "FeesCollected"
	TypeRewardCollected       Type = "RewardCollected"
	TypeProtocolFeesCollected Type = "ProtocolFeesCollected"
	TypePositionOpened        Type = "PositionOpened"
	TypePositionClosed        Type = "PositionClosed"
	TypePositionLocked        Type = "PositionLocked"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Pool      string          `json:"pool"`
	Position  string          `json:"position,omitempty"`
	Timestamp uint64          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event. seq distinguishes events that would otherwise be
// identical, such as two equal swaps in the same second.
func New(typ Type, pool, position solana.PublicKey, timestamp, seq uint64, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	ev := Event{
		Type:      typ,
		Pool:      pool.String(),
		Timestamp: timestamp,
		Payload:   raw,
	}
	if !position.IsZero() {
		ev.Position = position.String()
	}

	h := blake3.New()
	var num [16]byte
	binary.LittleEndian.PutUint64(num[:8], timestamp)
	binary.LittleEndian.PutUint64(num[8:], seq)
	_, _ = h.Write([]byte(typ))
	_, _ = h.Write(pool[:])
	_, _ = h.Write(position[:])
	_, _ = h.Write(num[:])
	_, _ = h.Write(raw)
	ev.ID = hex.EncodeToString(h.Sum(nil)[:16])
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Attributes returns the fields subscribers filter on.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"type": string(e.Type),
		"pool": e.Pool,
	}
	if e.Position != "" {
		attrs["position"] = e.Position
	}
	return attrs
}

// PoolInitialized is the payload of TypePoolInitialized.
type PoolInitialized struct {
	Config          string `json:"config"`
	TokenMintA      string `json:"tokenMintA"`
	TokenMintB      string `json:"tokenMintB"`
	TickSpacing     uint16 `json:"tickSpacing"`
	FeeTierIndex    uint16 `json:"feeTierIndex"`
	FeeRate         uint16 `json:"feeRate"`
	ProtocolFeeRate uint16 `json:"protocolFeeRate"`
	SqrtPrice       string `json:"sqrtPrice"`
	Tick            int32  `json:"tick"`
}

// PositionLocked is the payload of TypePositionLocked.
type PositionLocked struct {
	Owner    string `json:"owner"`
	LockType string `json:"lockType"`
}

// LiquidityChanged is the payload of TypeLiquidityIncreased and
// TypeLiquidityDecreased.
type LiquidityChanged struct {
	TickLower int32  `json:"tickLower"`
	TickUpper int32  `json:"tickUpper"`
	Liquidity string `json:"liquidity"`
	AmountA   uint64 `json:"amountA"`
	AmountB   uint64 `json:"amountB"`
}

// Traded is the payload of TypeTraded.
type Traded struct {
	AToB          bool   `json:"aToB"`
	AmountIn      uint64 `json:"amountIn"`
	AmountOut     uint64 `json:"amountOut"`
	LPFee         uint64 `json:"lpFee"`
	ProtocolFee   uint64 `json:"protocolFee"`
	PreSqrtPrice  string `json:"preSqrtPrice"`
	PostSqrtPrice string `json:"postSqrtPrice"`
	Tick          int32  `json:"tick"`
	TicksCrossed  int    `json:"ticksCrossed"`
}

// FeesCollected is the payload of TypeFeesCollected and
// TypeProtocolFeesCollected.
type FeesCollected struct {
	AmountA uint64 `json:"amountA"`
	AmountB uint64 `json:"amountB"`
}

// RewardCollected is the payload of TypeRewardCollected.
type RewardCollected struct {
	Index  int    `json:"index"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

// PositionOpened is the payload of TypePositionOpened.
type PositionOpened struct {
	Owner        string `json:"owner"`
	PositionMint string `json:"positionMint"`
	TickLower    int32  `json:"tickLower"`
	TickUpper    int32  `json:"tickUpper"`
}

// PositionClosed is the payload of TypePositionClosed.
type PositionClosed struct {
	Owner string `json:"owner"`
}
