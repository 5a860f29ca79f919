package state

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
)

// ProgramID is the program that owns every derived record address.
var ProgramID = solana.MustPublicKeyFromBase58("HTRCsPse1euNATcBcJyrGQa24eVEyp8feSHtpQeGS11y")

// Seed prefixes.
const (
	SeedConfig    = "config"
	SeedFeeTier   = "fee_tier"
	SeedPool      = "solve"
	SeedTickArray = "tick_array"
	SeedPosition  = "position"
	SeedOracle    = "oracle"
	SeedLock      = "lock_config"
)

// MaxNamespaceLen bounds a config namespace, which is used as a single seed.
const MaxNamespaceLen = 32

func u16Seed(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func derive(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive address: %w", err)
	}
	return addr, bump, nil
}

// DeriveConfigAddress returns the key of the config for namespace.
func DeriveConfigAddress(namespace string) (solana.PublicKey, uint8, error) {
	if namespace == "" || len(namespace) > MaxNamespaceLen {
		return solana.PublicKey{}, 0, errs.Newf(errs.ErrInvalidParameter, "namespace must be 1-%d bytes", MaxNamespaceLen)
	}
	return derive([]byte(SeedConfig), []byte(namespace))
}

// DeriveFeeTierAddress returns the key of a config's fee tier. Static tiers
// use their tick spacing as the index; adaptive tiers share the same space.
func DeriveFeeTierAddress(config solana.PublicKey, feeTierIndex uint16) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedFeeTier), config.Bytes(), u16Seed(feeTierIndex))
}

// DerivePoolAddress returns the key of the pool for a mint pair and fee tier.
func DerivePoolAddress(config, mintA, mintB solana.PublicKey, feeTierIndex uint16) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedPool), config.Bytes(), mintA.Bytes(), mintB.Bytes(), u16Seed(feeTierIndex))
}

// DeriveOracleAddress returns the key of an adaptive pool's oracle.
func DeriveOracleAddress(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedOracle), pool.Bytes())
}

// DeriveLockAddress returns the key of a position's lock.
func DeriveLockAddress(position solana.PublicKey) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedLock), position.Bytes())
}

// DeriveTickArrayAddress returns the key of a pool's tick array.
func DeriveTickArrayAddress(pool solana.PublicKey, startTickIndex int32) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedTickArray), pool.Bytes(), []byte(strconv.FormatInt(int64(startTickIndex), 10)))
}

// DerivePositionAddress returns the key of the position for a position mint.
func DerivePositionAddress(positionMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return derive([]byte(SeedPosition), positionMint.Bytes())
}
