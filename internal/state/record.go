// Package state defines the persisted records of the pool program and the
// pure record-level rules that operate on them: tick updates, growth-inside
// accounting, reward emission and position accrual.
//
// Records are Borsh-encoded into fixed-size buffers. Each begins with an
// 8-byte discriminator and a version byte; the unused tail is zero padding
// reserved for future fields.
package state

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/zeebo/blake3"

	"github.com/solve3fi/contracts/internal/errs"
)

// CurrentVersion is written into every record this build encodes.
const CurrentVersion uint8 = 1

// Encoded record sizes, including header and padding.
const (
	GlobalConfigSize = 256
	FeeTierSize      = 64
	PoolSize         = 640
	TickArraySize    = 10016
	PositionSize     = 256

	AdaptiveFeeTierSize = 192
	OracleSize          = 160
	LockSize            = 128
)

// Kind identifies a record type.
type Kind struct {
	Name          string
	Size          int
	Discriminator [8]byte
}

func newKind(name string, size int) Kind {
	sum := blake3.Sum256([]byte("account:" + name))
	k := Kind{Name: name, Size: size}
	copy(k.Discriminator[:], sum[:8])
	return k
}

var (
	KindGlobalConfig = newKind("GlobalConfig", GlobalConfigSize)
	KindFeeTier      = newKind("FeeTier", FeeTierSize)
	KindPool         = newKind("Pool", PoolSize)
	KindTickArray    = newKind("TickArray", TickArraySize)
	KindPosition     = newKind("Position", PositionSize)

	KindAdaptiveFeeTier = newKind("AdaptiveFeeTier", AdaptiveFeeTierSize)
	KindOracle          = newKind("Oracle", OracleSize)
	KindLock            = newKind("LockConfig", LockSize)
)

var allKinds = []Kind{
	KindGlobalConfig, KindFeeTier, KindPool, KindTickArray, KindPosition,
	KindAdaptiveFeeTier, KindOracle, KindLock,
}

// Header prefixes every record.
type Header struct {
	Discriminator [8]byte
	Version       uint8
}

// Record is implemented by pointers to the record types.
type Record interface {
	Kind() Kind
	header() *Header
}

// Encode serializes rec into a buffer of exactly rec.Kind().Size bytes.
func Encode(rec Record) ([]byte, error) {
	kind := rec.Kind()
	h := rec.header()
	h.Discriminator = kind.Discriminator
	if h.Version == 0 {
		h.Version = CurrentVersion
	}

	var buf bytes.Buffer
	buf.Grow(kind.Size)
	if err := bin.NewBorshEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind.Name, err)
	}
	if buf.Len() > kind.Size {
		return nil, fmt.Errorf("encode %s: %d bytes exceeds record size %d", kind.Name, buf.Len(), kind.Size)
	}
	out := make([]byte, kind.Size)
	copy(out, buf.Bytes())
	return out, nil
}

// Decode parses data into rec, checking size, discriminator and version.
func Decode(data []byte, rec Record) error {
	kind := rec.Kind()
	if len(data) != kind.Size {
		return errs.Newf(errs.ErrInvalidParameter, "%s record is %d bytes, want %d", kind.Name, len(data), kind.Size)
	}
	if !bytes.Equal(data[:8], kind.Discriminator[:]) {
		return errs.Newf(errs.ErrInvalidParameter, "record is not a %s", kind.Name)
	}
	if v := data[8]; v == 0 || v > CurrentVersion {
		return errs.Newf(errs.ErrInvalidParameter, "unsupported %s version %d", kind.Name, v)
	}
	if err := bin.NewBorshDecoder(data).Decode(rec); err != nil {
		return fmt.Errorf("decode %s: %w", kind.Name, err)
	}
	return nil
}

// KindOf returns the record kind a buffer holds, from its discriminator.
func KindOf(data []byte) (Kind, bool) {
	if len(data) < 8 {
		return Kind{}, false
	}
	for _, k := range allKinds {
		if bytes.Equal(data[:8], k.Discriminator[:]) {
			return k, true
		}
	}
	return Kind{}, false
}
