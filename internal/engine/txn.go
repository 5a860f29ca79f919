package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
	"github.com/solve3fi/contracts/internal/events"
	"github.com/solve3fi/contracts/internal/state"
	"github.com/solve3fi/contracts/internal/store"
)

// txn stages the records of one operation. Records are decoded once and
// shared by pointer, so a record changed and read again within the same
// operation reads the change.
type txn struct {
	ctx   context.Context
	store store.Store
	now   uint64

	records  map[solana.PublicKey]state.Record
	versions map[solana.PublicKey]uint64
	dirty    map[solana.PublicKey]bool
	deleted  map[solana.PublicKey]bool
	order    []solana.PublicKey

	events []pendingEvent
}

type pendingEvent struct {
	typ      events.Type
	pool     solana.PublicKey
	position solana.PublicKey
	payload  any
}

func newTxn(ctx context.Context, s store.Store, now uint64) *txn {
	return &txn{
		ctx:      ctx,
		store:    s,
		now:      now,
		records:  make(map[solana.PublicKey]state.Record),
		versions: make(map[solana.PublicKey]uint64),
		dirty:    make(map[solana.PublicKey]bool),
		deleted:  make(map[solana.PublicKey]bool),
	}
}

// load returns the record at key decoded into a new R, or an error matching
// errs.ErrNotFound.
func load[R any, P interface {
	*R
	state.Record
}](tx *txn, key solana.PublicKey) (P, error) {
	if tx.deleted[key] {
		return nil, errs.Newf(errs.ErrNotFound, "record %s", key)
	}
	if rec, ok := tx.records[key]; ok {
		p, ok := rec.(P)
		if !ok {
			return nil, errs.Newf(errs.ErrInvalidParameter, "record %s is a %s", key, rec.Kind().Name)
		}
		return p, nil
	}

	entry, err := tx.store.Get(tx.ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			tx.versions[key] = 0
		}
		return nil, err
	}
	p := P(new(R))
	if err := state.Decode(entry.Data, p); err != nil {
		return nil, fmt.Errorf("record %s: %w", key, err)
	}
	tx.records[key] = p
	tx.versions[key] = entry.Version
	return p, nil
}

// exists reports whether a record is stored at key.
func (tx *txn) exists(key solana.PublicKey) (bool, error) {
	if tx.deleted[key] {
		return false, nil
	}
	if _, ok := tx.records[key]; ok {
		return true, nil
	}
	entry, err := tx.store.Get(tx.ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		tx.versions[key] = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tx.versions[key] = entry.Version
	return true, nil
}

// put stages rec to be written at key.
func (tx *txn) put(key solana.PublicKey, rec state.Record) {
	tx.records[key] = rec
	delete(tx.deleted, key)
	tx.touch(key)
}

// del stages the removal of the record at key.
func (tx *txn) del(key solana.PublicKey) {
	delete(tx.records, key)
	tx.deleted[key] = true
	tx.touch(key)
}

func (tx *txn) touch(key solana.PublicKey) {
	if !tx.dirty[key] {
		tx.dirty[key] = true
		tx.order = append(tx.order, key)
	}
}

func (tx *txn) emit(typ events.Type, pool, position solana.PublicKey, payload any) {
	tx.events = append(tx.events, pendingEvent{typ: typ, pool: pool, position: position, payload: payload})
}

// commit writes every staged record in one batch.
func (tx *txn) commit() error {
	if len(tx.order) == 0 {
		return nil
	}
	writes := make([]store.Write, 0, len(tx.order))
	for _, key := range tx.order {
		version := tx.versions[key]
		if tx.deleted[key] {
			if version == 0 {
				continue
			}
			writes = append(writes, store.Write{Key: key, ExpectedVersion: version, Delete: true})
			continue
		}
		data, err := state.Encode(tx.records[key])
		if err != nil {
			return err
		}
		writes = append(writes, store.Write{Key: key, Data: data, ExpectedVersion: version})
	}
	if len(writes) == 0 {
		return nil
	}
	return tx.store.Commit(tx.ctx, writes)
}

// Typed loaders.

func (tx *txn) config(key solana.PublicKey) (*state.GlobalConfig, error) {
	return load[state.GlobalConfig](tx, key)
}

func (tx *txn) feeTier(key solana.PublicKey) (*state.FeeTier, error) {
	return load[state.FeeTier](tx, key)
}

func (tx *txn) pool(key solana.PublicKey) (*state.Pool, error) {
	return load[state.Pool](tx, key)
}

func (tx *txn) position(key solana.PublicKey) (*state.Position, error) {
	return load[state.Position](tx, key)
}

func (tx *txn) adaptiveFeeTier(key solana.PublicKey) (*state.AdaptiveFeeTier, error) {
	return load[state.AdaptiveFeeTier](tx, key)
}

func (tx *txn) oracle(key solana.PublicKey) (*state.Oracle, error) {
	return load[state.Oracle](tx, key)
}

func (tx *txn) lock(key solana.PublicKey) (*state.Lock, error) {
	return load[state.Lock](tx, key)
}

// tickArray loads the pool's array starting at start. A missing array is
// reported as ErrTickArrayNotFound.
func (tx *txn) tickArray(pool solana.PublicKey, start int32) (solana.PublicKey, *state.TickArray, error) {
	key, _, err := state.DeriveTickArrayAddress(pool, start)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	arr, err := load[state.TickArray](tx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return key, nil, errs.Newf(errs.ErrTickArrayNotFound, "pool %s has no tick array at %d", pool, start)
	}
	if err != nil {
		return key, nil, err
	}
	if !arr.Pool.Equals(pool) {
		return key, nil, errs.Newf(errs.ErrInvalidParameter, "tick array %s belongs to pool %s", key, arr.Pool)
	}
	return key, arr, nil
}
