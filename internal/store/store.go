// Package store persists encoded records under their derived keys.
//
// Every record carries a version that increases by one on each write. A
// commit applies a batch of writes atomically, and only if every record is
// still at the version the writer read; otherwise nothing is written and
// ErrConflict is returned.
package store

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/errs"
)

// ErrConflict is returned when a commit lost a race with another writer.
var ErrConflict = errors.New("store: version conflict")

// Entry is a stored record and its version.
type Entry struct {
	Data    []byte
	Version uint64
}

// CacheVersion orders cached copies of the same record.
func (e Entry) CacheVersion() uint64 { return e.Version }

// Write is one change in a commit. ExpectedVersion 0 means the key must not
// exist yet. A Delete removes the record.
type Write struct {
	Key             solana.PublicKey
	Data            []byte
	ExpectedVersion uint64
	Delete          bool
}

// Store is a versioned key-value store of records.
type Store interface {
	// Get returns the record at key or an error matching errs.ErrNotFound.
	Get(ctx context.Context, key solana.PublicKey) (Entry, error)

	// Commit applies writes atomically.
	Commit(ctx context.Context, writes []Write) error

	// List returns the keys of records whose data begins with prefix.
	List(ctx context.Context, prefix []byte) ([]solana.PublicKey, error)

	// Close releases the store's resources.
	Close() error
}

func notFound(key solana.PublicKey) error {
	return errs.Newf(errs.ErrNotFound, "record %s", key)
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}

// validate rejects batches that write the same key twice.
func validate(writes []Write) error {
	seen := make(map[solana.PublicKey]struct{}, len(writes))
	for _, w := range writes {
		if _, dup := seen[w.Key]; dup {
			return errs.Newf(errs.ErrInvalidParameter, "duplicate write to %s", w.Key)
		}
		seen[w.Key] = struct{}{}
		if w.Delete && w.ExpectedVersion == 0 {
			return errs.Newf(errs.ErrInvalidParameter, "delete of %s without a version", w.Key)
		}
	}
	return nil
}
