package store

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solve3fi/contracts/internal/platform/cache"
)

// CachedStore keeps recently read records in an in-process LRU in front of a
// backing store. Successful commits write through; a conflict drops every key
// of the batch so the next read sees the winner's data.
type CachedStore struct {
	backing Store
	l1      *cache.MemoryCache[solana.PublicKey, Entry]
	ttl     time.Duration
}

// NewCachedStore wraps backing with an LRU of maxSize entries.
func NewCachedStore(backing Store, maxSize int, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{
		backing: backing,
		l1:      cache.NewMemoryCache[solana.PublicKey, Entry](maxSize, ttl),
		ttl:     ttl,
	}
}

// Get returns the record at key (L1 → backing store).
func (c *CachedStore) Get(ctx context.Context, key solana.PublicKey) (Entry, error) {
	if e, err := c.l1.Get(ctx, key); err == nil {
		return Entry{Data: bytes.Clone(e.Data), Version: e.Version}, nil
	}
	e, err := c.backing.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	_ = c.l1.Set(ctx, key, Entry{Data: bytes.Clone(e.Data), Version: e.Version}, c.ttl)
	return e, nil
}

// Commit forwards writes to the backing store.
func (c *CachedStore) Commit(ctx context.Context, writes []Write) error {
	err := c.backing.Commit(ctx, writes)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			for _, w := range writes {
				_ = c.l1.Delete(ctx, w.Key)
			}
		}
		return err
	}

	for _, w := range writes {
		if w.Delete {
			_ = c.l1.Delete(ctx, w.Key)
			continue
		}
		_ = c.l1.Set(ctx, w.Key, Entry{Data: bytes.Clone(w.Data), Version: w.ExpectedVersion + 1}, c.ttl)
	}
	return nil
}

// List is not cached.
func (c *CachedStore) List(ctx context.Context, prefix []byte) ([]solana.PublicKey, error) {
	return c.backing.List(ctx, prefix)
}

// Stats returns cache statistics.
func (c *CachedStore) Stats() cache.Stats {
	return c.l1.Stats()
}

// Close closes the cache and the backing store.
func (c *CachedStore) Close() error {
	_ = c.l1.Close()
	return c.backing.Close()
}
