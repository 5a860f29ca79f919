package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[solana.PublicKey]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[solana.PublicKey]Entry)}
}

// Get returns a copy of the record at key.
func (m *MemoryStore) Get(ctx context.Context, key solana.PublicKey) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, notFound(key)
	}
	return Entry{Data: bytes.Clone(e.Data), Version: e.Version}, nil
}

// Commit applies writes atomically under the store lock.
func (m *MemoryStore) Commit(ctx context.Context, writes []Write) error {
	if err := validate(writes); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if m.entries[w.Key].Version != w.ExpectedVersion {
			return ErrConflict
		}
	}
	for _, w := range writes {
		if w.Delete {
			delete(m.entries, w.Key)
			continue
		}
		m.entries[w.Key] = Entry{Data: bytes.Clone(w.Data), Version: w.ExpectedVersion + 1}
	}
	return nil
}

// List returns matching keys in ascending order.
func (m *MemoryStore) List(ctx context.Context, prefix []byte) ([]solana.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []solana.PublicKey
	for k, e := range m.entries {
		if bytes.HasPrefix(e.Data, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
