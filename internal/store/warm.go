package store

import (
	"context"
	"fmt"
)

// KindWarmer loads every record of one kind into a CachedStore.
type KindWarmer struct {
	name   string
	prefix []byte
	store  *CachedStore
}

// NewKindWarmer returns a cache.WarmupProvider for records whose data starts
// with discriminator.
func NewKindWarmer(name string, discriminator [8]byte, s *CachedStore) *KindWarmer {
	return &KindWarmer{name: name, prefix: discriminator[:], store: s}
}

func (w *KindWarmer) Name() string { return w.name }

// Warmup reads each record once so later reads hit the cache.
func (w *KindWarmer) Warmup(ctx context.Context) error {
	keys, err := w.store.List(ctx, w.prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", w.name, err)
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.store.Get(ctx, k); err != nil && !isNotFound(err) {
			return fmt.Errorf("load %s %s: %w", w.name, k, err)
		}
	}
	return nil
}
