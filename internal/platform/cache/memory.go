package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry[K comparable, V Versioned] struct {
	key        K
	value      V
	expiration time.Time
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Stale     uint64 // sets refused because a newer version was cached
}

// MemoryCache is an in-memory LRU cache with per-entry TTL.
type MemoryCache[K comparable, V Versioned] struct {
	maxSize int
	items   map[K]*list.Element
	lru     *list.List
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time

	hits, misses, evictions, stale uint64
}

// NewMemoryCache creates a cache holding at most maxSize entries and starts
// a goroutine that drops expired entries every cleanupInterval.
func NewMemoryCache[K comparable, V Versioned](maxSize int, cleanupInterval time.Duration) *MemoryCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &MemoryCache[K, V]{
		maxSize: maxSize,
		items:   make(map[K]*list.Element),
		lru:     list.New(),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go c.cleanup(cleanupInterval)
	return c
}

// Get returns a live entry and marks it most recently used.
func (c *MemoryCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, ErrNotFound
	}
	it := el.Value.(*entry[K, V])
	if c.now().After(it.expiration) {
		c.remove(key)
		c.misses++
		return zero, ErrNotFound
	}
	c.lru.MoveToFront(el)
	c.hits++
	return it.value, nil
}

// Set stores value under key for ttl, evicting the least recently used entry
// when full. A live entry with a higher version is kept.
func (c *MemoryCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	exp := now.Add(ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*entry[K, V])
		if !now.After(it.expiration) && it.value.CacheVersion() > value.CacheVersion() {
			c.stale++
			return nil
		}
		it.value, it.expiration = value, exp
		c.lru.MoveToFront(el)
		return nil
	}

	c.items[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value, expiration: exp})
	if c.lru.Len() > c.maxSize {
		if back := c.lru.Back(); back != nil {
			c.remove(back.Value.(*entry[K, V]).key)
			c.evictions++
		}
	}
	return nil
}

// Delete removes key.
func (c *MemoryCache[K, V]) Delete(ctx context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *MemoryCache[K, V]) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Stale:     c.stale,
	}
}

// remove drops key (caller must hold lock)
func (c *MemoryCache[K, V]) remove(key K) {
	if el, ok := c.items[key]; ok {
		c.lru.Remove(el)
		delete(c.items, key)
	}
}

func (c *MemoryCache[K, V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.dropExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache[K, V]) dropExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, el := range c.items {
		if now.After(el.Value.(*entry[K, V]).expiration) {
			c.remove(key)
		}
	}
}
