package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps each record in a hash {data, version} and commits with an
// optimistic WATCH/MULTI transaction over every key in the batch.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "solve"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) recordKey(key solana.PublicKey) string {
	return r.prefix + ":record:" + key.String()
}

func (r *RedisStore) indexKey(data []byte) string {
	n := 8
	if len(data) < n {
		n = len(data)
	}
	return r.prefix + ":kind:" + hex.EncodeToString(data[:n])
}

// Get returns the record at key.
func (r *RedisStore) Get(ctx context.Context, key solana.PublicKey) (Entry, error) {
	return r.get(ctx, r.client, key)
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (r *RedisStore) get(ctx context.Context, c hashReader, key solana.PublicKey) (Entry, error) {
	vals, err := c.HGetAll(ctx, r.recordKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis get error: %w", err)
	}
	if len(vals) == 0 {
		return Entry{}, notFound(key)
	}
	version, err := strconv.ParseUint(vals["version"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("record %s has invalid version: %w", key, err)
	}
	return Entry{Data: []byte(vals["data"]), Version: version}, nil
}

// Commit applies writes in one transaction. A concurrent change to any
// watched key aborts the transaction with ErrConflict.
func (r *RedisStore) Commit(ctx context.Context, writes []Write) error {
	if err := validate(writes); err != nil {
		return err
	}

	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = r.recordKey(w.Key)
	}

	txf := func(tx *redis.Tx) error {
		current := make([]Entry, len(writes))
		for i, w := range writes {
			e, err := r.get(ctx, tx, w.Key)
			if err != nil && !isNotFound(err) {
				return err
			}
			if e.Version != w.ExpectedVersion {
				return ErrConflict
			}
			current[i] = e
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				member := w.Key.String()
				if w.Delete {
					pipe.Del(ctx, keys[i])
					pipe.SRem(ctx, r.indexKey(current[i].Data), member)
					continue
				}
				pipe.HSet(ctx, keys[i], "data", w.Data, "version", w.ExpectedVersion+1)
				pipe.SAdd(ctx, r.indexKey(w.Data), member)
			}
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("redis commit error: %w", err)
	}
	return err
}

// List returns keys indexed under the record kind in prefix. The prefix must
// be a full 8-byte discriminator.
func (r *RedisStore) List(ctx context.Context, prefix []byte) ([]solana.PublicKey, error) {
	members, err := r.client.SMembers(ctx, r.indexKey(prefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list error: %w", err)
	}
	sort.Strings(members)
	keys := make([]solana.PublicKey, 0, len(members))
	for _, m := range members {
		k, err := solana.PublicKeyFromBase58(m)
		if err != nil {
			return nil, fmt.Errorf("invalid indexed key %q: %w", m, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Ping checks if Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
