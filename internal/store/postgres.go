package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key        TEXT PRIMARY KEY,
	kind       BYTEA NOT NULL,
	version    BIGINT NOT NULL,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_kind_idx ON records (kind);
`

// PostgresStore keeps records in a single versioned table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and creates the schema when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get returns the record at key.
func (s *PostgresStore) Get(ctx context.Context, key solana.PublicKey) (Entry, error) {
	var e Entry
	var version int64
	row := s.pool.QueryRow(ctx, `SELECT data, version FROM records WHERE key=$1`, key.String())
	if err := row.Scan(&e.Data, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, notFound(key)
		}
		return Entry{}, err
	}
	e.Version = uint64(version)
	return e, nil
}

// Commit applies writes in one transaction. Each statement is guarded by the
// expected version; any statement that matches no row rolls back the batch.
func (s *PostgresStore) Commit(ctx context.Context, writes []Write) error {
	if err := validate(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, w := range writes {
		key := w.Key.String()
		switch {
		case w.Delete:
			batch.Queue(`DELETE FROM records WHERE key=$1 AND version=$2`, key, int64(w.ExpectedVersion))
		case w.ExpectedVersion == 0:
			batch.Queue(`
				INSERT INTO records (key, kind, version, data, updated_at)
				VALUES ($1, $2, 1, $3, now())
				ON CONFLICT (key) DO NOTHING
			`, key, kindPrefix(w.Data), w.Data)
		default:
			batch.Queue(`
				UPDATE records SET data=$3, kind=$4, version=version+1, updated_at=now()
				WHERE key=$1 AND version=$2
			`, key, int64(w.ExpectedVersion), w.Data, kindPrefix(w.Data))
		}
	}

	br := tx.SendBatch(ctx, batch)
	for range writes {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return err
		}
		if tag.RowsAffected() != 1 {
			br.Close()
			return ErrConflict
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// List returns keys whose kind column matches prefix.
func (s *PostgresStore) List(ctx context.Context, prefix []byte) ([]solana.PublicKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM records WHERE kind=$1 ORDER BY key`, kindPrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []solana.PublicKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		k, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid stored key %q: %w", raw, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping checks if Postgres is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func kindPrefix(data []byte) []byte {
	if len(data) < 8 {
		return data
	}
	return data[:8]
}
