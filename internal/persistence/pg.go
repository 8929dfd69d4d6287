package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// PGStore is a Postgres-backed Store: a flat kv table plus a change_log
// table that records every put/del in commit order, which Diff replays
// from. Cookies are the change_log's own serial id, stringified.
type PGStore struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) Get(ctx context.Context, key string) (value.Value, bool, error) {
	return get(ctx, s.pool, key)
}

func get(ctx context.Context, q pgxQuerier, key string) (value.Value, bool, error) {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return value.Null(), false, nil
	}
	if err != nil {
		return value.Value{}, false, err
	}
	v, err := decodeValue(raw)
	return v, true, err
}

func (s *PGStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *PGStore) Scan(ctx context.Context, prefix string) ([]KV, error) {
	return scan(ctx, s.pool, prefix)
}

func scan(ctx context.Context, q pgxQuerier, prefix string) ([]KV, error) {
	rows, err := q.Query(ctx, `SELECT key, value FROM kv WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: key, Value: v})
	}
	return out, rows.Err()
}

func (s *PGStore) Put(ctx context.Context, key string, val value.Value) error {
	return s.WriteTransaction(ctx, func(tx Tx) error { return tx.Put(ctx, key, val) })
}

func (s *PGStore) Del(ctx context.Context, key string) error {
	return s.WriteTransaction(ctx, func(tx Tx) error { return tx.Del(ctx, key) })
}

func (s *PGStore) Cookie(ctx context.Context) (string, error) {
	var c int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM change_log`).Scan(&c)
	return fmt.Sprintf("%d", c), err
}

func (s *PGStore) BaseCookie(ctx context.Context) (string, error) {
	var c int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MIN(id), 0) FROM change_log`).Scan(&c)
	return fmt.Sprintf("%d", c), err
}

func (s *PGStore) Diff(ctx context.Context, sinceCookie string, sink Sink) (string, error) {
	var since int64
	fmt.Sscanf(sinceCookie, "%d", &since)

	rows, err := s.pool.Query(ctx, `SELECT id, key, value, deleted FROM change_log WHERE id > $1 ORDER BY id`, since)
	if err != nil {
		return sinceCookie, err
	}
	defer rows.Close()

	latest := since
	for rows.Next() {
		var id int64
		var key string
		var raw []byte
		var deleted bool
		if err := rows.Scan(&id, &key, &raw, &deleted); err != nil {
			return sinceCookie, err
		}
		latest = id
		if deleted {
			if err := sink.Del(key); err != nil {
				return sinceCookie, err
			}
			continue
		}
		v, err := decodeValue(raw)
		if err != nil {
			return sinceCookie, err
		}
		if err := sink.Put(key, v); err != nil {
			return sinceCookie, err
		}
	}
	return fmt.Sprintf("%d", latest), rows.Err()
}

// pgxQuerier is the subset of *pgxpool.Pool and pgx.Tx this package needs,
// letting get/scan run identically inside or outside a transaction.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, key string) (value.Value, bool, error) {
	return get(ctx, t.tx, key)
}

func (t *pgTx) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

func (t *pgTx) Scan(ctx context.Context, prefix string) ([]KV, error) {
	return scan(ctx, t.tx, prefix)
}

func (t *pgTx) Put(ctx context.Context, key string, val value.Value) error {
	raw, err := encodeValue(val)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, raw); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO change_log (key, value, deleted) VALUES ($1, $2, false)`, key, raw)
	return err
}

func (t *pgTx) Del(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO change_log (key, value, deleted) VALUES ($1, '{}', true)`, key)
	return err
}

func (s *PGStore) WriteTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *PGStore) ReadTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}
