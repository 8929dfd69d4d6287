// Package persistence implements the durable key-value layer that backs
// source state across restarts: a flat keyspace, cookie-based change
// tracking for resuming a sync session, and a diff operation used to
// replay everything that changed since a client's last known cookie
// (§6.2).
package persistence

import (
	"context"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// KV is one stored key/value pair, returned by Scan.
type KV struct {
	Key   string
	Value value.Value
}

// Sink receives the rows a Diff call replays, in commit order.
type Sink interface {
	Put(key string, val value.Value) error
	Del(key string) error
}

// Tx is the subset of Store available inside a transaction.
type Tx interface {
	Get(ctx context.Context, key string) (value.Value, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, prefix string) ([]KV, error)
	Put(ctx context.Context, key string, val value.Value) error
	Del(ctx context.Context, key string) error
}

// Store is the durable key-value store a source persists its rows to.
// Every mutating operation runs inside WriteTransaction, which also
// advances the store's cookie; ReadTransaction gives a consistent
// snapshot without taking the write lock.
type Store interface {
	Tx

	// Cookie returns the store's current cookie: an opaque, monotonically
	// advancing marker of "everything written up to and including here."
	Cookie(ctx context.Context) (string, error)

	// BaseCookie returns the cookie the store was initialized from (its
	// oldest retained point), used to detect when a client's requested
	// base cookie has fallen off the retained history and needs a full
	// resync instead of a diff.
	BaseCookie(ctx context.Context) (string, error)

	// Diff replays every put/del recorded strictly after sinceCookie, in
	// commit order, into sink. It returns the cookie the replay catches
	// the caller up to.
	Diff(ctx context.Context, sinceCookie string, sink Sink) (string, error)

	WriteTransaction(ctx context.Context, fn func(tx Tx) error) error
	ReadTransaction(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
