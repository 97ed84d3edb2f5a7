package domain

import (
	"context"
	"iter"
)

// StateManager is the transactional state store the index layer runs on.
// It owns a directory of named collections; every read and write goes
// through an explicit Transaction obtained from BeginTransaction.
type StateManager interface {
	// BeginTransaction starts a new transaction. Read-only transactions
	// reject writes with ErrReadOnlyTransaction.
	BeginTransaction(ctx context.Context, writable bool) (Transaction, error)

	// GetOrCreateCollection returns the named collection, creating it inside
	// tx when absent. Safe under concurrent callers: creators of the same
	// name converge on one collection.
	GetOrCreateCollection(ctx context.Context, tx Transaction, name string) (Collection, error)

	// TryGetCollection returns the named collection if it exists as seen by
	// tx. It never creates anything.
	TryGetCollection(ctx context.Context, tx Transaction, name string) (Collection, bool, error)

	// RemoveCollection deletes the named collection and all of its entries
	// inside tx. Removing an absent collection is a no-op.
	RemoveCollection(ctx context.Context, tx Transaction, name string) error

	// EnumerateCollections lists every committed collection.
	EnumerateCollections(ctx context.Context) ([]Collection, error)

	Close() error
}

// Transaction groups reads and writes that commit or abort together.
type Transaction interface {
	ID() string
	Writable() bool
	Commit(ctx context.Context) error
	// Abort discards the transaction. Aborting a finished transaction is a no-op.
	Abort() error
}

// Entry is a single key/value pair read from a collection.
type Entry struct {
	Key   []byte
	Value []byte
}

// Collection is a named, ordered byte-keyed map inside a StateManager.
type Collection interface {
	Name() string
	Get(ctx context.Context, tx Transaction, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, tx Transaction, key, value []byte) error
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, tx Transaction, key []byte) (bool, error)
	// Scan yields entries with lo <= key <= hi in key order. A nil bound is
	// open. The sequence reads lazily and may be iterated again.
	Scan(ctx context.Context, tx Transaction, lo, hi []byte) iter.Seq2[Entry, error]
	Count(ctx context.Context, tx Transaction) (int64, error)
}
