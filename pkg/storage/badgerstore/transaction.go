package badgerstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type transaction struct {
	id       string
	store    *Store
	txn      *badger.Txn
	writable bool
	done     bool

	created map[string]struct{}
	removed map[string]struct{}
}

func (t *transaction) ID() string     { return t.id }
func (t *transaction) Writable() bool { return t.writable }

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTransactionClosed
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		t.txn.Discard()
		return err
	}
	if !t.writable {
		t.txn.Discard()
		return nil
	}
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", t.id, mapError(err))
	}
	return nil
}

func (t *transaction) Abort() error {
	t.done = true
	t.txn.Discard()
	return nil
}

// checkVisible fails when name does not exist as seen by t. The directory
// entry is read through the badger transaction, so a concurrent removal of
// the collection conflicts with t.
func (t *transaction) checkVisible(name string) error {
	if _, ok := t.created[name]; ok {
		return nil
	}
	if _, ok := t.removed[name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	_, err := t.txn.Get(directoryKey(name))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return mapError(err)
}
