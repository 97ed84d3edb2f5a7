package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"iter"

	"github.com/dgraph-io/badger/v4"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type collection struct {
	store  *Store
	name   string
	prefix []byte
}

func newCollection(s *Store, name string) *collection {
	return &collection{store: s, name: name, prefix: collectionPrefix(name)}
}

func (c *collection) Name() string { return c.name }

func (c *collection) Get(ctx context.Context, tx domain.Transaction, key []byte) ([]byte, bool, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if err := t.checkVisible(c.name); err != nil {
		return nil, false, err
	}
	item, err := t.txn.Get(dataKey(c.prefix, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *collection) Set(ctx context.Context, tx domain.Transaction, key, value []byte) error {
	t, err := c.writer(ctx, tx)
	if err != nil {
		return err
	}
	return mapError(t.txn.Set(dataKey(c.prefix, key), bytes.Clone(value)))
}

func (c *collection) Delete(ctx context.Context, tx domain.Transaction, key []byte) (bool, error) {
	t, err := c.writer(ctx, tx)
	if err != nil {
		return false, err
	}
	k := dataKey(c.prefix, key)
	if _, err := t.txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	} else if err != nil {
		return false, mapError(err)
	}
	if err := t.txn.Delete(k); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (c *collection) writer(ctx context.Context, tx domain.Transaction) (*transaction, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !t.writable {
		return nil, domain.ErrReadOnlyTransaction
	}
	if err := t.checkVisible(c.name); err != nil {
		return nil, err
	}
	return t, nil
}

// Scan iterates the collection's key range with a badger iterator that is
// open for the duration of the iteration. Callers must not write to tx
// until the iteration ends.
func (c *collection) Scan(ctx context.Context, tx domain.Transaction, lo, hi []byte) iter.Seq2[domain.Entry, error] {
	return func(yield func(domain.Entry, error) bool) {
		t, err := c.store.begin(ctx, tx)
		if err != nil {
			yield(domain.Entry{}, err)
			return
		}
		if err := t.checkVisible(c.name); err != nil {
			yield(domain.Entry{}, err)
			return
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = c.prefix
		it := t.txn.NewIterator(opts)
		defer it.Close()

		start := c.prefix
		if lo != nil {
			start = dataKey(c.prefix, lo)
		}
		var end []byte
		if hi != nil {
			end = dataKey(c.prefix, hi)
		}

		for it.Seek(start); it.ValidForPrefix(c.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				yield(domain.Entry{}, err)
				return
			}
			item := it.Item()
			if end != nil && bytes.Compare(item.Key(), end) > 0 {
				return
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				yield(domain.Entry{}, err)
				return
			}
			key := bytes.Clone(item.Key()[len(c.prefix):])
			if !yield(domain.Entry{Key: key, Value: value}, nil) {
				return
			}
		}
	}
}

func (c *collection) Count(ctx context.Context, tx domain.Transaction) (int64, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := t.checkVisible(c.name); err != nil {
		return 0, err
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = c.prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var n int64
	for it.Seek(c.prefix); it.ValidForPrefix(c.prefix); it.Next() {
		n++
	}
	return n, nil
}
