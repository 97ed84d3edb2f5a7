package memory

import (
	"bytes"
	"context"
	"iter"
	"slices"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// collection is a handle on a committed or staged collection. It carries no
// data; every call resolves the collection through the transaction.
type collection struct {
	store *Store
	id    uint64
	name  string
}

func (c *collection) Name() string { return c.name }

// ref is the id the handle refers to now. A staged creation that lost the
// race to another creator of the same name refers to the winner's id.
func (c *collection) ref() uint64 {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.store.canonical(c.id)
}

func (c *collection) Get(ctx context.Context, tx domain.Transaction, key []byte) ([]byte, bool, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	return c.get(t, c.ref(), string(key))
}

func (c *collection) get(t *transaction, id uint64, key string) ([]byte, bool, error) {
	if w, ok := t.writes[id][key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return bytes.Clone(w.value), true, nil
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	cd, err := t.visible(id)
	if err != nil {
		return nil, false, err
	}
	var e entry
	if cd != nil {
		e = cd.entries[key]
	}
	t.recordRead(id, key, e.version)
	if e.version == 0 {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

func (c *collection) Set(ctx context.Context, tx domain.Transaction, key, value []byte) error {
	t, id, err := c.writer(ctx, tx)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	t.stage(id, string(key), pendingWrite{value: bytes.Clone(value)})
	return nil
}

func (c *collection) Delete(ctx context.Context, tx domain.Transaction, key []byte) (bool, error) {
	t, id, err := c.writer(ctx, tx)
	if err != nil {
		return false, err
	}
	_, ok, err := c.get(t, id, string(key))
	if err != nil || !ok {
		return false, err
	}
	t.stage(id, string(key), pendingWrite{deleted: true})
	return true, nil
}

func (c *collection) writer(ctx context.Context, tx domain.Transaction) (*transaction, uint64, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if !t.writable {
		return nil, 0, domain.ErrReadOnlyTransaction
	}
	c.store.mu.RLock()
	id := c.store.canonical(c.id)
	_, err = t.visible(id)
	c.store.mu.RUnlock()
	if err != nil {
		return nil, 0, err
	}
	return t, id, nil
}

// Scan materializes the range when iteration starts, merging the
// transaction's own writes over the committed entries.
func (c *collection) Scan(ctx context.Context, tx domain.Transaction, lo, hi []byte) iter.Seq2[domain.Entry, error] {
	return func(yield func(domain.Entry, error) bool) {
		t, err := c.store.begin(ctx, tx)
		if err != nil {
			yield(domain.Entry{}, err)
			return
		}
		merged, err := c.snapshot(t, lo, hi)
		if err != nil {
			yield(domain.Entry{}, err)
			return
		}

		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield(domain.Entry{}, err)
				return
			}
			if !yield(domain.Entry{Key: []byte(k), Value: merged[k]}, nil) {
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
	merged, err := c.snapshot(t, nil, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(merged)), nil
}

// snapshot returns the entries in [lo, hi] visible to t and records the scan
// for validation.
func (c *collection) snapshot(t *transaction, lo, hi []byte) (map[string][]byte, error) {
	inRange := func(k string) bool {
		if lo != nil && k < string(lo) {
			return false
		}
		if hi != nil && k > string(hi) {
			return false
		}
		return true
	}

	merged := make(map[string][]byte)
	c.store.mu.RLock()
	id := c.store.canonical(c.id)
	cd, err := t.visible(id)
	if err != nil {
		c.store.mu.RUnlock()
		return nil, err
	}
	var version uint64
	if cd != nil {
		version = cd.modVersion
		for k, e := range cd.entries {
			if inRange(k) {
				merged[k] = bytes.Clone(e.value)
			}
		}
	}
	c.store.mu.RUnlock()
	t.recordScan(id, version)

	for k, w := range t.writes[id] {
		if !inRange(k) {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = bytes.Clone(w.value)
		}
	}
	return merged, nil
}
