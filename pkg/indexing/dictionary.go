package indexing

import (
	"context"
	"fmt"
	"iter"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// KeyValue is a primary entry.
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

// IndexedDictionary is a resolved bundle. Every mutation of the primary
// collection goes through the maintainer, so index collections always mirror
// the primary within the caller's transaction.
//
// A dictionary is bound to the physical collections it was resolved from,
// not to the transaction it was resolved in; any transaction of the same
// StateManager may be passed to its methods.
type IndexedDictionary[K, V any] struct {
	store      string
	primary    domain.Collection
	indexes    []boundIndex[K, V]
	keys       Codec[K]
	values     Codec[V]
	maintainer *maintainer[K, V]
}

// Name returns the logical store name.
func (d *IndexedDictionary[K, V]) Name() string {
	return d.store
}

// Indexes returns the declared index names in name order.
func (d *IndexedDictionary[K, V]) Indexes() []string {
	names := make([]string, 0, len(d.indexes))
	for _, bi := range d.indexes {
		names = append(names, bi.def.Name())
	}
	return names
}

// Collections returns the physical collection names, primary first.
func (d *IndexedDictionary[K, V]) Collections() []string {
	names := make([]string, 0, len(d.indexes)+1)
	names = append(names, d.primary.Name())
	for _, bi := range d.indexes {
		names = append(names, bi.coll.Name())
	}
	return names
}

func (d *IndexedDictionary[K, V]) Get(ctx context.Context, tx domain.Transaction, key K) (V, bool, error) {
	var zero V
	kb, err := d.keys.Encode(key)
	if err != nil {
		return zero, false, err
	}
	state, err := d.load(ctx, tx, "get", key, kb)
	if err != nil || state == nil {
		return zero, false, err
	}
	return state.value, true, nil
}

func (d *IndexedDictionary[K, V]) ContainsKey(ctx context.Context, tx domain.Transaction, key K) (bool, error) {
	kb, err := d.keys.Encode(key)
	if err != nil {
		return false, err
	}
	_, ok, err := d.primary.Get(ctx, tx, kb)
	if err != nil {
		return false, &IndexError{Op: "contains", Phase: PhasePrimary, Err: err}
	}
	return ok, nil
}

// Add inserts a new entry. It fails with ErrKeyExists when key is present.
func (d *IndexedDictionary[K, V]) Add(ctx context.Context, tx domain.Transaction, key K, value V) error {
	added, err := d.TryAdd(ctx, tx, key, value)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: store %s", ErrKeyExists, d.store)
	}
	return nil
}

// TryAdd inserts a new entry and reports false, writing nothing, when key is
// already present.
func (d *IndexedDictionary[K, V]) TryAdd(ctx context.Context, tx domain.Transaction, key K, value V) (bool, error) {
	kb, err := d.keys.Encode(key)
	if err != nil {
		return false, err
	}
	old, err := d.load(ctx, tx, "add", key, kb)
	if err != nil {
		return false, err
	}
	if old != nil {
		return false, nil
	}
	if err := d.write(ctx, tx, "add", kb, nil, &entryState[K, V]{key: key, value: value}); err != nil {
		return false, err
	}
	return true, nil
}

// Set inserts or replaces the entry for key.
func (d *IndexedDictionary[K, V]) Set(ctx context.Context, tx domain.Transaction, key K, value V) error {
	kb, err := d.keys.Encode(key)
	if err != nil {
		return err
	}
	old, err := d.load(ctx, tx, "set", key, kb)
	if err != nil {
		return err
	}
	return d.write(ctx, tx, "set", kb, old, &entryState[K, V]{key: key, value: value})
}

// AddOrUpdate stores addValue when key is absent and update(key, current)
// otherwise. It returns the value that was stored.
func (d *IndexedDictionary[K, V]) AddOrUpdate(ctx context.Context, tx domain.Transaction, key K, addValue V, update func(K, V) V) (V, error) {
	var zero V
	kb, err := d.keys.Encode(key)
	if err != nil {
		return zero, err
	}
	old, err := d.load(ctx, tx, "add_or_update", key, kb)
	if err != nil {
		return zero, err
	}
	next := addValue
	if old != nil {
		next = update(key, old.value)
	}
	if err := d.write(ctx, tx, "add_or_update", kb, old, &entryState[K, V]{key: key, value: next}); err != nil {
		return zero, err
	}
	return next, nil
}

// TryUpdate replaces the value of an existing entry. It reports false,
// writing nothing, when key is absent.
func (d *IndexedDictionary[K, V]) TryUpdate(ctx context.Context, tx domain.Transaction, key K, value V) (bool, error) {
	kb, err := d.keys.Encode(key)
	if err != nil {
		return false, err
	}
	old, err := d.load(ctx, tx, "update", key, kb)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	if err := d.write(ctx, tx, "update", kb, old, &entryState[K, V]{key: key, value: value}); err != nil {
		return false, err
	}
	return true, nil
}

// TryRemove deletes the entry for key and returns the removed value.
func (d *IndexedDictionary[K, V]) TryRemove(ctx context.Context, tx domain.Transaction, key K) (V, bool, error) {
	var zero V
	kb, err := d.keys.Encode(key)
	if err != nil {
		return zero, false, err
	}
	old, err := d.load(ctx, tx, "remove", key, kb)
	if err != nil {
		return zero, false, err
	}
	if old == nil {
		return zero, false, nil
	}
	if err := d.write(ctx, tx, "remove", kb, old, nil); err != nil {
		return zero, false, err
	}
	return old.value, true, nil
}

// Clear removes every entry from the primary collection and every index.
func (d *IndexedDictionary[K, V]) Clear(ctx context.Context, tx domain.Transaction) error {
	if err := clearCollection(ctx, tx, d.primary); err != nil {
		return &IndexError{Op: "clear", Phase: PhasePrimary, Err: err}
	}
	for _, bi := range d.indexes {
		if err := clearCollection(ctx, tx, bi.coll); err != nil {
			return &IndexError{Op: "clear", Phase: PhaseIndex, Index: bi.def.Name(), Err: err}
		}
	}
	return nil
}

func clearCollection(ctx context.Context, tx domain.Transaction, coll domain.Collection) error {
	var keys [][]byte
	for entry, err := range coll.Scan(ctx, tx, nil, nil) {
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
	}
	for _, k := range keys {
		if _, err := coll.Delete(ctx, tx, k); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of primary entries.
func (d *IndexedDictionary[K, V]) Count(ctx context.Context, tx domain.Transaction) (int64, error) {
	n, err := d.primary.Count(ctx, tx)
	if err != nil {
		return 0, &IndexError{Op: "count", Phase: PhasePrimary, Err: err}
	}
	return n, nil
}

// Enumerate yields every primary entry in encoded key order.
func (d *IndexedDictionary[K, V]) Enumerate(ctx context.Context, tx domain.Transaction) iter.Seq2[KeyValue[K, V], error] {
	return d.EnumerateRange(ctx, tx, nil, nil)
}

// EnumerateRange yields primary entries whose encoded keys fall in [lo, hi].
// A nil bound is open.
func (d *IndexedDictionary[K, V]) EnumerateRange(ctx context.Context, tx domain.Transaction, lo, hi []byte) iter.Seq2[KeyValue[K, V], error] {
	return func(yield func(KeyValue[K, V], error) bool) {
		for entry, err := range d.primary.Scan(ctx, tx, lo, hi) {
			if err != nil {
				yield(KeyValue[K, V]{}, &IndexError{Op: "enumerate", Phase: PhasePrimary, Err: err})
				return
			}
			kv, err := d.decodeEntry(entry)
			if err != nil {
				yield(KeyValue[K, V]{}, err)
				return
			}
			if !yield(kv, nil) {
				return
			}
		}
	}
}

// FilterKeys returns the primary keys stored under ik.
func (d *IndexedDictionary[K, V]) FilterKeys(ctx context.Context, tx domain.Transaction, ik IndexKey) ([]K, error) {
	bi, err := d.index(ik.Index())
	if err != nil {
		return nil, err
	}
	raw, err := ik.Bytes()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: lookup on %q needs a key", ErrInvalidIndex, ik.Index())
	}
	keys, err := Lookup(ctx, tx, bi.coll, d.keys, raw)
	if err != nil {
		return nil, &IndexError{Op: "filter", Phase: PhaseIndex, Index: bi.def.Name(), Err: err}
	}
	return keys, nil
}

// Filter returns the primary entries stored under ik.
func (d *IndexedDictionary[K, V]) Filter(ctx context.Context, tx domain.Transaction, ik IndexKey) ([]KeyValue[K, V], error) {
	keys, err := d.FilterKeys(ctx, tx, ik)
	if err != nil {
		return nil, err
	}
	out := make([]KeyValue[K, V], 0, len(keys))
	for _, k := range keys {
		v, ok, err := d.Get(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, KeyValue[K, V]{Key: k, Value: v})
		}
	}
	return out, nil
}

// RangeFilterKeys yields the primary keys stored under index keys in
// [lo, hi]. Both bounds must belong to the same ordered index; use
// OpenBound for an unlimited side.
func (d *IndexedDictionary[K, V]) RangeFilterKeys(ctx context.Context, tx domain.Transaction, lo, hi IndexKey) iter.Seq2[K, error] {
	return func(yield func(K, error) bool) {
		var zero K
		bi, loRaw, hiRaw, err := d.rangeBounds(lo, hi)
		if err != nil {
			yield(zero, err)
			return
		}
		for k, err := range RangeLookup(ctx, tx, bi.coll, d.keys, loRaw, hiRaw) {
			if err != nil {
				yield(zero, &IndexError{Op: "range_filter", Phase: PhaseIndex, Index: bi.def.Name(), Err: err})
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

// RangeFilter is RangeFilterKeys resolved to primary entries.
func (d *IndexedDictionary[K, V]) RangeFilter(ctx context.Context, tx domain.Transaction, lo, hi IndexKey) iter.Seq2[KeyValue[K, V], error] {
	return func(yield func(KeyValue[K, V], error) bool) {
		for k, err := range d.RangeFilterKeys(ctx, tx, lo, hi) {
			if err != nil {
				yield(KeyValue[K, V]{}, err)
				return
			}
			v, ok, err := d.Get(ctx, tx, k)
			if err != nil {
				yield(KeyValue[K, V]{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(KeyValue[K, V]{Key: k, Value: v}, nil) {
				return
			}
		}
	}
}

func (d *IndexedDictionary[K, V]) rangeBounds(lo, hi IndexKey) (boundIndex[K, V], []byte, []byte, error) {
	if lo.Index() != hi.Index() {
		return boundIndex[K, V]{}, nil, nil, fmt.Errorf("%w: range bounds belong to %q and %q", ErrInvalidIndex, lo.Index(), hi.Index())
	}
	bi, err := d.index(lo.Index())
	if err != nil {
		return boundIndex[K, V]{}, nil, nil, err
	}
	if !bi.def.Ordered() {
		return boundIndex[K, V]{}, nil, nil, fmt.Errorf("%w: %s", ErrUnorderedIndex, bi.def.Name())
	}
	loRaw, err := lo.Bytes()
	if err != nil {
		return boundIndex[K, V]{}, nil, nil, err
	}
	hiRaw, err := hi.Bytes()
	if err != nil {
		return boundIndex[K, V]{}, nil, nil, err
	}
	return bi, loRaw, hiRaw, nil
}

func (d *IndexedDictionary[K, V]) index(name string) (boundIndex[K, V], error) {
	for _, bi := range d.indexes {
		if bi.def.Name() == name {
			return bi, nil
		}
	}
	return boundIndex[K, V]{}, fmt.Errorf("%w: %q on store %s", ErrIndexNotFound, name, d.store)
}

// load reads the current entry for key. A nil state means absent.
func (d *IndexedDictionary[K, V]) load(ctx context.Context, tx domain.Transaction, op string, key K, kb []byte) (*entryState[K, V], error) {
	data, ok, err := d.primary.Get(ctx, tx, kb)
	if err != nil {
		return nil, &IndexError{Op: op, Phase: PhasePrimary, Err: err}
	}
	if !ok {
		return nil, nil
	}
	value, err := d.values.Decode(data)
	if err != nil {
		return nil, &IndexError{Op: op, Phase: PhasePrimary, Err: err}
	}
	return &entryState[K, V]{key: key, value: value}, nil
}

// write applies one primary mutation and its index maintenance. A nil after
// deletes the entry.
func (d *IndexedDictionary[K, V]) write(ctx context.Context, tx domain.Transaction, op string, kb []byte, before, after *entryState[K, V]) error {
	if err := d.maintainer.apply(ctx, tx, op, kb, before, after); err != nil {
		return err
	}
	if after == nil {
		if _, err := d.primary.Delete(ctx, tx, kb); err != nil {
			return &IndexError{Op: op, Phase: PhasePrimary, Err: err}
		}
		return nil
	}
	data, err := d.values.Encode(after.value)
	if err != nil {
		return &IndexError{Op: op, Phase: PhasePrimary, Err: err}
	}
	if err := d.primary.Set(ctx, tx, kb, data); err != nil {
		return &IndexError{Op: op, Phase: PhasePrimary, Err: err}
	}
	return nil
}

func (d *IndexedDictionary[K, V]) decodeEntry(entry domain.Entry) (KeyValue[K, V], error) {
	k, err := d.keys.Decode(entry.Key)
	if err != nil {
		return KeyValue[K, V]{}, fmt.Errorf("failed to decode key in %s: %w", d.primary.Name(), err)
	}
	v, err := d.values.Decode(entry.Value)
	if err != nil {
		return KeyValue[K, V]{}, fmt.Errorf("failed to decode value in %s: %w", d.primary.Name(), err)
	}
	return KeyValue[K, V]{Key: k, Value: v}, nil
}
