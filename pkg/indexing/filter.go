package indexing

import (
	"context"
	"fmt"
	"iter"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// Lookup returns the primary keys stored under the encoded index key ik. An
// index key with no entry yields an empty slice.
func Lookup[K any](ctx context.Context, tx domain.Transaction, coll domain.Collection, keys Codec[K], ik []byte) ([]K, error) {
	set, err := loadMembers(ctx, tx, coll, ik)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", coll.Name(), err)
	}
	out := make([]K, 0, set.Len())
	for _, member := range set.Members() {
		k, err := keys.Decode(member)
		if err != nil {
			return nil, fmt.Errorf("failed to decode primary key in index %s: %w", coll.Name(), err)
		}
		out = append(out, k)
	}
	return out, nil
}

// RangeLookup yields the primary keys stored under every index key in
// [lo, hi], in index key order. A nil bound is open. Each primary key is
// yielded at most once per iteration even when it is stored under several
// index keys in range. The sequence reads lazily and can be iterated again.
func RangeLookup[K any](ctx context.Context, tx domain.Transaction, coll domain.Collection, keys Codec[K], lo, hi []byte) iter.Seq2[K, error] {
	return func(yield func(K, error) bool) {
		var zero K
		seen := make(map[string]struct{})
		for entry, err := range coll.Scan(ctx, tx, lo, hi) {
			if err != nil {
				yield(zero, fmt.Errorf("failed to scan index %s: %w", coll.Name(), err))
				return
			}
			set, err := DecodeMemberSet(entry.Value)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, member := range set.Members() {
				if _, ok := seen[string(member)]; ok {
					continue
				}
				seen[string(member)] = struct{}{}
				k, err := keys.Decode(member)
				if err != nil {
					yield(zero, fmt.Errorf("failed to decode primary key in index %s: %w", coll.Name(), err))
					return
				}
				if !yield(k, nil) {
					return
				}
			}
		}
	}
}
