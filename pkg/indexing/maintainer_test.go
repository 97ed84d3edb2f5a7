package indexing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// checkIndexes asserts that every index collection of dict holds exactly the
// members derived from the primary collection, and no empty member sets.
func checkIndexes(t *testing.T, ctx context.Context, tx domain.Transaction, dict *IndexedDictionary[string, person]) {
	t.Helper()

	for _, bi := range dict.indexes {
		want := make(map[string][][]byte)
		for entry, err := range dict.primary.Scan(ctx, tx, nil, nil) {
			require.NoError(t, err)
			kv, err := dict.decodeEntry(entry)
			require.NoError(t, err)
			keys, err := bi.def.IndexKeys(kv.Key, kv.Value)
			require.NoError(t, err)
			for _, ik := range keys {
				members := want[string(ik)]
				if !slices.ContainsFunc(members, func(m []byte) bool { return bytes.Equal(m, entry.Key) }) {
					want[string(ik)] = append(members, entry.Key)
				}
			}
		}
		for ik := range want {
			slices.SortFunc(want[ik], bytes.Compare)
		}

		got := make(map[string][][]byte)
		for entry, err := range bi.coll.Scan(ctx, tx, nil, nil) {
			require.NoError(t, err)
			set, err := DecodeMemberSet(entry.Value)
			require.NoError(t, err)
			require.NotZero(t, set.Len(), "index %s holds an empty member set under %q", bi.def.Name(), entry.Key)
			got[string(entry.Key)] = set.Members()
		}

		assert.Equal(t, want, got, "index %s out of sync with primary", bi.def.Name())
	}
}

func TestMaintainer_RandomizedSequencesKeepIndexesInSync(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	dict := getOrAdd(t, r, "people", byAge(), byCity(), byBio())

	rng := rand.New(rand.NewSource(42))
	cities := []string{"leeds", "york", "hull"}
	words := []string{"go", "rust", "zig", "Go", "tea", "coffee"}
	randomPerson := func() person {
		return person{
			Name: fmt.Sprintf("n%d", rng.Intn(5)),
			Age:  rng.Intn(4) - 1,
			City: cities[rng.Intn(len(cities))],
			Bio:  words[rng.Intn(len(words))] + " " + words[rng.Intn(len(words))],
		}
	}

	for step := 0; step < 300; step++ {
		key := fmt.Sprintf("k%d", rng.Intn(12))
		require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
			switch rng.Intn(5) {
			case 0:
				_, err := dict.TryAdd(ctx, tx, key, randomPerson())
				return err
			case 1:
				return dict.Set(ctx, tx, key, randomPerson())
			case 2:
				_, err := dict.TryUpdate(ctx, tx, key, randomPerson())
				return err
			case 3:
				_, err := dict.AddOrUpdate(ctx, tx, key, randomPerson(), func(_ string, p person) person {
					p.Age++
					return p
				})
				return err
			default:
				_, _, err := dict.TryRemove(ctx, tx, key)
				return err
			}
		}), "step %d", step)

		require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
			checkIndexes(t, ctx, tx, dict)
			return nil
		}), "step %d", step)
	}
}

func totalWrites(m *Metrics, collections ...string) float64 {
	var total float64
	for _, c := range collections {
		for _, op := range []indexWrite{writeAdd, writeRemove, writeDelete} {
			total += testutil.ToFloat64(m.indexWrites.WithLabelValues(c, string(op)))
		}
	}
	return total
}

func TestMaintainer_UnchangedIndexKeyWritesNothing(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(sm, WithMetrics[string, person](metrics))
	dict := getOrAdd(t, r, "people", byAge(), byCity())

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Add(ctx, tx, "p1", person{Name: "ann", Age: 30, City: "leeds"})
	}))
	assert.Equal(t, 2.0, totalWrites(metrics, "people/age", "people/city"))

	// only the name changes, which no index covers
	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Set(ctx, tx, "p1", person{Name: "anne", Age: 30, City: "leeds"})
	}))
	assert.Equal(t, 2.0, totalWrites(metrics, "people/age", "people/city"))

	// the age changes: one delete of the old key, one add of the new
	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Set(ctx, tx, "p1", person{Name: "anne", Age: 31, City: "leeds"})
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.indexWrites.WithLabelValues("people/age", string(writeDelete))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.indexWrites.WithLabelValues("people/age", string(writeAdd))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.indexWrites.WithLabelValues("people/city", string(writeAdd))))
}

func TestMaintainer_SharedIndexKeyKeepsOtherMembers(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewRegistry(sm, WithMetrics[string, person](metrics))
	city := byCity()
	dict := getOrAdd(t, r, "people", city)

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		require.NoError(t, dict.Add(ctx, tx, "p1", person{City: "york"}))
		require.NoError(t, dict.Add(ctx, tx, "p2", person{City: "york"}))
		_, removed, err := dict.TryRemove(ctx, tx, "p1")
		require.True(t, removed)
		return err
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.indexWrites.WithLabelValues("people/city", string(writeRemove))))
	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		keys, err := dict.FilterKeys(ctx, tx, city.Key("york"))
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, keys)
		return nil
	}))
}

func TestMaintainer_AbortRollsBackPrimaryAndIndexes(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	age := byAge()
	dict := getOrAdd(t, r, "people", age)

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Add(ctx, tx, "p1", person{Age: 30})
	}))

	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	require.NoError(t, dict.Set(ctx, tx, "p1", person{Age: 40}))
	require.NoError(t, tx.Abort())

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		p, ok, err := dict.Get(ctx, tx, "p1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 30, p.Age)

		keys, err := dict.FilterKeys(ctx, tx, age.Key(30))
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, keys)

		keys, err = dict.FilterKeys(ctx, tx, age.Key(40))
		require.NoError(t, err)
		assert.Empty(t, keys)

		checkIndexes(t, ctx, tx, dict)
		return nil
	}))
}

type failingCodec[T any] struct {
	MsgpackCodec[T]
	err error
}

func (c failingCodec[T]) Encode(T) ([]byte, error) { return nil, c.err }

func TestMaintainer_ExtractorFailureIsTagged(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	boom := errors.New("cannot encode")
	broken := NewFilterableIndexWithCodec[string, person, int]("broken", failingCodec[int]{err: boom}, func(_ string, p person) int { return p.Age })
	dict := getOrAdd(t, r, "people", broken)

	err := domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Set(ctx, tx, "p1", person{Age: 1})
	})
	require.ErrorIs(t, err, boom)

	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, PhaseExtract, ie.Phase)
	assert.Equal(t, "broken", ie.Index)
	assert.Equal(t, "set", ie.Op)

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		n, err := dict.Count(ctx, tx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestMaintainer_StoreErrorsUnwrapUnchanged(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	dict := getOrAdd(t, r, "people", byAge())

	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	err = dict.Set(ctx, tx, "p1", person{Age: 1})
	assert.ErrorIs(t, err, domain.ErrTransactionClosed)
	var ie *IndexError
	assert.ErrorAs(t, err, &ie)
}

func TestMaintainer_CancellationPropagates(t *testing.T) {
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	dict := getOrAdd(t, r, "people", byAge())

	ctx, cancel := context.WithCancel(context.Background())
	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer tx.Abort()
	cancel()

	assert.ErrorIs(t, dict.Set(ctx, tx, "p1", person{Age: 1}), context.Canceled)
	_, err = r.GetOrAdd(ctx, tx, "other")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, r.Remove(ctx, "people", byAge()), context.Canceled)
}

func TestMaintainer_ConflictingUpdatesSurfaceConflict(t *testing.T) {
	ctx := context.Background()
	sm := newMemoryStore(t)
	r := NewRegistry[string, person](sm)
	dict := getOrAdd(t, r, "people", byAge())

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		return dict.Add(ctx, tx, "p1", person{Age: 1})
	}))

	first, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	second, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer second.Abort()

	require.NoError(t, dict.Set(ctx, first, "p1", person{Age: 2}))
	require.NoError(t, dict.Set(ctx, second, "p1", person{Age: 3}))
	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), domain.ErrTransactionConflict)

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		checkIndexes(t, ctx, tx, dict)
		return nil
	}))
}
