// Package storagetest holds the behaviour every domain.StateManager
// implementation is expected to share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// Factory opens a fresh, empty store. The store is closed by the suite.
type Factory func(t *testing.T) domain.StateManager

// Options describes what a backend supports beyond the common contract.
type Options struct {
	// ConcurrentWriters is set when two writable transactions may be open at
	// once from one goroutine and the later committer sees a conflict.
	ConcurrentWriters bool
}

// Run runs the shared suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory, opts Options) {
	t.Helper()

	t.Run("GetOrCreate creates once", func(t *testing.T) { testGetOrCreate(t, open(t, newStore)) })
	t.Run("TryGet never creates", func(t *testing.T) { testTryGet(t, open(t, newStore)) })
	t.Run("Set Get Delete", func(t *testing.T) { testSetGetDelete(t, open(t, newStore)) })
	t.Run("Scan order and bounds", func(t *testing.T) { testScan(t, open(t, newStore)) })
	t.Run("Read your writes", func(t *testing.T) { testReadYourWrites(t, open(t, newStore)) })
	t.Run("Abort discards", func(t *testing.T) { testAbort(t, open(t, newStore)) })
	t.Run("Remove collection", func(t *testing.T) { testRemove(t, open(t, newStore)) })
	t.Run("Read-only transactions", func(t *testing.T) { testReadOnly(t, open(t, newStore)) })
	t.Run("Closed transactions", func(t *testing.T) { testClosed(t, open(t, newStore)) })
	t.Run("Enumerate collections", func(t *testing.T) { testEnumerate(t, open(t, newStore)) })
	t.Run("Cancelled context", func(t *testing.T) { testCancelled(t, open(t, newStore)) })
	t.Run("Concurrent get-or-create converges", func(t *testing.T) { testConcurrentCreate(t, open(t, newStore)) })
	if opts.ConcurrentWriters {
		t.Run("Write conflict", func(t *testing.T) { testConflict(t, open(t, newStore)) })
		t.Run("Interleaved creators share one collection", func(t *testing.T) { testInterleavedCreate(t, open(t, newStore)) })
		t.Run("Create after peer commit", func(t *testing.T) { testCreateAfterPeerCommit(t, open(t, newStore)) })
	}
}

func open(t *testing.T, newStore Factory) domain.StateManager {
	sm := newStore(t)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func testGetOrCreate(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		first, err := sm.GetOrCreateCollection(ctx, tx, "things")
		require.NoError(t, err)
		second, err := sm.GetOrCreateCollection(ctx, tx, "things")
		require.NoError(t, err)
		assert.Equal(t, "things", first.Name())
		assert.Equal(t, first.Name(), second.Name())
		return nil
	}))

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		_, err := sm.GetOrCreateCollection(ctx, tx, "things")
		return err
	}))

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, colls, 1)
}

func testTryGet(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		_, ok, err := sm.TryGetCollection(ctx, tx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		_, err := sm.GetOrCreateCollection(ctx, tx, "present")
		return err
	}))
	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		coll, ok, err := sm.TryGetCollection(ctx, tx, "present")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "present", coll.Name())
		return nil
	}))
}

func testSetGetDelete(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "kv")
		require.NoError(t, err)
		require.NoError(t, coll.Set(ctx, tx, []byte("a"), []byte("1")))
		require.NoError(t, coll.Set(ctx, tx, []byte("b"), []byte("2")))
		return nil
	}))

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, ok, err := sm.TryGetCollection(ctx, tx, "kv")
		require.NoError(t, err)
		require.True(t, ok)

		value, ok, err := coll.Get(ctx, tx, []byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("1"), value)

		_, ok, err = coll.Get(ctx, tx, []byte("zzz"))
		require.NoError(t, err)
		assert.False(t, ok)

		deleted, err := coll.Delete(ctx, tx, []byte("a"))
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = coll.Delete(ctx, tx, []byte("a"))
		require.NoError(t, err)
		assert.False(t, deleted)

		require.NoError(t, coll.Set(ctx, tx, []byte("b"), []byte("22")))
		return nil
	}))

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		coll, _, err := sm.TryGetCollection(ctx, tx, "kv")
		require.NoError(t, err)

		_, ok, err := coll.Get(ctx, tx, []byte("a"))
		require.NoError(t, err)
		assert.False(t, ok)

		value, ok, err := coll.Get(ctx, tx, []byte("b"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("22"), value)

		n, err := coll.Count(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))
}

func testScan(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "scan")
		require.NoError(t, err)
		for _, k := range []string{"d", "a", "c", "e", "b"} {
			require.NoError(t, coll.Set(ctx, tx, []byte(k), []byte("v"+k)))
		}
		return nil
	}))

	// a different collection sharing a prefix must not leak into scans
	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "scanner")
		require.NoError(t, err)
		return coll.Set(ctx, tx, []byte("c"), []byte("other"))
	}))

	keys := func(lo, hi []byte) []string {
		var out []string
		require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
			coll, _, err := sm.TryGetCollection(ctx, tx, "scan")
			require.NoError(t, err)
			for e, err := range coll.Scan(ctx, tx, lo, hi) {
				require.NoError(t, err)
				out = append(out, string(e.Key))
			}
			return nil
		}))
		return out
	}

	tests := []struct {
		name string
		lo   []byte
		hi   []byte
		want []string
	}{
		{name: "open", want: []string{"a", "b", "c", "d", "e"}},
		{name: "inclusive", lo: []byte("b"), hi: []byte("d"), want: []string{"b", "c", "d"}},
		{name: "open low", hi: []byte("b"), want: []string{"a", "b"}},
		{name: "open high", lo: []byte("d"), want: []string{"d", "e"}},
		{name: "between keys", lo: []byte("bb"), hi: []byte("cc"), want: []string{"c"}},
		{name: "empty", lo: []byte("x"), hi: []byte("z"), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(tt.lo, tt.hi))
		})
	}
}

func testReadYourWrites(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "ryw")
		require.NoError(t, err)
		require.NoError(t, coll.Set(ctx, tx, []byte("k1"), []byte("v1")))
		require.NoError(t, coll.Set(ctx, tx, []byte("k2"), []byte("v2")))

		value, ok, err := coll.Get(ctx, tx, []byte("k1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v1"), value)

		_, err = coll.Delete(ctx, tx, []byte("k2"))
		require.NoError(t, err)

		var seen []string
		for e, err := range coll.Scan(ctx, tx, nil, nil) {
			require.NoError(t, err)
			seen = append(seen, string(e.Key))
		}
		assert.Equal(t, []string{"k1"}, seen)

		n, err := coll.Count(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))
}

func testAbort(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	coll, err := sm.GetOrCreateCollection(ctx, tx, "aborted")
	require.NoError(t, err)
	require.NoError(t, coll.Set(ctx, tx, []byte("k"), []byte("v")))
	require.NoError(t, tx.Abort())
	require.NoError(t, tx.Abort(), "aborting twice is a no-op")

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)

	sentinel := errors.New("boom")
	err = domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		_, err := sm.GetOrCreateCollection(ctx, tx, "aborted")
		require.NoError(t, err)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	colls, err = sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func testRemove(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "doomed")
		require.NoError(t, err)
		return coll.Set(ctx, tx, []byte("k"), []byte("v"))
	}))

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		require.NoError(t, sm.RemoveCollection(ctx, tx, "doomed"))
		require.NoError(t, sm.RemoveCollection(ctx, tx, "doomed"))
		require.NoError(t, sm.RemoveCollection(ctx, tx, "never-existed"))

		_, ok, err := sm.TryGetCollection(ctx, tx, "doomed")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)

	// a recreated collection starts empty
	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "doomed")
		require.NoError(t, err)
		n, err := coll.Count(ctx, tx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func testReadOnly(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		_, err := sm.GetOrCreateCollection(ctx, tx, "ro")
		return err
	}))

	tx, err := sm.BeginTransaction(ctx, false)
	require.NoError(t, err)
	defer tx.Abort()
	assert.False(t, tx.Writable())

	coll, err := sm.GetOrCreateCollection(ctx, tx, "ro")
	require.NoError(t, err, "existing collections resolve in read-only transactions")

	assert.ErrorIs(t, coll.Set(ctx, tx, []byte("k"), []byte("v")), domain.ErrReadOnlyTransaction)
	_, err = sm.GetOrCreateCollection(ctx, tx, "absent")
	assert.ErrorIs(t, err, domain.ErrReadOnlyTransaction)
	assert.ErrorIs(t, sm.RemoveCollection(ctx, tx, "ro"), domain.ErrReadOnlyTransaction)
}

func testClosed(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	coll, err := sm.GetOrCreateCollection(ctx, tx, "closed")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), domain.ErrTransactionClosed)
	assert.ErrorIs(t, coll.Set(ctx, tx, []byte("k"), []byte("v")), domain.ErrTransactionClosed)
	_, _, err = coll.Get(ctx, tx, []byte("k"))
	assert.ErrorIs(t, err, domain.ErrTransactionClosed)
}

func testEnumerate(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		for _, name := range []string{"b", "a/x", "a", "c%2F"} {
			if _, err := sm.GetOrCreateCollection(ctx, tx, name); err != nil {
				return err
			}
		}
		return nil
	}))

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(colls))
	for _, c := range colls {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"a", "a/x", "b", "c%2F"}, names)
}

func testCancelled(t *testing.T, sm domain.StateManager) {
	ctx, cancel := context.WithCancel(context.Background())

	tx, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer tx.Abort()
	coll, err := sm.GetOrCreateCollection(ctx, tx, "cancelled")
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, coll.Set(ctx, tx, []byte("k"), []byte("v")), context.Canceled)
	_, err = sm.GetOrCreateCollection(ctx, tx, "other")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = sm.BeginTransaction(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func testConcurrentCreate(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for attempt := 0; attempt < 20; attempt++ {
				err := domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
					coll, err := sm.GetOrCreateCollection(ctx, tx, "shared")
					if err != nil {
						return err
					}
					return coll.Set(ctx, tx, []byte(fmt.Sprintf("k%02d", i)), []byte("v"))
				})
				if errors.Is(err, domain.ErrTransactionConflict) {
					continue
				}
				errs <- err
				return
			}
			errs <- fmt.Errorf("worker %d: too many conflicts", i)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	require.Len(t, colls, 1)

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		n, err := colls[0].Count(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), n)
		return nil
	}))
}

func testConflict(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		coll, err := sm.GetOrCreateCollection(ctx, tx, "contended")
		require.NoError(t, err)
		return coll.Set(ctx, tx, []byte("counter"), []byte("0"))
	}))

	readThenWrite := func(tx domain.Transaction, value string) {
		coll, _, err := sm.TryGetCollection(ctx, tx, "contended")
		require.NoError(t, err)
		_, _, err = coll.Get(ctx, tx, []byte("counter"))
		require.NoError(t, err)
		require.NoError(t, coll.Set(ctx, tx, []byte("counter"), []byte(value)))
	}

	tx1, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer tx1.Abort()
	tx2, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer tx2.Abort()

	readThenWrite(tx1, "1")
	readThenWrite(tx2, "2")

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), domain.ErrTransactionConflict)

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		coll, _, err := sm.TryGetCollection(ctx, tx, "contended")
		require.NoError(t, err)
		value, _, err := coll.Get(ctx, tx, []byte("counter"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), value)
		return nil
	}))
}

// assertSharedContents checks through every handle in a fresh transaction
// that the "shared" collection holds exactly keys, and that a write through
// one handle is read back through the others.
func assertSharedContents(t *testing.T, sm domain.StateManager, keys []string, handles ...domain.Collection) {
	t.Helper()
	ctx := context.Background()

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	require.Len(t, colls, 1)
	assert.Equal(t, "shared", colls[0].Name())

	for i, h := range handles {
		require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
			for _, k := range keys {
				_, ok, err := h.Get(ctx, tx, []byte(k))
				require.NoError(t, err, "handle %d", i)
				assert.True(t, ok, "handle %d misses %s", i, k)
			}
			return h.Set(ctx, tx, []byte(fmt.Sprintf("via%d", i)), []byte("v"))
		}), "handle %d", i)
	}

	require.NoError(t, domain.RunReadOnly(ctx, sm, func(tx domain.Transaction) error {
		for _, h := range handles {
			n, err := h.Count(ctx, tx)
			require.NoError(t, err)
			assert.Equal(t, int64(len(keys)+len(handles)), n)
		}
		return nil
	}))
}

func testInterleavedCreate(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	a, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer a.Abort()
	b, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer b.Abort()

	ca, err := sm.GetOrCreateCollection(ctx, a, "shared")
	require.NoError(t, err)
	cb, err := sm.GetOrCreateCollection(ctx, b, "shared")
	require.NoError(t, err)

	require.NoError(t, cb.Set(ctx, b, []byte("kb"), []byte("b")))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, ca.Set(ctx, a, []byte("ka"), []byte("a")))
	require.NoError(t, a.Commit(ctx))

	assertSharedContents(t, sm, []string{"ka", "kb"}, ca, cb)
}

func testCreateAfterPeerCommit(t *testing.T, sm domain.StateManager) {
	ctx := context.Background()

	a, err := sm.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer a.Abort()

	var cb domain.Collection
	require.NoError(t, domain.RunInTransaction(ctx, sm, func(tx domain.Transaction) error {
		cb, err = sm.GetOrCreateCollection(ctx, tx, "shared")
		if err != nil {
			return err
		}
		return cb.Set(ctx, tx, []byte("kb"), []byte("b"))
	}))

	ca, err := sm.GetOrCreateCollection(ctx, a, "shared")
	require.NoError(t, err)
	require.NoError(t, ca.Set(ctx, a, []byte("ka"), []byte("a")))
	require.NoError(t, a.Commit(ctx))

	assertSharedContents(t, sm, []string{"ka", "kb"}, ca, cb)
}
