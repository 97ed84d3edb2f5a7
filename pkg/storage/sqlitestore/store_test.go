package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) domain.StateManager {
		s, err := Open(filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		return s
	}, storagetest.Options{ConcurrentWriters: false})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, domain.RunInTransaction(ctx, s, func(tx domain.Transaction) error {
		c, err := s.GetOrCreateCollection(ctx, tx, "persisted")
		if err != nil {
			return err
		}
		if err := c.Set(ctx, tx, []byte{0x00, 0xff}, []byte("bin")); err != nil {
			return err
		}
		return c.Set(ctx, tx, []byte("empty"), nil)
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, domain.RunReadOnly(ctx, reopened, func(tx domain.Transaction) error {
		c, ok, err := reopened.TryGetCollection(ctx, tx, "persisted")
		require.NoError(t, err)
		require.True(t, ok)

		value, ok, err := c.Get(ctx, tx, []byte{0x00, 0xff})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("bin"), value)

		value, ok, err = c.Get(ctx, tx, []byte("empty"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{}, value)
		return nil
	}))
}

func TestStore_RejectsForeignTransaction(t *testing.T) {
	ctx := context.Background()
	a, err := Open(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)
	defer b.Close()

	tx, err := a.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer tx.Abort()

	_, err = b.GetOrCreateCollection(ctx, tx, "x")
	assert.ErrorIs(t, err, domain.ErrForeignTransaction)
}

func TestStore_ReadOnlyDoesNotWaitForWriter(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, domain.RunInTransaction(ctx, s, func(tx domain.Transaction) error {
		c, err := s.GetOrCreateCollection(ctx, tx, "people")
		if err != nil {
			return err
		}
		return c.Set(ctx, tx, []byte("p1"), []byte("committed"))
	}))

	writer, err := s.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer writer.Abort()
	wc, err := s.GetOrCreateCollection(ctx, writer, "people")
	require.NoError(t, err)
	require.NoError(t, wc.Set(ctx, writer, []byte("p1"), []byte("pending")))

	// well under the busy timeout a blocked reader would wait for
	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, domain.RunReadOnly(readCtx, s, func(tx domain.Transaction) error {
		c, ok, err := s.TryGetCollection(readCtx, tx, "people")
		require.NoError(t, err)
		require.True(t, ok)
		value, ok, err := c.Get(readCtx, tx, []byte("p1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("committed"), value)

		assert.ErrorIs(t, c.Set(readCtx, tx, []byte("p2"), []byte("x")), domain.ErrReadOnlyTransaction)
		return nil
	}))
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, writer.Commit(ctx))
}
