package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) domain.StateManager {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return s
	}, storagetest.Options{ConcurrentWriters: true})
}

func TestCollectionPrefix_LengthDelimited(t *testing.T) {
	a := collectionPrefix("a")
	ab := collectionPrefix("ab")
	assert.NotEqual(t, a, ab[:len(a)], "a prefix must not be a prefix of ab")
	assert.Equal(t, dataPrefix, a[0])
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, domain.RunInTransaction(ctx, s, func(tx domain.Transaction) error {
		c, err := s.GetOrCreateCollection(ctx, tx, "persisted")
		if err != nil {
			return err
		}
		return c.Set(ctx, tx, []byte("k"), []byte("v"))
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, domain.RunReadOnly(ctx, reopened, func(tx domain.Transaction) error {
		c, ok, err := reopened.TryGetCollection(ctx, tx, "persisted")
		require.NoError(t, err)
		require.True(t, ok)
		value, ok, err := c.Get(ctx, tx, []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v"), value)
		return nil
	}))
}

func TestStore_WriteToConcurrentlyRemovedCollectionConflicts(t *testing.T) {
	ctx := context.Background()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, domain.RunInTransaction(ctx, s, func(tx domain.Transaction) error {
		_, err := s.GetOrCreateCollection(ctx, tx, "victim")
		return err
	}))

	writer, err := s.BeginTransaction(ctx, true)
	require.NoError(t, err)
	defer writer.Abort()
	c, err := s.GetOrCreateCollection(ctx, writer, "victim")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, writer, []byte("k"), []byte("v")))

	require.NoError(t, domain.RunInTransaction(ctx, s, func(tx domain.Transaction) error {
		return s.RemoveCollection(ctx, tx, "victim")
	}))

	assert.ErrorIs(t, writer.Commit(ctx), domain.ErrTransactionConflict)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
