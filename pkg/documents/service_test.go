package documents

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
	"github.com/adfharrison1/go-indexdb/pkg/storage/memory"
)

func newTestService(t *testing.T, opts ...Option) (*Service, domain.StateManager) {
	t.Helper()
	sm, err := memory.New()
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return NewService(sm, opts...), sm
}

func peopleSpec() domain.StoreSpec {
	return domain.StoreSpec{
		Name: "people",
		Indexes: []domain.IndexSpec{
			{Name: "age", Field: "age"},
			{Name: "city", Field: "address.city", Kind: domain.IndexKindFilter},
			{Name: "bio", Field: "bio", Kind: domain.IndexKindSearch},
		},
	}
}

func seedService(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	created, err := s.DeclareStore(ctx, peopleSpec())
	require.NoError(t, err)
	require.True(t, created)

	_, err = s.BatchInsert(ctx, "people", []domain.Document{
		{"_id": "alice", "age": 25.0, "address": map[string]interface{}{"city": "York"}, "bio": "Writes Go"},
		{"_id": "bob", "age": 30.0, "address": map[string]interface{}{"city": "Leeds"}, "bio": "rust and go"},
		{"_id": "charlie", "age": 25.0, "address": map[string]interface{}{"city": "York"}, "bio": "coffee"},
		{"_id": "david", "age": 35.0, "bio": "tea"},
		{"_id": "erin", "address": map[string]interface{}{"city": "Hull"}},
	})
	require.NoError(t, err)
}

func ids(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d[IDField].(string))
	}
	return out
}

func TestService_DeclareStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	created, err := s.DeclareStore(ctx, peopleSpec())
	require.NoError(t, err)
	assert.True(t, created)

	// index order does not matter and an empty kind means filter
	same := peopleSpec()
	same.Indexes[0], same.Indexes[2] = same.Indexes[2], same.Indexes[0]
	same.Indexes[1].Kind = ""
	created, err = s.DeclareStore(ctx, same)
	require.NoError(t, err)
	assert.False(t, created)

	changed := peopleSpec()
	changed.Indexes = changed.Indexes[:1]
	_, err = s.DeclareStore(ctx, changed)
	assert.ErrorIs(t, err, ErrStoreExists)

	stores, err := s.Stores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "people", stores[0].Name)

	spec, err := s.Store(ctx, "people")
	require.NoError(t, err)
	assert.Len(t, spec.Indexes, 3)

	_, err = s.Store(ctx, "nobody")
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestService_DeclareStoreRejectsInvalidSpecs(t *testing.T) {
	ctx := context.Background()
	s, sm := newTestService(t)

	tests := []struct {
		name string
		spec domain.StoreSpec
	}{
		{name: "missing name", spec: domain.StoreSpec{}},
		{name: "reserved name", spec: domain.StoreSpec{Name: CatalogStore}},
		{name: "index without field", spec: domain.StoreSpec{Name: "s", Indexes: []domain.IndexSpec{{Name: "a"}}}},
		{name: "unknown kind", spec: domain.StoreSpec{Name: "s", Indexes: []domain.IndexSpec{{Name: "a", Field: "a", Kind: "fuzzy"}}}},
		{name: "duplicate index", spec: domain.StoreSpec{Name: "s", Indexes: []domain.IndexSpec{
			{Name: "a", Field: "a"},
			{Name: "a", Field: "b"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.DeclareStore(ctx, tt.spec)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}

	colls, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, colls)
}

func TestService_StoresWithoutCatalog(t *testing.T) {
	s, _ := newTestService(t)
	stores, err := s.Stores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestService_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	id, err := s.Insert(ctx, "people", domain.Document{"age": 41.0})
	require.NoError(t, err)
	assert.NotEmpty(t, id, "missing ids are generated")

	doc, err := s.Get(ctx, "people", id)
	require.NoError(t, err)
	assert.Equal(t, id, doc[IDField])
	assert.Equal(t, 41.0, doc["age"])

	_, err = s.Insert(ctx, "people", domain.Document{"_id": "alice"})
	assert.ErrorIs(t, err, ErrDocumentExists)
	_, err = s.Insert(ctx, "people", domain.Document{"_id": 7.0})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = s.Insert(ctx, "nobody", domain.Document{})
	assert.ErrorIs(t, err, ErrStoreNotFound)

	merged, err := s.Update(ctx, "people", "bob", domain.Document{"age": 31.0, "bio": nil, "_id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "bob", merged[IDField])
	assert.Equal(t, 31.0, merged["age"])
	assert.NotContains(t, merged, "bio")

	_, err = s.Update(ctx, "people", "nobody", domain.Document{"age": 1.0})
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	created, err := s.Replace(ctx, "people", "frank", domain.Document{"age": 50.0})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Replace(ctx, "people", "frank", domain.Document{"age": 51.0})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.Delete(ctx, "people", "frank"))
	assert.ErrorIs(t, s.Delete(ctx, "people", "frank"), ErrDocumentNotFound)
	_, err = s.Get(ctx, "people", "frank")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	n, err := s.Count(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	// indexes follow updates and deletes
	docs, err := s.Lookup(ctx, "people", "age", "31")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids(docs))
	docs, err = s.Lookup(ctx, "people", "bio", "rust")
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, s.Clear(ctx, "people"))
	n, err = s.Count(ctx, "people")
	require.NoError(t, err)
	assert.Zero(t, n)
	docs, err = s.Lookup(ctx, "people", "city", "York")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_BatchInsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	_, err := s.BatchInsert(ctx, "people", []domain.Document{
		{"_id": "new-1", "age": 1.0},
		{"_id": "alice", "age": 2.0},
	})
	assert.ErrorIs(t, err, ErrDocumentExists)

	_, err = s.Get(ctx, "people", "new-1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	docs, err := s.Lookup(ctx, "people", "age", "1")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = s.BatchInsert(ctx, "people", nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = s.BatchInsert(ctx, "people", make([]domain.Document, MaxBatchSize+1))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestService_Lookup(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	tests := []struct {
		name  string
		index string
		value string
		want  []string
	}{
		{name: "number", index: "age", value: "25", want: []string{"alice", "charlie"}},
		{name: "nested field", index: "city", value: "York", want: []string{"alice", "charlie"}},
		{name: "missing field is null", index: "age", value: "null", want: []string{"erin"}},
		{name: "word any case", index: "bio", value: "GO", want: []string{"alice", "bob"}},
		{name: "no match", index: "city", value: "Paris", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Lookup(ctx, "people", tt.index, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}

	_, err := s.Lookup(ctx, "people", "shoe", "9")
	assert.ErrorIs(t, err, indexing.ErrIndexNotFound)
}

func TestService_Range(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	collect := func(index string, from, to *string) []string {
		var got []string
		require.NoError(t, s.Range(ctx, "people", index, from, to, func(doc domain.Document) error {
			got = append(got, doc[IDField].(string))
			return nil
		}))
		return got
	}
	str := func(s string) *string { return &s }

	assert.Equal(t, []string{"alice", "charlie", "bob"}, collect("age", str("25"), str("30")))
	assert.Equal(t, []string{"bob", "david"}, collect("age", str("26"), nil))
	assert.Equal(t, []string{"erin", "alice", "charlie", "bob", "david"}, collect("age", nil, nil))
	assert.Equal(t, []string{"bob", "alice", "charlie"}, collect("city", str("Leeds"), str("York")))

	stop := errors.New("stop")
	calls := 0
	err := s.Range(ctx, "people", "age", nil, nil, func(domain.Document) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestService_ListPaginates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	page, err := s.List(ctx, "people", &domain.PaginationOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids(page.Documents))
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
	assert.Equal(t, int64(5), page.Total)

	page, err = s.List(ctx, "people", &domain.PaginationOptions{Limit: 2, After: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "david"}, ids(page.Documents))
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Zero(t, page.Total)

	page, err = s.List(ctx, "people", &domain.PaginationOptions{Limit: 2, After: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"erin"}, ids(page.Documents))
	assert.False(t, page.HasNext)
	assert.Empty(t, page.NextCursor)

	page, err = s.List(ctx, "people", &domain.PaginationOptions{Limit: 10, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"david", "erin"}, ids(page.Documents))

	page, err = s.List(ctx, "people", nil)
	require.NoError(t, err)
	assert.Len(t, page.Documents, 5)

	_, err = s.List(ctx, "people", &domain.PaginationOptions{After: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPagination)
	_, err = s.List(ctx, "people", &domain.PaginationOptions{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPagination)
}

func TestService_DropStore(t *testing.T) {
	ctx := context.Background()
	s, sm := newTestService(t)
	seedService(t, s)

	names, err := s.StoreCollections(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"people", "people/age", "people/bio", "people/city"}, names)

	colls, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Contains(t, colls, CollectionInfo{Name: "people/age", Store: "people", Index: "age"})
	assert.Contains(t, colls, CollectionInfo{Name: CatalogStore, Store: CatalogStore})

	require.NoError(t, s.DropStore(ctx, "people"))
	assert.ErrorIs(t, s.DropStore(ctx, "people"), ErrStoreNotFound)

	_, err = s.Get(ctx, "people", "alice")
	assert.ErrorIs(t, err, ErrStoreNotFound)

	remaining, err := sm.EnumerateCollections(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, CatalogStore, remaining[0].Name())

	// the name is free again, with new indexes
	created, err := s.DeclareStore(ctx, domain.StoreSpec{Name: "people"})
	require.NoError(t, err)
	assert.True(t, created)
	n, err := s.Count(ctx, "people")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_DeclarationsSurviveNewService(t *testing.T) {
	ctx := context.Background()
	first, sm := newTestService(t)
	seedService(t, first)

	second := NewService(sm, WithCacheSize(1))
	docs, err := second.Lookup(ctx, "people", "city", "Leeds")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids(docs))

	// a drop through one service is visible to the other despite its cache
	require.NoError(t, second.DropStore(ctx, "people"))
	_, err = first.Get(ctx, "people", "bob")
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestService_RecordsIndexMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := indexing.NewMetrics(prometheus.NewRegistry())
	s, _ := newTestService(t, WithMetrics(metrics), WithMaxAttempts(2))
	seedService(t, s)

	_, err := s.Insert(ctx, "people", domain.Document{"_id": "zed", "age": 99.0})
	require.NoError(t, err)
	docs, err := s.Lookup(ctx, "people", "age", "99")
	require.NoError(t, err)
	assert.Equal(t, []string{"zed"}, ids(docs))
}

func TestService_BatchUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	seedService(t, s)

	docs, err := s.BatchUpdate(ctx, "people", []Patch{
		{ID: "alice", Updates: domain.Document{"age": 26.0}},
		{ID: "bob", Updates: domain.Document{"address": nil}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids(docs))

	found, err := s.Lookup(ctx, "people", "age", "26")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids(found))
	found, err = s.Lookup(ctx, "people", "city", "null")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "david"}, ids(found))

	_, err = s.BatchUpdate(ctx, "people", []Patch{
		{ID: "charlie", Updates: domain.Document{"age": 99.0}},
		{ID: "nobody", Updates: domain.Document{"age": 1.0}},
	})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	doc, err := s.Get(ctx, "people", "charlie")
	require.NoError(t, err)
	assert.Equal(t, 25.0, doc["age"], "a failed batch changes nothing")

	_, err = s.BatchUpdate(ctx, "people", []Patch{{Updates: domain.Document{"a": 1.0}}})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = s.BatchUpdate(ctx, "people", nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
