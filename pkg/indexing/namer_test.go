package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionNames(t *testing.T) {
	tests := []struct {
		store, index string
		primary      string
		indexColl    string
	}{
		{store: "people", index: "age", primary: "people", indexColl: "people/age"},
		{store: "a/b", index: "c", primary: "a%2Fb", indexColl: "a%2Fb/c"},
		{store: "a", index: "b/c", primary: "a", indexColl: "a/b%2Fc"},
		{store: "100%", index: "x%2F", primary: "100%25", indexColl: "100%25/x%252F"},
	}

	for _, tt := range tests {
		t.Run(tt.store+"|"+tt.index, func(t *testing.T) {
			assert.Equal(t, tt.primary, PrimaryCollectionName(tt.store))
			assert.Equal(t, tt.indexColl, IndexCollectionName(tt.store, tt.index))

			store, index, err := ParseCollectionName(tt.indexColl)
			require.NoError(t, err)
			assert.Equal(t, tt.store, store)
			assert.Equal(t, tt.index, index)

			store, index, err = ParseCollectionName(tt.primary)
			require.NoError(t, err)
			assert.Equal(t, tt.store, store)
			assert.Empty(t, index)
		})
	}
}

func TestCollectionNames_Injective(t *testing.T) {
	seen := make(map[string]string)
	record := func(physical, origin string) {
		prev, dup := seen[physical]
		assert.False(t, dup, "%s and %s share %q", prev, origin, physical)
		seen[physical] = origin
	}

	stores := []string{"a", "a/b", "a%2Fb", "b", "a/b/c"}
	indexes := []string{"b", "c", "b/c", "%"}
	for _, s := range stores {
		record(PrimaryCollectionName(s), "store "+s)
		for _, i := range indexes {
			record(IndexCollectionName(s, i), "index "+s+"|"+i)
		}
	}
}

func TestParseCollectionName_Invalid(t *testing.T) {
	_, _, err := ParseCollectionName("a/b/c")
	assert.Error(t, err)
}
