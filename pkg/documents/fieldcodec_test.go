package documents

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

func TestFieldValueCodec_TypeOrder(t *testing.T) {
	c := FieldValueCodec{}
	values := []any{"b", 10.0, true, nil, -3, "a", false, map[string]interface{}{"x": 1}, 2.5}
	want := []any{nil, false, true, -3, 2.5, 10.0, "a", "b", map[string]interface{}{"x": 1}}

	type pair struct {
		raw []byte
		v   any
	}
	pairs := make([]pair, 0, len(values))
	for _, v := range values {
		raw, err := c.Encode(v)
		require.NoError(t, err)
		pairs = append(pairs, pair{raw, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].raw, pairs[j].raw) < 0 })
	got := make([]any, 0, len(pairs))
	for _, p := range pairs {
		got = append(got, p.v)
	}
	assert.Equal(t, want, got)
}

func TestFieldValueCodec_NumbersCompareAcrossKinds(t *testing.T) {
	c := FieldValueCodec{}
	a, err := c.Encode(int64(30))
	require.NoError(t, err)
	b, err := c.Encode(30.0)
	require.NoError(t, err)
	assert.Equal(t, a, b, "JSON numbers and msgpack integers index under the same key")
}

func TestFieldValueCodec_RoundTrip(t *testing.T) {
	c := FieldValueCodec{}
	for _, v := range []any{nil, true, false, 1.5, "text"} {
		raw, err := c.Encode(v)
		require.NoError(t, err)
		got, err := c.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := c.Decode(nil)
	assert.Error(t, err)
	_, err = c.Decode([]byte{0x7f})
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	assert.Nil(t, ParseValue("null"))
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, false, ParseValue("false"))
	assert.Equal(t, 42.0, ParseValue("42"))
	assert.Equal(t, -1.5, ParseValue("-1.5"))
	assert.Equal(t, "Boston", ParseValue("Boston"))
}

func TestFieldValue(t *testing.T) {
	doc := domain.Document{
		"name": "Alice",
		"address": map[string]interface{}{
			"city": "Leeds",
			"geo":  map[string]interface{}{"lat": 53.8},
		},
	}
	assert.Equal(t, "Alice", FieldValue(doc, "name"))
	assert.Equal(t, "Leeds", FieldValue(doc, "address.city"))
	assert.Equal(t, 53.8, FieldValue(doc, "address.geo.lat"))
	assert.Nil(t, FieldValue(doc, "address.zip"))
	assert.Nil(t, FieldValue(doc, "name.first"))
}
