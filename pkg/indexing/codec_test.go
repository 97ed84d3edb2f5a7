package indexing

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedOrder[T any](t *testing.T, c Codec[T], values []T) []T {
	t.Helper()
	type pair struct {
		raw []byte
		v   T
	}
	pairs := make([]pair, 0, len(values))
	for _, v := range values {
		raw, err := c.Encode(v)
		require.NoError(t, err)
		pairs = append(pairs, pair{raw: raw, v: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].raw, pairs[j].raw) < 0 })
	out := make([]T, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.v)
	}
	return out
}

func TestOrderedCodec_PreservesOrder(t *testing.T) {
	t.Run("int", func(t *testing.T) {
		want := []int{math.MinInt64, -300, -1, 0, 1, 2, 255, 256, math.MaxInt64}
		got := encodedOrder(t, NewOrderedCodec[int](), []int{256, -1, 0, math.MaxInt64, 2, -300, 1, math.MinInt64, 255})
		assert.Equal(t, want, got)
	})
	t.Run("uint32", func(t *testing.T) {
		want := []uint32{0, 1, 255, 65536, math.MaxUint32}
		got := encodedOrder(t, NewOrderedCodec[uint32](), []uint32{65536, math.MaxUint32, 0, 255, 1})
		assert.Equal(t, want, got)
	})
	t.Run("float64", func(t *testing.T) {
		want := []float64{math.Inf(-1), -1e10, -2.5, -0.001, 0, 0.001, 1, 3.75, math.Inf(1)}
		got := encodedOrder(t, NewOrderedCodec[float64](), []float64{1, -2.5, math.Inf(1), 0, -1e10, 0.001, 3.75, math.Inf(-1), -0.001})
		assert.Equal(t, want, got)
	})
	t.Run("string", func(t *testing.T) {
		want := []string{"", "a", "ab", "b", "ba"}
		got := encodedOrder(t, NewOrderedCodec[string](), []string{"ba", "ab", "", "b", "a"})
		assert.Equal(t, want, got)
	})
}

func TestOrderedCodec_RoundTrip(t *testing.T) {
	ints := NewOrderedCodec[int64]()
	for _, v := range []int64{math.MinInt64, -1, 0, 42, math.MaxInt64} {
		raw, err := ints.Encode(v)
		require.NoError(t, err)
		got, err := ints.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	floats := NewOrderedCodec[float32]()
	for _, v := range []float32{-3.5, 0, 1.25} {
		raw, err := floats.Encode(v)
		require.NoError(t, err)
		got, err := floats.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := ints.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOrderedCodec_NegativeZero(t *testing.T) {
	floats := NewOrderedCodec[float64]()
	pos, err := floats.Encode(0)
	require.NoError(t, err)
	neg, err := floats.Encode(math.Copysign(0, -1))
	require.NoError(t, err)
	assert.Equal(t, pos, neg)

	smallest, err := floats.Encode(-math.SmallestNonzeroFloat64)
	require.NoError(t, err)
	assert.Negative(t, bytes.Compare(smallest, neg))
}

func TestDefaultCodec_Selection(t *testing.T) {
	assert.True(t, DefaultCodec[string]().Ordered())
	assert.True(t, DefaultCodec[uint8]().Ordered())
	assert.True(t, DefaultCodec[float32]().Ordered())
	assert.False(t, DefaultCodec[struct{ A int }]().Ordered())
	assert.False(t, DefaultCodec[[]string]().Ordered())
}

func TestMsgpackCodec_DeterministicMaps(t *testing.T) {
	c := MsgpackCodec[map[string]int]{}
	m := map[string]int{"z": 1, "a": 2, "m": 3, "b": 4, "y": 5}
	first, err := c.Encode(m)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := c.Encode(map[string]int{"b": 4, "y": 5, "a": 2, "z": 1, "m": 3})
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	decoded, err := c.Decode(first)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}
