package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMemberSet_AddRemove(t *testing.T) {
	s := &MemberSet{}

	assert.True(t, s.Add([]byte("c")))
	assert.True(t, s.Add([]byte("a")))
	assert.True(t, s.Add([]byte("b")))
	assert.False(t, s.Add([]byte("a")), "duplicates are ignored")
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, s.Members())

	assert.True(t, s.Contains([]byte("b")))
	assert.True(t, s.Remove([]byte("b")))
	assert.False(t, s.Remove([]byte("b")))
	assert.False(t, s.Contains([]byte("b")))
	assert.Equal(t, 2, s.Len())
}

func TestMemberSet_AddCopiesMember(t *testing.T) {
	s := &MemberSet{}
	member := []byte("abc")
	s.Add(member)
	member[0] = 'z'
	assert.True(t, s.Contains([]byte("abc")))
}

func TestDecodeMemberSet_NormalizesStoredSets(t *testing.T) {
	data, err := msgpack.Marshal([][]byte{[]byte("b"), []byte("a"), []byte("b")})
	require.NoError(t, err)

	s, err := DecodeMemberSet(data)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, s.Members())

	_, err = DecodeMemberSet([]byte{0xc1})
	assert.Error(t, err)
}

func TestWords(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{text: "", want: []string{}},
		{text: "Hello, hello WORLD!", want: []string{"hello", "world"}},
		{text: "go1.24 and-rust", want: []string{"go1", "24", "and", "rust"}},
		{text: "  \t\n", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Words(tt.text))
		})
	}
}
