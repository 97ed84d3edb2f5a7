package indexing

import (
	"fmt"
	"strings"
	"unicode"
)

// Index describes one derived index over a primary collection of K -> V.
//
// IndexKeys must be a pure function of its inputs: the maintainer recomputes
// the keys of the previous value on every update and removal, so an
// extractor that depends on anything else leaves stale index entries.
type Index[K, V any] interface {
	Name() string
	// IndexKeys returns the encoded index keys a primary entry is stored
	// under. Duplicates are ignored.
	IndexKeys(key K, value V) ([][]byte, error)
	// Ordered reports whether encoded index keys sort like the values they
	// were produced from, which RangeLookup requires.
	Ordered() bool
}

// IndexKey is an encoded lookup key bound to the index it was produced by.
type IndexKey struct {
	index string
	raw   []byte
	err   error
}

// Index returns the name of the index the key belongs to.
func (k IndexKey) Index() string { return k.index }

// Bytes returns the encoded key.
func (k IndexKey) Bytes() ([]byte, error) { return k.raw, k.err }

// OpenBound is a range bound on index that does not limit the range.
func OpenBound(index string) IndexKey {
	return IndexKey{index: index}
}

// RawKey binds an already encoded key to index.
func RawKey(index string, raw []byte) IndexKey {
	return IndexKey{index: index, raw: raw}
}

// FilterableIndex maps every primary entry to exactly one index key of type T.
type FilterableIndex[K, V, T any] struct {
	name    string
	extract func(K, V) T
	codec   Codec[T]
}

// NewFilterableIndex creates an index named name whose key is extract(k, v).
// The key codec is DefaultCodec[T]().
func NewFilterableIndex[K, V, T any](name string, extract func(K, V) T) *FilterableIndex[K, V, T] {
	return NewFilterableIndexWithCodec(name, DefaultCodec[T](), extract)
}

// NewFilterableIndexWithCodec is NewFilterableIndex with an explicit key codec.
func NewFilterableIndexWithCodec[K, V, T any](name string, codec Codec[T], extract func(K, V) T) *FilterableIndex[K, V, T] {
	return &FilterableIndex[K, V, T]{
		name:    name,
		extract: extract,
		codec:   codec,
	}
}

func (i *FilterableIndex[K, V, T]) Name() string { return i.name }

func (i *FilterableIndex[K, V, T]) Ordered() bool { return i.codec.Ordered() }

func (i *FilterableIndex[K, V, T]) IndexKeys(key K, value V) ([][]byte, error) {
	raw, err := i.codec.Encode(i.extract(key, value))
	if err != nil {
		return nil, err
	}
	return [][]byte{raw}, nil
}

// Key encodes value for lookups against this index.
func (i *FilterableIndex[K, V, T]) Key(value T) IndexKey {
	raw, err := i.codec.Encode(value)
	return IndexKey{index: i.name, raw: raw, err: err}
}

func (i *FilterableIndex[K, V, T]) validate() error {
	if i == nil || i.name == "" || i.extract == nil || i.codec == nil {
		return fmt.Errorf("%w: filterable index needs a name, an extractor and a codec", ErrInvalidIndex)
	}
	return nil
}

// SearchableIndex stores a primary entry under every distinct word of the
// text its extractor returns. Words are split on anything that is not a
// letter or digit and compared case-insensitively.
type SearchableIndex[K, V any] struct {
	name    string
	extract func(K, V) string
}

// NewSearchableIndex creates a word index named name over extract(k, v).
func NewSearchableIndex[K, V any](name string, extract func(K, V) string) *SearchableIndex[K, V] {
	return &SearchableIndex[K, V]{name: name, extract: extract}
}

func (i *SearchableIndex[K, V]) Name() string { return i.name }

func (i *SearchableIndex[K, V]) Ordered() bool { return true }

func (i *SearchableIndex[K, V]) IndexKeys(key K, value V) ([][]byte, error) {
	words := Words(i.extract(key, value))
	keys := make([][]byte, 0, len(words))
	for _, w := range words {
		keys = append(keys, []byte(w))
	}
	return keys, nil
}

// Word returns the lookup key for a single word.
func (i *SearchableIndex[K, V]) Word(word string) IndexKey {
	return IndexKey{index: i.name, raw: []byte(strings.ToLower(word))}
}

func (i *SearchableIndex[K, V]) validate() error {
	if i == nil || i.name == "" || i.extract == nil {
		return fmt.Errorf("%w: searchable index needs a name and an extractor", ErrInvalidIndex)
	}
	return nil
}

// Words splits text into its distinct lower-cased words, in first-seen order.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

type selfValidating interface {
	validate() error
}

// sameDefinition reports whether a and b are the same definition value.
// Definitions of non-comparable dynamic types are never the same.
func sameDefinition[K, V any](a, b Index[K, V]) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
