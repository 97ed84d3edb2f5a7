package indexing

import (
	"fmt"
	"strings"
)

// IndexSeparator joins a store name and an index name in physical index
// collection names. Primary collection names never contain it unescaped.
const IndexSeparator = "/"

var nameEscaper = strings.NewReplacer("%", "%25", "/", "%2F")
var nameUnescaper = strings.NewReplacer("%2F", "/", "%25", "%")

// PrimaryCollectionName returns the physical collection name of a store.
func PrimaryCollectionName(store string) string {
	return nameEscaper.Replace(store)
}

// IndexCollectionName returns the physical collection name backing index
// on store. Distinct (store, index) pairs never share a name.
func IndexCollectionName(store, index string) string {
	return nameEscaper.Replace(store) + IndexSeparator + nameEscaper.Replace(index)
}

// ParseCollectionName maps a physical collection name back to its store and
// index. index is empty for primary collections.
func ParseCollectionName(physical string) (store, index string, err error) {
	parts := strings.Split(physical, IndexSeparator)
	switch len(parts) {
	case 1:
		return nameUnescaper.Replace(parts[0]), "", nil
	case 2:
		return nameUnescaper.Replace(parts[0]), nameUnescaper.Replace(parts[1]), nil
	}
	return "", "", fmt.Errorf("%q is not a store or index collection name", physical)
}
