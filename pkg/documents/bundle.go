package documents

import (
	"fmt"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// fieldIndex is a declared index together with its lookup key builder.
type fieldIndex struct {
	spec domain.IndexSpec
	def  indexing.Index[string, domain.Document]
	key  func(raw string) indexing.IndexKey
}

// bundle is the resolved form of a StoreSpec: index definitions built once
// and reused for every request against the store.
type bundle struct {
	spec    domain.StoreSpec
	indexes []fieldIndex
	defs    []indexing.Index[string, domain.Document]
}

func newBundle(spec domain.StoreSpec) (*bundle, error) {
	b := &bundle{spec: spec}
	for _, is := range spec.Indexes {
		fi, err := newFieldIndex(is)
		if err != nil {
			return nil, err
		}
		b.indexes = append(b.indexes, fi)
		b.defs = append(b.defs, fi.def)
	}
	return b, nil
}

func newFieldIndex(is domain.IndexSpec) (fieldIndex, error) {
	field := is.Field
	switch is.Kind {
	case domain.IndexKindFilter, "":
		def := indexing.NewFilterableIndexWithCodec[string, domain.Document, any](is.Name, FieldValueCodec{},
			func(_ string, doc domain.Document) any {
				return FieldValue(doc, field)
			})
		return fieldIndex{
			spec: is,
			def:  def,
			key:  func(raw string) indexing.IndexKey { return def.Key(ParseValue(raw)) },
		}, nil
	case domain.IndexKindSearch:
		def := indexing.NewSearchableIndex(is.Name, func(_ string, doc domain.Document) string {
			switch v := FieldValue(doc, field).(type) {
			case nil:
				return ""
			case string:
				return v
			default:
				return fmt.Sprint(v)
			}
		})
		return fieldIndex{spec: is, def: def, key: def.Word}, nil
	}
	return fieldIndex{}, fmt.Errorf("%w: unknown index kind %q", ErrInvalidSpec, is.Kind)
}

func (b *bundle) index(name string) (fieldIndex, error) {
	for _, fi := range b.indexes {
		if fi.spec.Name == name {
			return fi, nil
		}
	}
	return fieldIndex{}, fmt.Errorf("%w: %q on store %s", indexing.ErrIndexNotFound, name, b.spec.Name)
}
