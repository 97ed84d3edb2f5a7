package domain

// IndexKind selects how a document field is turned into index keys
type IndexKind string

const (
	// IndexKindFilter indexes the field value as a single key
	IndexKindFilter IndexKind = "filter"
	// IndexKindSearch indexes every word of a string field
	IndexKindSearch IndexKind = "search"
)

// IndexSpec declares an index over a document field
type IndexSpec struct {
	Name  string    `json:"name" msgpack:"name" validate:"required,max=128"`
	Field string    `json:"field" msgpack:"field" validate:"required"`
	Kind  IndexKind `json:"kind,omitempty" msgpack:"kind" validate:"omitempty,oneof=filter search"`
}

// StoreSpec declares a document store and its indexes
type StoreSpec struct {
	Name    string      `json:"name" msgpack:"name" validate:"required,max=128,startsnotwith=_"`
	Indexes []IndexSpec `json:"indexes" msgpack:"indexes" validate:"dive"`
}
