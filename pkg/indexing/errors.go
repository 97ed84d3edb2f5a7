package indexing

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationConflict is returned when one call declares the same
	// index name twice with different definitions.
	ErrConfigurationConflict = errors.New("conflicting index definitions")
	ErrInvalidIndex          = errors.New("invalid index definition")
	ErrInvalidStoreName      = errors.New("invalid store name")
	ErrKeyExists             = errors.New("key already exists")
	ErrKeyNotFound           = errors.New("key not found")
	// ErrUnorderedIndex is returned by range lookups on an index whose key
	// encoding does not preserve order.
	ErrUnorderedIndex = errors.New("index keys are not ordered")
	ErrIndexNotFound  = errors.New("index not declared on this store")
)

// Phase identifies which member of a bundle an operation was touching when
// it failed.
type Phase string

const (
	PhasePrimary Phase = "primary"
	PhaseIndex   Phase = "index"
	PhaseExtract Phase = "extract"
)

// IndexError tags a failure with the operation and bundle member involved.
// It unwraps to the underlying store error.
type IndexError struct {
	Op    string
	Phase Phase
	Index string
	Err   error
}

func (e *IndexError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Phase, e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
