package documents

import "errors"

var (
	ErrStoreNotFound    = errors.New("store not found")
	ErrStoreExists      = errors.New("store already declared with different indexes")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrInvalidSpec      = errors.New("invalid store declaration")
	ErrInvalidDocument  = errors.New("invalid document")
)
