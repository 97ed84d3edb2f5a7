package domain

import "errors"

var (
	// ErrTransactionConflict is returned by Commit when a concurrent
	// transaction changed data this transaction depended on.
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrTransactionClosed   = errors.New("transaction already committed or aborted")
	ErrReadOnlyTransaction = errors.New("write in read-only transaction")
	ErrCollectionNotFound  = errors.New("collection not found")
	// ErrForeignTransaction means a transaction from one store was passed to another.
	ErrForeignTransaction = errors.New("transaction belongs to a different store")
	ErrInvalidPagination  = errors.New("invalid pagination")
)
