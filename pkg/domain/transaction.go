package domain

import (
	"context"
	"fmt"
)

// RunInTransaction begins a writable transaction, runs fn and commits when fn
// returns nil. Any error from fn aborts the transaction and is returned as is.
func RunInTransaction(ctx context.Context, sm StateManager, fn func(tx Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := sm.BeginTransaction(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Abort()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RunReadOnly runs fn inside a read-only transaction.
func RunReadOnly(ctx context.Context, sm StateManager, fn func(tx Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := sm.BeginTransaction(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Abort()

	return fn(tx)
}
