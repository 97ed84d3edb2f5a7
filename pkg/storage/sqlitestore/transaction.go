package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type transaction struct {
	id       string
	store    *Store
	tx       *sql.Tx
	writable bool
	done     bool
}

func (t *transaction) ID() string     { return t.id }
func (t *transaction) Writable() bool { return t.writable }

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTransactionClosed
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		t.tx.Rollback()
		return err
	}
	if !t.writable {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", t.id, mapError(err))
	}
	return nil
}

func (t *transaction) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	// database/sql rolls back on its own when the begin context is cancelled
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

func (t *transaction) exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, "SELECT 1 FROM collections WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read collection directory: %w", mapError(err))
	}
	return true, nil
}

func (t *transaction) checkVisible(ctx context.Context, name string) error {
	ok, err := t.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return nil
}
