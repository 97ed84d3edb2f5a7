package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type collection struct {
	store *Store
	name  string
}

func (c *collection) Name() string { return c.name }

// blob keeps nil keys from binding as NULL.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (c *collection) Get(ctx context.Context, tx domain.Transaction, key []byte) ([]byte, bool, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if err := t.checkVisible(ctx, c.name); err != nil {
		return nil, false, err
	}
	var value []byte
	err = t.tx.QueryRowContext(ctx,
		"SELECT value FROM entries WHERE collection = ? AND key = ?",
		c.name, blob(key),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (c *collection) Set(ctx context.Context, tx domain.Transaction, key, value []byte) error {
	t, err := c.writer(ctx, tx)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO entries (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
		c.name, blob(key), blob(value),
	)
	return mapError(err)
}

func (c *collection) Delete(ctx context.Context, tx domain.Transaction, key []byte) (bool, error) {
	t, err := c.writer(ctx, tx)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM entries WHERE collection = ? AND key = ?",
		c.name, blob(key),
	)
	if err != nil {
		return false, mapError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *collection) writer(ctx context.Context, tx domain.Transaction) (*transaction, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !t.writable {
		return nil, domain.ErrReadOnlyTransaction
	}
	if err := t.checkVisible(ctx, c.name); err != nil {
		return nil, err
	}
	return t, nil
}

// Scan reads the whole range when iteration starts and closes the rows
// before yielding, so callers may issue further statements on tx while
// iterating.
func (c *collection) Scan(ctx context.Context, tx domain.Transaction, lo, hi []byte) iter.Seq2[domain.Entry, error] {
	return func(yield func(domain.Entry, error) bool) {
		entries, err := c.scan(ctx, tx, lo, hi)
		if err != nil {
			yield(domain.Entry{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (c *collection) scan(ctx context.Context, tx domain.Transaction, lo, hi []byte) ([]domain.Entry, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := t.checkVisible(ctx, c.name); err != nil {
		return nil, err
	}

	var query strings.Builder
	query.WriteString("SELECT key, value FROM entries WHERE collection = ?")
	args := []interface{}{c.name}
	if lo != nil {
		query.WriteString(" AND key >= ?")
		args = append(args, lo)
	}
	if hi != nil {
		query.WriteString(" AND key <= ?")
		args = append(args, hi)
	}
	query.WriteString(" ORDER BY key")

	rows, err := t.tx.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", c.name, mapError(err))
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		if e.Value == nil {
			e.Value = []byte{}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *collection) Count(ctx context.Context, tx domain.Transaction) (int64, error) {
	t, err := c.store.begin(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := t.checkVisible(ctx, c.name); err != nil {
		return 0, err
	}
	var n int64
	err = t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE collection = ?", c.name).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
