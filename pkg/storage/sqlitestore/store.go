// Package sqlitestore implements the state store on a single SQLite database.
//
// Tables:
//
//	collections(name)                PRIMARY KEY (name)
//	entries(collection, key, value)  PRIMARY KEY (collection, key)
//
// Keys are BLOBs, which SQLite compares with memcmp, so ORDER BY key is byte
// order. Writable transactions begin IMMEDIATE: writers are serialized by
// SQLite and a writer that cannot get the lock within the busy timeout fails
// with domain.ErrTransactionConflict. Read-only transactions run on a second,
// query-only handle with deferred locking and read a WAL snapshot without
// waiting for writers.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

// BusyTimeoutMillis is how long a transaction waits for the write lock.
const BusyTimeoutMillis = 5000

// Store implements domain.StateManager on SQLite.
type Store struct {
	db     *sql.DB
	readDB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_journal_mode=WAL", dbPath, BusyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT NOT NULL PRIMARY KEY
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collections table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		collection TEXT NOT NULL,
		key BLOB NOT NULL,
		value BLOB,
		PRIMARY KEY (collection, key)
	) WITHOUT ROWID`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create entries table: %w", err)
	}

	readDSN := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=deferred&_query_only=true", dbPath, BusyTimeoutMillis)
	readDB, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, readDB: readDB}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.readDB.Close(), s.db.Close())
}

func (s *Store) BeginTransaction(ctx context.Context, writable bool) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := s.readDB
	if writable {
		db = s.db
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	return &transaction{id: uuid.NewString(), store: s, tx: tx, writable: writable}, nil
}

func (s *Store) GetOrCreateCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}

	ok, err := t.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return &collection{store: s, name: name}, nil
	}
	if !t.writable {
		return nil, domain.ErrReadOnlyTransaction
	}
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO collections (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, mapError(err))
	}
	return &collection{store: s, name: name}, nil
}

func (s *Store) TryGetCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, bool, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	ok, err := t.exists(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	return &collection{store: s, name: name}, true, nil
}

func (s *Store) RemoveCollection(ctx context.Context, tx domain.Transaction, name string) error {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return err
	}
	if !t.writable {
		return domain.ErrReadOnlyTransaction
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM entries WHERE collection = ?", name); err != nil {
		return fmt.Errorf("failed to delete entries of %s: %w", name, mapError(err))
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, mapError(err))
	}
	return nil
}

func (s *Store) EnumerateCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", mapError(err))
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, &collection{store: s, name: name})
	}
	return out, rows.Err()
}

func (s *Store) begin(ctx context.Context, tx domain.Transaction) (*transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := tx.(*transaction)
	if !ok || t.store != s {
		return nil, domain.ErrForeignTransaction
	}
	if t.done {
		return nil, domain.ErrTransactionClosed
	}
	return t, nil
}

// mapError translates lock contention into domain.ErrTransactionConflict.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	if errors.Is(err, sql.ErrTxDone) {
		return domain.ErrTransactionClosed
	}
	return err
}
