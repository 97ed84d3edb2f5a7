// Package badgerstore implements the state store on badger. Collections
// share one keyspace: a directory entry per collection name and data keys
// prefixed with the length-delimited collection name.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

const (
	directoryPrefix byte = 0x01
	dataPrefix      byte = 0x02
)

func directoryKey(name string) []byte {
	return append([]byte{directoryPrefix}, name...)
}

// collectionPrefix is the prefix of every data key of name. The length
// delimiter keeps "a" from matching the keys of "ab".
func collectionPrefix(name string) []byte {
	prefix := make([]byte, 0, 1+binary.MaxVarintLen64+len(name))
	prefix = append(prefix, dataPrefix)
	prefix = binary.AppendUvarint(prefix, uint64(len(name)))
	return append(prefix, name...)
}

func dataKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// Store implements domain.StateManager on a badger database.
type Store struct {
	db *badger.DB

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Verbose {
		opts = opts.WithLogger(logger{})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	s := &Store{db: db, stopChan: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *Store) startGC(interval time.Duration, ratio float64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// ErrNoRewrite means there was nothing to collect
				if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					log.Printf("WARN: badger value log GC failed: %v", err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func (s *Store) BeginTransaction(ctx context.Context, writable bool) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, badger.ErrDBClosed
	}
	return &transaction{
		id:       uuid.NewString(),
		store:    s,
		txn:      s.db.NewTransaction(writable),
		writable: writable,
		created:  make(map[string]struct{}),
		removed:  make(map[string]struct{}),
	}, nil
}

// directoryVersion returns the commit version of name's latest directory
// entry, 0 when there is none. The lookup runs outside any caller
// transaction so it does not join that transaction's conflict set;
// concurrent creators then write the same directory entry blindly and both
// commit.
func (s *Store) directoryVersion(name string) (uint64, error) {
	var version uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(directoryKey(name))
		if err != nil {
			return err
		}
		version = item.Version()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// visibleTo reports whether name's committed directory entry is part of t's
// snapshot. An entry committed after t began is not.
func (s *Store) visibleTo(t *transaction, name string) (bool, error) {
	version, err := s.directoryVersion(name)
	if err != nil {
		return false, fmt.Errorf("failed to read collection directory: %w", err)
	}
	return version != 0 && version <= t.txn.ReadTs(), nil
}

func (s *Store) GetOrCreateCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	c := newCollection(s, name)

	if _, ok := t.created[name]; ok {
		return c, nil
	}
	if _, removed := t.removed[name]; !removed {
		ok, err := s.visibleTo(t, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	if !t.writable {
		return nil, domain.ErrReadOnlyTransaction
	}

	// Also taken when a peer created name after t began: the blind write
	// lets t commit alongside the peer instead of failing on a directory
	// entry its snapshot cannot see.
	if err := t.txn.Set(directoryKey(name), nil); err != nil {
		return nil, mapError(err)
	}
	t.created[name] = struct{}{}
	delete(t.removed, name)
	return c, nil
}

func (s *Store) TryGetCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, bool, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if _, ok := t.created[name]; ok {
		return newCollection(s, name), true, nil
	}
	if _, ok := t.removed[name]; ok {
		return nil, false, nil
	}
	ok, err := s.visibleTo(t, name)
	if err != nil || !ok {
		return nil, false, err
	}
	return newCollection(s, name), true, nil
}

// RemoveCollection deletes the directory entry and every data key of name.
// Data keys are read through tx, so a concurrent writer to the collection
// makes one of the two transactions conflict.
func (s *Store) RemoveCollection(ctx context.Context, tx domain.Transaction, name string) error {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return err
	}
	if !t.writable {
		return domain.ErrReadOnlyTransaction
	}

	_, created := t.created[name]
	if !created {
		if _, ok := t.removed[name]; ok {
			return nil
		}
		// read through t so a concurrent creator conflicts with the removal
		_, err := t.txn.Get(directoryKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read collection directory: %w", mapError(err))
		}
	}

	prefix := collectionPrefix(name)
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := t.txn.Delete(k); err != nil {
			return mapError(err)
		}
	}
	if err := t.txn.Delete(directoryKey(name)); err != nil {
		return mapError(err)
	}
	delete(t.created, name)
	t.removed[name] = struct{}{}
	return nil
}

// EnumerateCollections lists committed collections in name order.
func (s *Store) EnumerateCollections(ctx context.Context) ([]domain.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Collection
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{directoryPrefix}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			name := string(it.Item().Key()[1:])
			out = append(out, newCollection(s, name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return out, nil
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

// mapError translates badger errors into domain errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return domain.ErrReadOnlyTransaction
	case errors.Is(err, badger.ErrDiscardedTxn):
		return domain.ErrTransactionClosed
	}
	return err
}
