// Package memory is an in-process transactional state store with optimistic
// concurrency control and an optional commit log.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

var ErrStoreClosed = errors.New("store is closed")

type entry struct {
	value   []byte
	version uint64
}

// collectionData is the committed state of one collection. modVersion is the
// commit version of the last write to any of its entries.
type collectionData struct {
	id         uint64
	name       string
	entries    map[string]entry
	modVersion uint64
}

func newCollectionData(id uint64, name string) *collectionData {
	return &collectionData{id: id, name: name, entries: make(map[string]entry)}
}

// Store implements domain.StateManager in memory. Transactions buffer their
// writes and validate everything they read at commit; a transaction whose
// reads were overwritten by a concurrent commit fails with
// domain.ErrTransactionConflict.
type Store struct {
	mu      sync.RWMutex
	byName  map[string]*collectionData
	byID    map[uint64]*collectionData
	aliases map[uint64]uint64 // merged staged creation id -> committed id
	version uint64
	nextID  atomic.Uint64
	closed  bool

	// Configuration
	dataDir             string
	durability          DurabilityLevel
	checkpointInterval  time.Duration
	checkpointThreshold int

	// Durability
	wal                    *commitLog
	lsn                    uint64
	commitsSinceCheckpoint int

	// Background workers
	backgroundWg sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// New creates a store. With WithDataDir the store recovers its previous state
// from disk before returning.
func New(options ...Option) (*Store, error) {
	s := &Store{
		byName:   make(map[string]*collectionData),
		byID:     make(map[uint64]*collectionData),
		aliases:  make(map[uint64]uint64),
		stopChan: make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}

	if s.durable() {
		if err := os.MkdirAll(s.dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := s.recover(); err != nil {
			return nil, fmt.Errorf("failed to recover store: %w", err)
		}
		s.wal = newCommitLog(s.dataDir, s.durability)
		if err := s.checkpointLocked(); err != nil {
			s.wal.close()
			return nil, err
		}
	}

	s.startBackgroundWorkers()
	return s, nil
}

func (s *Store) durable() bool {
	return s.dataDir != "" && s.durability != DurabilityNone
}

func (s *Store) BeginTransaction(ctx context.Context, writable bool) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	return newTransaction(s, writable), nil
}

// GetOrCreateCollection returns the named collection, staging its creation in
// tx when it does not exist. Concurrent creators of the same name converge on
// one collection at commit.
func (s *Store) GetOrCreateCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}

	if pending, ok := t.created[name]; ok {
		return &collection{store: s, id: pending.id, name: name}, nil
	}
	if !t.isRemoved(name) {
		s.mu.RLock()
		cd, ok := s.byName[name]
		s.mu.RUnlock()
		if ok {
			return &collection{store: s, id: cd.id, name: name}, nil
		}
	}
	if !t.writable {
		return nil, domain.ErrReadOnlyTransaction
	}

	pending := newCollectionData(s.nextID.Add(1), name)
	t.created[name] = pending
	t.pendingIDs[pending.id] = name
	return &collection{store: s, id: pending.id, name: name}, nil
}

func (s *Store) TryGetCollection(ctx context.Context, tx domain.Transaction, name string) (domain.Collection, bool, error) {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if pending, ok := t.created[name]; ok {
		return &collection{store: s, id: pending.id, name: name}, true, nil
	}
	if t.isRemoved(name) {
		return nil, false, nil
	}
	s.mu.RLock()
	cd, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return &collection{store: s, id: cd.id, name: name}, true, nil
}

func (s *Store) RemoveCollection(ctx context.Context, tx domain.Transaction, name string) error {
	t, err := s.begin(ctx, tx)
	if err != nil {
		return err
	}
	if !t.writable {
		return domain.ErrReadOnlyTransaction
	}

	if pending, ok := t.created[name]; ok {
		delete(t.created, name)
		delete(t.pendingIDs, pending.id)
		delete(t.writes, pending.id)
		t.removedIDs[pending.id] = struct{}{}
	}
	if t.isRemoved(name) {
		return nil
	}
	s.mu.RLock()
	cd, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		t.removed[name] = struct{}{}
		t.removedIDs[cd.id] = struct{}{}
		delete(t.writes, cd.id)
	}
	return nil
}

// EnumerateCollections lists committed collections in name order.
func (s *Store) EnumerateCollections(ctx context.Context) ([]domain.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]domain.Collection, 0, len(names))
	for _, name := range names {
		out = append(out, &collection{store: s, id: s.byName[name].id, name: name})
	}
	return out, nil
}

// Close stops background workers, writes a final snapshot when durable and
// rejects further transactions.
func (s *Store) Close() error {
	s.stopBackgroundWorkers()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.wal == nil {
		return nil
	}
	var errs []error
	if err := s.checkpointLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := s.wal.close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close commit log: %w", err))
	}
	return errors.Join(errs...)
}

// canonical maps a handle id to the collection it was merged into. Callers
// hold s.mu.
func (s *Store) canonical(id uint64) uint64 {
	if to, ok := s.aliases[id]; ok {
		return to
	}
	return id
}

// begin checks ctx and that tx is an open transaction of this store.
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
