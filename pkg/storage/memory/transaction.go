package memory

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type readKey struct {
	coll uint64
	key  string
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// transaction buffers directory changes and writes until Commit. It is not
// safe for concurrent use.
type transaction struct {
	id       string
	store    *Store
	writable bool
	done     bool

	created    map[string]*collectionData // staged creations by name
	pendingIDs map[uint64]string          // staged creation id -> name
	removed    map[string]struct{}        // committed names to drop
	removedIDs map[uint64]struct{}

	writes map[uint64]map[string]pendingWrite
	reads  map[readKey]uint64 // version observed, 0 when absent
	scans  map[uint64]uint64  // collection modVersion observed by scans and counts
}

func newTransaction(s *Store, writable bool) *transaction {
	return &transaction{
		id:         uuid.NewString(),
		store:      s,
		writable:   writable,
		created:    make(map[string]*collectionData),
		pendingIDs: make(map[uint64]string),
		removed:    make(map[string]struct{}),
		removedIDs: make(map[uint64]struct{}),
		writes:     make(map[uint64]map[string]pendingWrite),
		reads:      make(map[readKey]uint64),
		scans:      make(map[uint64]uint64),
	}
}

func (t *transaction) ID() string     { return t.id }
func (t *transaction) Writable() bool { return t.writable }

func (t *transaction) isRemoved(name string) bool {
	_, ok := t.removed[name]
	return ok
}

// visible returns the committed state behind collection id as seen by t, nil
// for a collection staged in t. Callers hold store.mu.
func (t *transaction) visible(id uint64) (*collectionData, error) {
	if _, ok := t.removedIDs[id]; ok {
		return nil, domain.ErrCollectionNotFound
	}
	if _, ok := t.pendingIDs[id]; ok {
		return nil, nil
	}
	if cd, ok := t.store.byID[id]; ok {
		return cd, nil
	}
	return nil, domain.ErrCollectionNotFound
}

func (t *transaction) recordRead(id uint64, key string, version uint64) {
	rk := readKey{coll: id, key: key}
	if _, ok := t.reads[rk]; !ok {
		t.reads[rk] = version
	}
}

func (t *transaction) recordScan(id uint64, version uint64) {
	if _, ok := t.scans[id]; !ok {
		t.scans[id] = version
	}
}

func (t *transaction) stage(id uint64, key string, w pendingWrite) {
	ws, ok := t.writes[id]
	if !ok {
		ws = make(map[string]pendingWrite)
		t.writes[id] = ws
	}
	ws[key] = w
}

// Commit validates and applies the transaction. Read-only transactions
// never conflict.
func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTransactionClosed
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.writable {
		return nil
	}
	return t.store.commit(t)
}

func (t *transaction) Abort() error {
	t.done = true
	return nil
}

// commit applies t atomically. Directory removals are applied before
// creations, and a staged creation of a name another transaction already
// created is merged into the existing collection.
func (s *Store) commit(t *transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	// target resolves the committed collection an id will refer to once t
	// is applied. nil means a fresh collection.
	target := func(id uint64) (*collectionData, bool) {
		if name, ok := t.pendingIDs[id]; ok {
			if t.isRemoved(name) {
				return nil, true
			}
			return s.byName[name], true
		}
		cd, ok := s.byID[id]
		return cd, ok
	}

	for rk, observed := range t.reads {
		cd, ok := target(rk.coll)
		if !ok {
			return fmt.Errorf("%w: collection removed concurrently", domain.ErrTransactionConflict)
		}
		var current uint64
		if cd != nil {
			current = cd.entries[rk.key].version
		}
		if current != observed {
			return domain.ErrTransactionConflict
		}
	}
	for id, observed := range t.scans {
		cd, ok := target(id)
		if !ok {
			return fmt.Errorf("%w: collection removed concurrently", domain.ErrTransactionConflict)
		}
		var current uint64
		if cd != nil {
			current = cd.modVersion
		}
		if current != observed {
			return domain.ErrTransactionConflict
		}
	}

	writeIDs := make([]uint64, 0, len(t.writes))
	for id := range t.writes {
		if _, removed := t.removedIDs[id]; removed {
			continue
		}
		if _, ok := target(id); !ok {
			return fmt.Errorf("%w: written collection was removed concurrently", domain.ErrCollectionNotFound)
		}
		writeIDs = append(writeIDs, id)
	}
	slices.Sort(writeIDs)

	rec := t.record(writeIDs)
	if rec.empty() {
		return nil
	}
	if s.wal != nil {
		rec.LSN = s.lsn + 1
		rec.Timestamp = time.Now().UnixNano()
		if err := s.wal.append(rec); err != nil {
			return fmt.Errorf("failed to write commit log: %w", err)
		}
		s.lsn = rec.LSN
	}

	s.version++
	v := s.version

	for _, name := range rec.Removed {
		s.dropCollection(name)
	}
	resolved := make(map[uint64]*collectionData, len(t.created))
	for _, name := range rec.Created {
		pending := t.created[name]
		if existing, ok := s.byName[name]; ok {
			resolved[pending.id] = existing
			s.aliases[pending.id] = existing.id
			continue
		}
		s.byName[name] = pending
		s.byID[pending.id] = pending
		resolved[pending.id] = pending
	}
	for _, id := range writeIDs {
		cd, ok := resolved[id]
		if !ok {
			cd = s.byID[id]
		}
		for key, w := range t.writes[id] {
			if w.deleted {
				delete(cd.entries, key)
			} else {
				cd.entries[key] = entry{value: w.value, version: v}
			}
		}
		cd.modVersion = v
	}

	s.commitsSinceCheckpoint++
	if s.wal != nil && s.checkpointThreshold > 0 && s.commitsSinceCheckpoint >= s.checkpointThreshold {
		if err := s.checkpointLocked(); err != nil {
			log.Printf("WARN: Checkpoint after commit failed: %v", err)
		}
	}
	return nil
}

// record describes t as a commit log record. Callers hold store.mu.
func (t *transaction) record(writeIDs []uint64) *logRecord {
	rec := &logRecord{}
	for name := range t.removed {
		rec.Removed = append(rec.Removed, name)
	}
	for name := range t.created {
		rec.Created = append(rec.Created, name)
	}
	slices.Sort(rec.Removed)
	slices.Sort(rec.Created)

	for _, id := range writeIDs {
		name, ok := t.pendingIDs[id]
		if !ok {
			name = t.store.byID[id].name
		}
		keys := make([]string, 0, len(t.writes[id]))
		for key := range t.writes[id] {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			w := t.writes[id][key]
			rec.Writes = append(rec.Writes, logWrite{
				Collection: name,
				Key:        []byte(key),
				Value:      w.value,
				Deleted:    w.deleted,
			})
		}
	}
	return rec
}

// dropCollection removes a committed collection. Callers hold store.mu.
func (s *Store) dropCollection(name string) {
	if cd, ok := s.byName[name]; ok {
		delete(s.byName, name)
		delete(s.byID, cd.id)
		for from, to := range s.aliases {
			if to == cd.id {
				delete(s.aliases, from)
			}
		}
	}
}
