package memory

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint writes a snapshot of every committed collection and discards
// the commit log it covers. It is a no-op for stores without a data dir.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.checkpointLocked()
}

// checkpointLocked is Checkpoint for callers holding s.mu.
func (s *Store) checkpointLocked() error {
	if s.wal == nil {
		return nil
	}
	start := time.Now()

	data := &SnapshotData{
		LSN:         s.lsn,
		Collections: make(map[string]map[string][]byte, len(s.byName)),
	}
	for name, cd := range s.byName {
		entries := make(map[string][]byte, len(cd.entries))
		for k, e := range cd.entries {
			entries[k] = e.value
		}
		data.Collections[name] = entries
	}

	encoded, err := EncodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Write to temporary file first
	path := filepath.Join(s.dataDir, SnapshotFile)
	tempFile := path + ".tmp"
	if err := writeFileSync(tempFile, encoded); err != nil {
		return fmt.Errorf("failed to write temporary snapshot file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	if err := s.wal.rotate(); err != nil {
		return fmt.Errorf("failed to rotate commit log: %w", err)
	}
	s.commitsSinceCheckpoint = 0

	log.Printf("INFO: Checkpoint at LSN %d completed in %v (%d collections)", s.lsn, time.Since(start), len(data.Collections))
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := bytes.NewReader(data).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// startBackgroundWorkers starts the periodic checkpoint worker
func (s *Store) startBackgroundWorkers() {
	if s.wal == nil || s.checkpointInterval <= 0 {
		return
	}

	s.backgroundWg.Add(1)
	go func() {
		defer s.backgroundWg.Done()
		ticker := time.NewTicker(s.checkpointInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Checkpoint(); err != nil {
					log.Printf("WARN: Background checkpoint failed: %v", err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
}

// stopBackgroundWorkers stops background workers
func (s *Store) stopBackgroundWorkers() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.backgroundWg.Wait()
}
