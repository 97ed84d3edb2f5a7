package memory

import "time"

// DurabilityLevel controls when committed transactions reach disk.
type DurabilityLevel int

const (
	DurabilityNone DurabilityLevel = iota // No commit log, nothing survives Close
	DurabilityOS                          // Commit log written to the OS page cache (default with a data dir)
	DurabilityFull                        // Commit log fsynced on every commit
)

type Option func(*Store)

// WithDataDir enables the commit log and snapshots under dir.
func WithDataDir(dir string) Option {
	return func(s *Store) {
		s.dataDir = dir
		if s.durability == DurabilityNone {
			s.durability = DurabilityOS
		}
	}
}

// WithDurability sets the durability level. It has no effect without a data dir.
func WithDurability(level DurabilityLevel) Option {
	return func(s *Store) {
		s.durability = level
	}
}

// WithCheckpointInterval starts a background worker that snapshots the store
// and truncates the commit log every interval.
func WithCheckpointInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.checkpointInterval = interval
	}
}

// WithCheckpointThreshold snapshots the store after every n commits.
func WithCheckpointThreshold(n int) Option {
	return func(s *Store) {
		s.checkpointThreshold = n
	}
}
