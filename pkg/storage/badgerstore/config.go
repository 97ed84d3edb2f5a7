package badgerstore

import (
	"fmt"
	"log"
	"time"
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Verbose routes badger's own logging through the process logger.
	Verbose bool

	// GCInterval is how often value log garbage collection runs. 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a value log file is
	// rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// logger adapts badger's logger interface to the process log with level
// prefixes.
type logger struct{}

func (logger) Errorf(format string, args ...interface{}) {
	log.Printf("ERROR: badger: %s", fmt.Sprintf(format, args...))
}

func (logger) Warningf(format string, args ...interface{}) {
	log.Printf("WARN: badger: %s", fmt.Sprintf(format, args...))
}

func (logger) Infof(format string, args ...interface{}) {
	log.Printf("INFO: badger: %s", fmt.Sprintf(format, args...))
}

func (logger) Debugf(format string, args ...interface{}) {
	log.Printf("DEBUG: badger: %s", fmt.Sprintf(format, args...))
}
