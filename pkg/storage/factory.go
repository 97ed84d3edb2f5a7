// Package storage opens one of the domain.StateManager backends by name.
package storage

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/storage/badgerstore"
	"github.com/adfharrison1/go-indexdb/pkg/storage/memory"
	"github.com/adfharrison1/go-indexdb/pkg/storage/sqlitestore"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config selects and tunes a backend.
type Config struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory badger sqlite"`
	DataDir string `yaml:"data_dir" validate:"required_if=Backend badger,required_if=Backend sqlite"`

	// Durability applies to the memory backend: none, os or full.
	Durability         string        `yaml:"durability" validate:"omitempty,oneof=none os full"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" validate:"gte=0"`
	CheckpointEvery    int           `yaml:"checkpoint_every" validate:"gte=0"`

	// SyncWrites applies to the badger backend.
	SyncWrites bool `yaml:"sync_writes"`
}

// New opens the state store named by cfg.Backend.
//
// Supported backends:
//
//	"memory" - in-process; durable when DataDir is set (default)
//	"badger" - badger database in DataDir/badger
//	"sqlite" - SQLite database at DataDir/indexdb.db
func New(cfg Config) (domain.StateManager, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		opts, err := memoryOptions(cfg)
		if err != nil {
			return nil, err
		}
		log.Printf("INFO: Opening memory state store (data dir %q)", cfg.DataDir)
		s, err := memory.New(opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		bc := badgerstore.DefaultConfig(filepath.Join(cfg.DataDir, "badger"))
		bc.SyncWrites = cfg.SyncWrites
		log.Printf("INFO: Opening badger state store at %s", bc.Path)
		s, err := badgerstore.Open(bc)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		path := filepath.Join(cfg.DataDir, "indexdb.db")
		log.Printf("INFO: Opening sqlite state store at %s", path)
		s, err := sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q (supported: memory, badger, sqlite)", cfg.Backend)
	}
}

func memoryOptions(cfg Config) ([]memory.Option, error) {
	if cfg.DataDir == "" {
		return nil, nil
	}
	opts := []memory.Option{memory.WithDataDir(cfg.DataDir)}
	switch cfg.Durability {
	case "", "os":
		opts = append(opts, memory.WithDurability(memory.DurabilityOS))
	case "full":
		opts = append(opts, memory.WithDurability(memory.DurabilityFull))
	case "none":
		opts = append(opts, memory.WithDurability(memory.DurabilityNone))
	default:
		return nil, fmt.Errorf("unknown durability level: %q", cfg.Durability)
	}
	if cfg.CheckpointInterval > 0 {
		opts = append(opts, memory.WithCheckpointInterval(cfg.CheckpointInterval))
	}
	if cfg.CheckpointEvery > 0 {
		opts = append(opts, memory.WithCheckpointThreshold(cfg.CheckpointEvery))
	}
	return opts, nil
}
