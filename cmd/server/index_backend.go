package main

import (
	"path/filepath"
	"strings"

	"traincraft.dev/internal/config"
	"traincraft.dev/internal/persistence/indexdb"
	"traincraft.dev/internal/persistence/snapshot"
	"traincraft.dev/internal/sim/catalogs"
	"traincraft.dev/internal/sim/tuning"
	"traincraft.dev/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.TickObserver
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

// openRuntimeIndex opens the sqlite read model, or returns nil when it is disabled.
func openRuntimeIndex(cfg config.IndexConfig, worldDir string) (runtimeIndex, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dbPath := strings.TrimSpace(cfg.Path)
	if dbPath == "" {
		dbPath = filepath.Join(worldDir, "index", "world.sqlite")
	}
	return indexdb.OpenSQLite(dbPath)
}

// multiTickLogger fans one tick entry out to the JSONL log and the index.
type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return err
}
