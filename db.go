// Package reedbase is the database orchestrator: it owns every
// table and index for the lifetime of a Database value, routes parsed
// queries and mutations to the executor, and drives auto-indexing.
package reedbase

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/reedbase/reedbase/internal/eventlog"
	"github.com/reedbase/reedbase/internal/index"
	"github.com/reedbase/reedbase/internal/table"
)

// Database is a single embedded database rooted at one directory. A
// *Database is safe for concurrent use: internal maps are guarded by a
// readers-writer lock. Mutations take the writer side, and so does
// Query, which may create auto-indices and updates per-index usage
// counters; read-only introspection takes the reader side.
type Database struct {
	mu  sync.RWMutex
	dir string

	config Config
	logger *zap.Logger

	tables  map[string]*table.Store
	indices map[string]index.Index
	meta    map[string]*IndexMeta

	actions *eventlog.Registry
	users   *eventlog.Registry
	cache   *lru.Cache[string, []byte]

	tracker     *patternTracker
	queryCounts map[string]int
}

func tablesDir(dir string) string    { return filepath.Join(dir, "tables") }
func indicesDir(dir string) string   { return filepath.Join(dir, "indices") }
func registryDir(dir string) string  { return filepath.Join(dir, "registry") }
func metadataPath(dir string) string { return filepath.Join(indicesDir(dir), "metadata.json") }

// Open ensures the database's directory layout exists, loads every
// table found on disk, and reloads every persistent (btree) index
// listed in the index metadata file. Non-persistent (hash) indices are
// silently skipped — they are re-created by auto-indexing as needed.
func Open(dir string, cfg *Config, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved := DefaultConfig()
	if cfg != nil {
		resolved = *cfg
	}

	for _, d := range []string{dir, tablesDir(dir), indicesDir(dir), registryDir(dir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("reedbase: open: %w", err)
		}
	}

	actions, err := eventlog.OpenRegistry(filepath.Join(registryDir(dir), "actions.json"))
	if err != nil {
		return nil, err
	}
	users, err := eventlog.OpenRegistry(filepath.Join(registryDir(dir), "users.json"))
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, []byte](max(resolved.SnapshotCacheSize, 1))
	if err != nil {
		return nil, err
	}

	db := &Database{
		dir:         dir,
		config:      resolved,
		logger:      logger,
		tables:      map[string]*table.Store{},
		indices:     map[string]index.Index{},
		meta:        map[string]*IndexMeta{},
		actions:     actions,
		users:       users,
		cache:       cache,
		tracker:     newPatternTracker(),
		queryCounts: map[string]int{},
	}

	entries, err := os.ReadDir(tablesDir(dir))
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		name := ent.Name()
		db.tables[name] = table.Open(dir, name, actions, users, cache, logger, resolved.HashAlgorithm)
	}

	if err := db.loadIndexMetadata(); err != nil {
		return nil, err
	}

	logger.Info("database opened", zap.String("dir", dir), zap.Int("tables", len(db.tables)))
	return db, nil
}

// Close releases every persistent index's file handles and mmaps. It
// does not touch table state, which holds no open handles between
// calls beyond its (unlocked) advisory lock file descriptor.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for key, idx := range db.indices {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("reedbase: close index %s: %w", key, err)
		}
	}
	return firstErr
}

// CreateTable creates a new table with the given column schema
// (defaulting to "key|value" when schema is empty) and, when
// auto-indexing is enabled, synchronously creates its primary-key hash
// index.
func (db *Database) CreateTable(name string, schema []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; exists {
		return table.ErrTableAlreadyExists
	}
	if len(schema) == 0 {
		schema = []string{"key", "value"}
	}

	store := table.Open(db.dir, name, db.actions, db.users, db.cache, db.logger, db.config.HashAlgorithm)
	header := serializeRows(schema, nil)
	if err := store.Init(header, "system"); err != nil {
		return err
	}
	db.tables[name] = store
	db.logger.Info("table created", zap.String("table", name))

	if db.config.AutoIndexEnabled {
		if err := db.createIndexLocked(name, "key", "hash", true); err != nil {
			db.logger.Warn("auto-index on create_table failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

// ListTables returns every table name the database currently owns.
func (db *Database) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	return names
}

// ListIndices returns the index metadata for every index on table.
func (db *Database) ListIndices(tableName string) []IndexMeta {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []IndexMeta
	for _, m := range db.meta {
		if m.Table == tableName {
			out = append(out, *m)
		}
	}
	return out
}

// ListVersions returns a table's commit history, newest first.
func (db *Database) ListVersions(tableName string) ([]table.VersionInfo, error) {
	db.mu.RLock()
	store, ok := db.tables[tableName]
	db.mu.RUnlock()
	if !ok {
		return nil, table.ErrTableNotFound
	}
	return store.ListVersions()
}

// Rollback restores a table to the state committed at timestamp,
// recording the restoration as a new version, then rebuilds the
// table's indices from the restored rows.
func (db *Database) Rollback(tableName string, timestamp uint64, user string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	store, ok := db.tables[tableName]
	if !ok {
		return table.ErrTableNotFound
	}
	if err := store.Rollback(timestamp, user); err != nil {
		return err
	}
	return db.rebuildTableIndicesLocked(tableName)
}

// CheckLog validates a table's event log, optionally truncating it at
// the first corrupted line (quarantining the removed tail).
func (db *Database) CheckLog(tableName string, repair bool) (eventlog.Report, error) {
	db.mu.RLock()
	store, ok := db.tables[tableName]
	db.mu.RUnlock()
	if !ok {
		return eventlog.Report{}, table.ErrTableNotFound
	}
	if repair {
		return store.RepairLog()
	}
	return store.ValidateLog()
}

// DropTable removes a table's directory along with every index built
// over it. It refuses unless confirm is true.
func (db *Database) DropTable(name string, confirm bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	store, ok := db.tables[name]
	if !ok {
		return table.ErrTableNotFound
	}
	if err := store.Delete(confirm); err != nil {
		return err
	}
	delete(db.tables, name)
	db.cache.Remove(name)

	for key, m := range db.meta {
		if m.Table != name {
			continue
		}
		if idx, ok := db.indices[key]; ok {
			if err := idx.Close(); err != nil {
				db.logger.Warn("closing index of dropped table failed", zap.String("index", key), zap.Error(err))
			}
			delete(db.indices, key)
		}
		delete(db.meta, key)
		base := filepath.Join(indicesDir(db.dir), name+"."+m.Column)
		os.Remove(base + ".btree")
		os.Remove(base + ".wal")
	}

	db.logger.Info("table dropped", zap.String("table", name))
	return db.saveIndexMetadataLocked()
}

