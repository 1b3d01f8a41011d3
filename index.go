package reedbase

import (
	"fmt"
	"os"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/reedbase/reedbase/internal/index"
	"github.com/reedbase/reedbase/internal/table"
)

// IndexMeta describes one index the orchestrator knows about, whether
// it was requested explicitly or created by the auto-indexing policy.
type IndexMeta struct {
	Table        string `json:"table"`
	Column       string `json:"column"`
	Backend      string `json:"backend"` // "hash" or "btree"
	CreatedAt    int64  `json:"created_at"`
	QueryPattern string `json:"query_pattern"` // "equals", "range", "prefix", "like"
	AutoCreated  bool   `json:"auto_created"`
	UsageCount   int    `json:"usage_count"`
	LastUsed     int64  `json:"last_used"`
}

func indexKey(table, column string) string { return table + "." + column }

// CreateIndex allocates a new index of the given backend ("hash" or
// "btree") over tableName.column, populating it from the table's
// current snapshot.
func (db *Database) CreateIndex(tableName, column, backend string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.createIndexLocked(tableName, column, backend, false)
}

func (db *Database) createIndexLocked(tableName, column, backend string, autoCreated bool) error {
	key := indexKey(tableName, column)
	if _, exists := db.indices[key]; exists {
		return nil
	}
	store, ok := db.tables[tableName]
	if !ok {
		return table.ErrTableNotFound
	}

	var idx index.Index
	var err error
	switch backend {
	case "btree":
		idx, err = index.OpenBTree(indicesDir(db.dir), tableName, column, db.btreeOrder())
	default:
		backend = "hash"
		idx = index.NewHash()
	}
	if err != nil {
		return fmt.Errorf("reedbase: create index %s: %w", key, err)
	}

	data, err := store.ReadCurrent()
	if err == nil {
		_, rows := parseRows(data)
		for id, row := range rows {
			if v, ok := row[column]; ok {
				if err := idx.Insert(v, uint64(id)); err != nil {
					return err
				}
			}
		}
	}

	db.indices[key] = idx
	db.meta[key] = &IndexMeta{
		Table:       tableName,
		Column:      column,
		Backend:     backend,
		CreatedAt:   time.Now().UnixNano(),
		AutoCreated: autoCreated,
	}
	db.logger.Info("index created",
		zap.String("table", tableName), zap.String("column", column),
		zap.String("backend", backend), zap.Bool("auto", autoCreated))
	return db.saveIndexMetadataLocked()
}

func (db *Database) loadIndexMetadata() error {
	data, err := os.ReadFile(metadataPath(db.dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var metas []*IndexMeta
	if err := gojson.Unmarshal(data, &metas); err != nil {
		return err
	}
	for _, m := range metas {
		key := indexKey(m.Table, m.Column)
		db.meta[key] = m
		if m.Backend != "btree" {
			continue // hash indices are rebuilt on demand, not persisted
		}
		idx, err := index.OpenBTree(indicesDir(db.dir), m.Table, m.Column, db.btreeOrder())
		if err != nil {
			return fmt.Errorf("reedbase: reopen index %s: %w", key, err)
		}
		db.indices[key] = idx
	}
	return nil
}

// saveIndexMetadataLocked persists the metadata document as a sorted
// array so rewrites are deterministic.
func (db *Database) saveIndexMetadataLocked() error {
	metas := make([]*IndexMeta, 0, len(db.meta))
	for _, m := range db.meta {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Table != metas[j].Table {
			return metas[i].Table < metas[j].Table
		}
		return metas[i].Column < metas[j].Column
	})

	data, err := gojson.MarshalIndent(metas, "", "  ")
	if err != nil {
		return err
	}
	tmp := metadataPath(db.dir) + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, metadataPath(db.dir))
}
