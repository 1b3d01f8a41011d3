package reedbase

import (
	"github.com/reedbase/reedbase/internal/exec"
	"github.com/reedbase/reedbase/internal/index"
	"github.com/reedbase/reedbase/internal/query"
	"github.com/reedbase/reedbase/internal/table"
)

// Execute parses and applies a single INSERT, UPDATE, or DELETE
// statement as user, maintaining every affected index at commit time
// rather than leaving it stale until an explicit rebuild.
func (db *Database) Execute(sql string, user string) error {
	m, err := query.ParseMutation(sql)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	store, ok := db.tables[m.Table]
	if !ok {
		return table.ErrTableNotFound
	}

	switch m.Kind {
	case query.MutInsert:
		return db.executeInsertLocked(store, m, user)
	case query.MutUpdate:
		return db.executeUpdateLocked(store, m, user)
	case query.MutDelete:
		return db.executeDeleteLocked(store, m, user)
	default:
		return nil
	}
}

func (db *Database) executeInsertLocked(store *table.Store, m *query.Mutation, user string) error {
	var (
		insertedID  int
		insertedRow exec.Row
	)

	err := store.ReadModifyWrite(func(data []byte) ([]byte, error) {
		header, rows := parseRows(data)
		if header == nil {
			header = m.Columns
		}
		row := make(exec.Row, len(header))
		for i, col := range m.Columns {
			if i < len(m.Values) {
				row[col] = m.Values[i]
			}
		}
		insertedID = len(rows)
		insertedRow = row
		rows = append(rows, row)
		return serializeRows(header, rows), nil
	}, user)
	if err != nil {
		return err
	}

	for key, idx := range db.indicesForTable(m.Table) {
		column := db.meta[key].Column
		if v, ok := insertedRow[column]; ok {
			if err := idx.Insert(v, uint64(insertedID)); err != nil {
				db.logger.Sugar().Warnw("index insert failed on write path", "index", key, "err", err)
			}
		}
	}
	return nil
}

func (db *Database) executeUpdateLocked(store *table.Store, m *query.Mutation, user string) error {
	err := store.ReadModifyWrite(func(data []byte) ([]byte, error) {
		header, rows := parseRows(data)
		for i, r := range rows {
			ok, err := exec.MatchesAll(r, m.Where)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			for col, val := range m.Sets {
				r[col] = val
			}
			rows[i] = r
		}
		return serializeRows(header, rows), nil
	}, user)
	if err != nil {
		return err
	}
	return db.rebuildTableIndicesLocked(m.Table)
}

func (db *Database) executeDeleteLocked(store *table.Store, m *query.Mutation, user string) error {
	err := store.ReadModifyWrite(func(data []byte) ([]byte, error) {
		header, rows := parseRows(data)
		kept := rows[:0]
		for _, r := range rows {
			ok, err := exec.MatchesAll(r, m.Where)
			if err != nil {
				return nil, err
			}
			if ok {
				continue // drop matching rows
			}
			kept = append(kept, r)
		}
		return serializeRows(header, kept), nil
	}, user)
	if err != nil {
		return err
	}
	return db.rebuildTableIndicesLocked(m.Table)
}

func (db *Database) indicesForTable(tableName string) map[string]index.Index {
	out := map[string]index.Index{}
	for key, m := range db.meta {
		if m.Table != tableName {
			continue
		}
		if idx, ok := db.indices[key]; ok {
			out[key] = idx
		}
	}
	return out
}

// rebuildTableIndicesLocked re-derives every index on table from its
// current row set. DELETE shifts row positions (row ids are array
// positions), which invalidates any targeted per-row delta; rebuilding
// is the simplest operation that stays correct across that shift, and
// runs synchronously as part of the same commit rather than leaving
// indices stale.
func (db *Database) rebuildTableIndicesLocked(tableName string) error {
	store, ok := db.tables[tableName]
	if !ok {
		return nil
	}
	data, err := store.ReadCurrent()
	if err != nil {
		return err
	}
	_, rows := parseRows(data)

	for key, idx := range db.indicesForTable(tableName) {
		column := db.meta[key].Column
		for _, entry := range mustIter(idx) {
			for _, id := range entry.Rows.ToArray() {
				_ = idx.Delete(entry.Key, uint64(id))
			}
		}
		for id, r := range rows {
			if v, ok := r[column]; ok {
				if err := idx.Insert(v, uint64(id)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func mustIter(idx index.Index) []index.RangeEntry {
	entries, err := idx.Iter()
	if err != nil {
		return nil
	}
	return entries
}
