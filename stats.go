package reedbase

// DatabaseStats is a point-in-time snapshot of aggregate database
// activity.
type DatabaseStats struct {
	TableRowCounts      map[string]int
	Indices             []IndexMeta
	QueryCountByPattern map[string]int
}

// Stats returns a snapshot of current table sizes, index metadata, and
// query-pattern counts observed since Open.
func (db *Database) Stats() DatabaseStats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rowCounts := make(map[string]int, len(db.tables))
	for name, store := range db.tables {
		data, err := store.ReadCurrent()
		if err != nil {
			continue
		}
		_, rows := parseRows(data)
		rowCounts[name] = len(rows)
	}

	indices := make([]IndexMeta, 0, len(db.meta))
	for _, m := range db.meta {
		indices = append(indices, *m)
	}

	counts := make(map[string]int, len(db.queryCounts))
	for k, v := range db.queryCounts {
		counts[k] = v
	}

	return DatabaseStats{
		TableRowCounts:      rowCounts,
		Indices:             indices,
		QueryCountByPattern: counts,
	}
}
