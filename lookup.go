package reedbase

import (
	"github.com/reedbase/reedbase/internal/exec"
	"github.com/reedbase/reedbase/internal/rbks"
	"github.com/reedbase/reedbase/internal/table"
)

// Lookup resolves a structured key against a table's "key" column,
// walking the key's fallback chain from its most specific modifier set
// down to the bare base until a row matches. The raw key is parsed and
// canonicalized first, so lookups are insensitive to modifier order and
// casing: "page.home<PROD,de>" and "page.home<de,prod>" resolve the
// same row, and a row stored without a season modifier still answers a
// seasonal lookup.
func (db *Database) Lookup(tableName, rawKey string) (exec.Row, bool, error) {
	parsed, err := rbks.Parse(rawKey)
	if err != nil {
		return nil, false, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	store, ok := db.tables[tableName]
	if !ok {
		return nil, false, table.ErrTableNotFound
	}
	data, err := store.ReadCurrent()
	if err != nil {
		return nil, false, err
	}
	_, rows := parseRows(data)

	idx, hasIdx := db.indices[indexKey(tableName, "key")]

	for _, mods := range parsed.FallbackChain() {
		candidate := parsed.Base
		if mods != "" {
			candidate = parsed.Base + "<" + mods + ">"
		}

		if hasIdx {
			bm, found, err := idx.Get(candidate)
			if err != nil {
				return nil, false, err
			}
			if found {
				for _, id := range bm.ToArray() {
					if int(id) < len(rows) {
						return rows[id], true, nil
					}
				}
			}
			continue
		}
		for _, r := range rows {
			if r["key"] == candidate {
				return r, true, nil
			}
		}
	}
	return nil, false, nil
}
