package reedbase

import (
	"time"

	"go.uber.org/zap"

	"github.com/reedbase/reedbase/internal/exec"
	"github.com/reedbase/reedbase/internal/plan"
	"github.com/reedbase/reedbase/internal/query"
	"github.com/reedbase/reedbase/internal/table"
)

// patternKindFor classifies a WHERE operator for auto-index accounting.
func patternKindFor(op query.Op) patternKind {
	switch op {
	case query.OpEq:
		return patternEquals
	case query.OpLike:
		return patternLike
	case query.OpIn:
		return patternIn
	default:
		return patternRange
	}
}

// Query parses and executes a single SELECT statement. It records the
// WHERE shape of every condition for auto-indexing, synchronously
// creating an index the first time a pattern crosses the configured
// threshold, then picks between a full scan and an index-accelerated
// plan before dispatching to the executor.
func (db *Database) Query(sql string) (exec.Result, error) {
	q, err := query.Parse(sql)
	if err != nil {
		return exec.Result{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	store, ok := db.tables[q.Table]
	if !ok {
		return exec.Result{}, table.ErrTableNotFound
	}
	data, err := store.ReadCurrent()
	if err != nil {
		return exec.Result{}, err
	}
	_, rows := parseRows(data)

	db.considerAutoIndex(q)

	indexedColumns := db.indexedColumnsLocked(q.Table)
	pattern := plan.AnalyzePattern(q)
	chosen := plan.Choose(pattern, int64(len(rows)), indexedColumns)

	// The analyzer only classifies conditions against the "key" column,
	// while auto-indexing tracks every column. When the key-column
	// analysis falls back to a full scan, look for an indexed non-key
	// equality condition before giving up on the index entirely.
	if chosen.Kind == plan.ExecFullScan {
		if accelerated, ok := nonKeyPointLookup(q, indexedColumns); ok {
			chosen = accelerated
		}
	}

	db.touchIndexLocked(chosen.IndexKey)
	db.queryCounts[patternLabel(pattern.Kind)]++

	var result exec.Result
	if chosen.Kind == plan.ExecFullScan {
		result, err = exec.Basic(rows, q)
	} else {
		idx, ok := db.indices[chosen.IndexKey]
		if !ok {
			result, err = exec.Basic(rows, q)
		} else {
			result, err = exec.Optimized(rows, q, chosen, idx)
		}
	}
	if err != nil {
		return exec.Result{}, err
	}
	return result, nil
}

func patternLabel(k plan.PatternKind) string {
	switch k {
	case plan.PointLookup:
		return "point_lookup"
	case plan.PrefixScan:
		return "prefix_scan"
	case plan.RangeScan:
		return "range_scan"
	default:
		return "full_scan"
	}
}

// nonKeyPointLookup looks for the first equality condition against a
// column other than "key" that already has an index.
func nonKeyPointLookup(q *query.Query, indexedColumns map[string]string) (plan.Plan, bool) {
	for _, c := range q.Where {
		if c.Column == "key" || c.Op != query.OpEq {
			continue
		}
		if ik, ok := indexedColumns[c.Column]; ok {
			return plan.Plan{Kind: plan.ExecIndexPointLookup, IndexKey: ik, Value: c.Value}, true
		}
	}
	return plan.Plan{}, false
}

// indexedColumnsLocked reports only columns with a live index instance —
// a hash index's metadata can outlive the index itself across a reopen
// (non-persistent backends are not reloaded), and such a "ghost" entry
// must not be offered to the planner as usable.
func (db *Database) indexedColumnsLocked(table string) map[string]string {
	out := map[string]string{}
	for key, m := range db.meta {
		if m.Table != table {
			continue
		}
		if _, live := db.indices[key]; live {
			out[m.Column] = key
		}
	}
	return out
}

// considerAutoIndex records every WHERE condition's pattern and
// synchronously creates an index the moment a (table, column, kind)
// shape crosses AutoIndexThreshold, choosing a hash backend for
// equality and a btree backend for everything else. Failures are
// logged and swallowed; a missed auto-index never fails the query
// that triggered it.
func (db *Database) considerAutoIndex(q *query.Query) {
	if !db.config.AutoIndexEnabled {
		return
	}
	for _, c := range q.Where {
		kind := patternKindFor(c.Op)
		count := db.tracker.record(q.Table, c.Column, kind)
		key := indexKey(q.Table, c.Column)
		if _, exists := db.indices[key]; exists {
			continue
		}
		if count < db.config.AutoIndexThreshold {
			continue
		}
		backend := "btree"
		if kind == patternEquals {
			backend = "hash"
		}
		if err := db.createIndexLocked(q.Table, c.Column, backend, true); err != nil {
			db.logger.Warn("auto-index creation failed",
				zap.String("table", q.Table), zap.String("column", c.Column), zap.Error(err))
		}
	}
}

func (db *Database) touchIndexLocked(key string) {
	if key == "" {
		return
	}
	if m, ok := db.meta[key]; ok {
		m.UsageCount++
		m.LastUsed = time.Now().UnixNano()
	}
}
