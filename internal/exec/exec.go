// Package exec implements the two query executors: Basic, which
// applies every WHERE condition sequentially over a full row set, and
// Optimized, which narrows the candidate set via the planner's chosen
// index lookup before re-applying the same conditions. Both share the
// same post-processing pipeline: WHERE, then aggregation-or-(ORDER BY,
// LIMIT/OFFSET), then projection.
package exec

import (
	"errors"
	"sort"
	"strconv"

	"github.com/reedbase/reedbase/internal/index"
	"github.com/reedbase/reedbase/internal/plan"
	"github.com/reedbase/reedbase/internal/query"
)

// ErrUnsupportedSubquery is returned deterministically for any
// IN (SELECT ...) condition: subqueries parse but are never executed.
var ErrUnsupportedSubquery = errors.New("exec: IN (SELECT ...) subqueries are not executed")

// Row is one table record: a map of column name to string value, since
// rows carry no schema beyond the header line.
type Row map[string]string

// Result is the outcome of executing a query: either a projected row
// set, or a single aggregate value.
type Result struct {
	Rows      []Row
	Aggregate *string
}

// Basic applies every WHERE condition sequentially to each row, then
// the shared post-processing pipeline.
func Basic(rows []Row, q *query.Query) (Result, error) {
	filtered, err := applyWhere(rows, q.Where)
	if err != nil {
		return Result{}, err
	}
	return postProcess(filtered, q)
}

// Optimized narrows the candidate row set using p and idx, then
// re-applies every WHERE condition (including ones on the key column,
// which the index only pre-filtered) before the shared post-processing
// pipeline.
func Optimized(allRows []Row, q *query.Query, p plan.Plan, idx index.Index) (Result, error) {
	var candidates []Row

	switch p.Kind {
	case plan.ExecIndexPointLookup:
		bm, ok, err := idx.Get(p.Value)
		if err != nil {
			return Result{}, err
		}
		if ok {
			candidates = gatherRows(allRows, bm)
		}
	case plan.ExecIndexRangeScan:
		entries, err := idx.Range(p.Start, p.End)
		if err != nil {
			return Result{}, err
		}
		for _, e := range entries {
			candidates = append(candidates, gatherRows(allRows, e.Rows)...)
		}
	default:
		candidates = allRows
	}

	filtered, err := applyWhere(candidates, q.Where)
	if err != nil {
		return Result{}, err
	}
	return postProcess(filtered, q)
}

func gatherRows(allRows []Row, ids interface{ ToArray() []uint32 }) []Row {
	var out []Row
	for _, id := range ids.ToArray() {
		if int(id) < len(allRows) {
			out = append(out, allRows[id])
		}
	}
	return out
}

func applyWhere(rows []Row, conds []query.Cond) ([]Row, error) {
	if len(conds) == 0 {
		return rows, nil
	}
	var out []Row
	for _, r := range rows {
		ok := true
		for _, c := range conds {
			match, err := matchCond(r, c)
			if err != nil {
				return nil, err
			}
			if !match {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// MatchesAll reports whether row satisfies every condition in conds —
// exported for callers outside the executor pipeline (the orchestrator's
// UPDATE/DELETE path) that need single-row filtering with the same
// semantics as WHERE.
func MatchesAll(row Row, conds []query.Cond) (bool, error) {
	for _, c := range conds {
		ok, err := matchCond(row, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCond(row Row, c query.Cond) (bool, error) {
	val, present := row[c.Column]

	switch c.Op {
	case query.OpLike:
		return present && matchLike(val, c.Value), nil
	case query.OpIn:
		if c.SubQuery != nil {
			return false, ErrUnsupportedSubquery
		}
		if !present {
			return false, nil
		}
		for _, v := range c.ValueList {
			if v == val {
				return true, nil
			}
		}
		return false, nil
	default:
		if !present {
			return false, nil
		}
		return compareOp(val, c.Value, c.Op), nil
	}
}

// compareOp compares numerically when both operands parse as float64,
// falling back to lexicographic string comparison otherwise. The choice
// is made per pair of operands, unlike ORDER BY, which decides per
// column over the whole row set.
func compareOp(a, b string, op query.Op) bool {
	af, aErr := strconv.ParseFloat(a, 64)
	bf, bErr := strconv.ParseFloat(b, 64)
	if aErr == nil && bErr == nil {
		switch op {
		case query.OpEq:
			return af == bf
		case query.OpNe:
			return af != bf
		case query.OpLt:
			return af < bf
		case query.OpGt:
			return af > bf
		case query.OpLe:
			return af <= bf
		case query.OpGe:
			return af >= bf
		}
	}
	switch op {
	case query.OpEq:
		return a == b
	case query.OpNe:
		return a != b
	case query.OpLt:
		return a < b
	case query.OpGt:
		return a > b
	case query.OpLe:
		return a <= b
	case query.OpGe:
		return a >= b
	}
	return false
}

func postProcess(rows []Row, q *query.Query) (Result, error) {
	if q.Agg != nil {
		val := aggregate(rows, q.Agg)
		return Result{Aggregate: &val}, nil
	}

	sortRows(rows, q.OrderBy)
	rows = applyLimitOffset(rows, q.Limit, q.Offset)
	rows = project(rows, q.Columns)
	return Result{Rows: rows}, nil
}

// sortRows orders rows in place by q's ORDER BY terms. A column sorts
// numerically only if every row's value for it parses as a number;
// otherwise it falls back to string comparison.
func sortRows(rows []Row, terms []query.OrderTerm) {
	if len(terms) == 0 {
		return
	}
	numeric := make([]bool, len(terms))
	for i, t := range terms {
		numeric[i] = allNumeric(rows, t.Column)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, t := range terms {
			a, b := rows[i][t.Column], rows[j][t.Column]
			var less, greater bool
			if numeric[k] {
				af, _ := strconv.ParseFloat(a, 64)
				bf, _ := strconv.ParseFloat(b, 64)
				less, greater = af < bf, af > bf
			} else {
				less, greater = a < b, a > b
			}
			if t.Desc {
				less, greater = greater, less
			}
			if less {
				return true
			}
			if greater {
				return false
			}
		}
		return false
	})
}

func allNumeric(rows []Row, column string) bool {
	for _, r := range rows {
		v, ok := r[column]
		if !ok {
			return false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

func applyLimitOffset(rows []Row, limit, offset *int) []Row {
	if offset != nil {
		if *offset >= len(rows) {
			return nil
		}
		rows = rows[*offset:]
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}

// project returns rows untouched for "*", otherwise copies only the
// requested columns into fresh row maps.
func project(rows []Row, columns []string) []Row {
	if len(columns) == 1 && columns[0] == "*" {
		return rows
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		nr := make(Row, len(columns))
		for _, c := range columns {
			if v, ok := r[c]; ok {
				nr[c] = v
			}
		}
		out[i] = nr
	}
	return out
}
