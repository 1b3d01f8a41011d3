// Package plan implements the pattern analyzer and cost-based planner:
// classifying WHERE conditions on the "key" column into a Pattern, then
// choosing between a full scan and an index-accelerated Plan using
// row-count heuristics.
package plan

import (
	"math"
	"strings"

	"github.com/reedbase/reedbase/internal/query"
)

// PatternKind classifies how a query's WHERE clause constrains the key
// column.
type PatternKind int

const (
	FullScan PatternKind = iota
	PointLookup
	PrefixScan
	RangeScan
)

// Pattern is the analyzer's classification of one query's key-column
// conditions.
type Pattern struct {
	Kind       PatternKind
	Value      string // PointLookup
	Prefix     string // PrefixScan
	Start, End string // RangeScan bounds
	InclStart  bool
	InclEnd    bool
}

// keyConditions extracts this query's conditions against the "key"
// column.
func keyConditions(q *query.Query) []query.Cond {
	var out []query.Cond
	for _, c := range q.Where {
		if c.Column == "key" {
			out = append(out, c)
		}
	}
	return out
}

// AnalyzePattern classifies a query's key-column conditions:
// a single Equals is a PointLookup; a single Like matching `prefix%` is
// a PrefixScan; two conditions forming a closed lower/upper bound are a
// RangeScan; anything else is a FullScan.
func AnalyzePattern(q *query.Query) Pattern {
	conds := keyConditions(q)

	if len(conds) == 1 {
		c := conds[0]
		if c.Op == query.OpEq {
			return Pattern{Kind: PointLookup, Value: c.Value}
		}
		if c.Op == query.OpLike {
			if prefix, ok := singleTrailingWildcard(c.Value); ok {
				return Pattern{Kind: PrefixScan, Prefix: prefix}
			}
		}
		return Pattern{Kind: FullScan}
	}

	if len(conds) == 2 {
		if rng, ok := asRange(conds[0], conds[1]); ok {
			return rng
		}
	}

	return Pattern{Kind: FullScan}
}

// singleTrailingWildcard matches patterns of the form `^[^%]+%$`.
func singleTrailingWildcard(pattern string) (string, bool) {
	if len(pattern) < 2 || pattern[len(pattern)-1] != '%' {
		return "", false
	}
	body := pattern[:len(pattern)-1]
	if strings.Contains(body, "%") || body == "" {
		return "", false
	}
	return body, true
}

func asRange(a, b query.Cond) (Pattern, bool) {
	lowerOps := map[query.Op]bool{query.OpGt: true, query.OpGe: true}
	upperOps := map[query.Op]bool{query.OpLt: true, query.OpLe: true}

	var lower, upper *query.Cond
	if lowerOps[a.Op] && upperOps[b.Op] {
		lower, upper = &a, &b
	} else if lowerOps[b.Op] && upperOps[a.Op] {
		lower, upper = &b, &a
	} else {
		return Pattern{}, false
	}

	return Pattern{
		Kind:      RangeScan,
		Start:     lower.Value,
		End:       upper.Value,
		InclStart: lower.Op == query.OpGe,
		InclEnd:   upper.Op == query.OpLe,
	}, true
}

// ExecKind is the chosen execution strategy.
type ExecKind int

const (
	ExecFullScan ExecKind = iota
	ExecIndexPointLookup
	ExecIndexRangeScan
)

// Plan is the planner's chosen execution strategy.
type Plan struct {
	Kind       ExecKind
	IndexKey   string // "table.column"
	Value      string // ExecIndexPointLookup
	Start, End string // ExecIndexRangeScan — [Start, End)
}

// tilde is the upper bound character used to translate a prefix into a
// half-open range: strictly above any alphanumeric by ASCII.
const tilde = "~"

// estimate derives the heuristic row-count estimate for a prefix/range
// pattern, bucketed by prefix depth (number of "." segments).
func estimate(n int64, p Pattern) float64 {
	if p.Kind == RangeScan {
		return float64(n) / 100
	}
	depth := strings.Count(p.Prefix, ".") + 1
	switch depth {
	case 1:
		return float64(n) / 10
	case 2:
		return float64(n) / 100
	case 3:
		return float64(n) / 1000
	default:
		return float64(n) / 10000
	}
}

// Choose picks an execution plan for pattern against rowCount rows,
// given the indexed columns available (keyed by column name, value is
// the "table.column" index key).
func Choose(pattern Pattern, rowCount int64, indexedColumns map[string]string) Plan {
	indexKey, indexed := indexedColumns["key"]

	switch pattern.Kind {
	case PointLookup:
		if indexed {
			return Plan{Kind: ExecIndexPointLookup, IndexKey: indexKey, Value: pattern.Value}
		}
	case PrefixScan, RangeScan:
		if indexed && useIndex(rowCount, pattern) {
			start, end := pattern.Start, pattern.End
			if pattern.Kind == PrefixScan {
				start, end = pattern.Prefix, pattern.Prefix+tilde
			} else if pattern.InclEnd {
				// The index range is half-open; widen the upper bound to
				// its immediate successor so an inclusive end survives.
				// The executor's condition re-check narrows an exclusive
				// start, but it can never add back an excluded endpoint.
				end += "\x00"
			}
			return Plan{Kind: ExecIndexRangeScan, IndexKey: indexKey, Start: start, End: end}
		}
	}
	return Plan{Kind: ExecFullScan}
}

// useIndex applies the planner's cost heuristic: use the index when
// log2(N) + estimate*10 < N.
func useIndex(n int64, p Pattern) bool {
	if n <= 0 {
		return false
	}
	cost := math.Log2(float64(n)) + estimate(n, p)*10
	return cost < float64(n)
}
