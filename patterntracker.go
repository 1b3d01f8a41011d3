package reedbase

import "sync"

// patternKind classifies a WHERE condition for auto-index accounting,
// independent of which column or table it targets.
type patternKind string

const (
	patternEquals patternKind = "equals"
	patternRange  patternKind = "range"
	patternLike   patternKind = "like"
	patternIn     patternKind = "in"
)

type trackerKey struct {
	table, column string
	kind          patternKind
}

// patternTracker counts how often each (table, column, kind) WHERE
// shape has been seen, so the orchestrator can decide when a column is
// hot enough to deserve an index.
type patternTracker struct {
	mu     sync.Mutex
	counts map[trackerKey]int
}

func newPatternTracker() *patternTracker {
	return &patternTracker{counts: map[trackerKey]int{}}
}

// record increments the count for (table, column, kind) and returns
// the new total.
func (t *patternTracker) record(table, column string, kind patternKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trackerKey{table, column, kind}
	t.counts[key]++
	return t.counts[key]
}
