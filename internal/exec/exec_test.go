package exec

import (
	"testing"

	"github.com/reedbase/reedbase/internal/index"
	"github.com/reedbase/reedbase/internal/plan"
	"github.com/reedbase/reedbase/internal/query"
)

func parseOrFatal(t *testing.T, sql string) *query.Query {
	t.Helper()
	q, err := query.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return q
}

// TestAggregationCoercion: AVG(age) over
// "25","30","n/a","40" skips the non-numeric value and returns
// 31.666....
func TestAggregationCoercion(t *testing.T) {
	rows := []Row{
		{"age": "25"},
		{"age": "30"},
		{"age": "n/a"},
		{"age": "40"},
	}
	q := parseOrFatal(t, "SELECT AVG(age) FROM users")

	result, err := Basic(rows, q)
	if err != nil {
		t.Fatalf("Basic: %v", err)
	}
	if result.Aggregate == nil {
		t.Fatal("expected aggregate result")
	}
	got := *result.Aggregate
	want := "31.666666666666668"
	if got != want {
		t.Errorf("AVG(age) = %q, want %q", got, want)
	}
}

func TestAggregationEmptySetDefaults(t *testing.T) {
	q := parseOrFatal(t, "SELECT MIN(age) FROM users")
	result, err := Basic(nil, q)
	if err != nil {
		t.Fatalf("Basic: %v", err)
	}
	if *result.Aggregate != "0" {
		t.Errorf("MIN on empty set = %q, want 0", *result.Aggregate)
	}
}

func TestLikeMatching(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"page.home", "page.%", true},
		{"post.home", "page.%", false},
		{"page.home", "%.home", true},
		{"page.home", "%page%", true},
		{"page.home", "%xyz%", false},
		{"exact", "exact", true},
	}
	for _, c := range cases {
		if got := matchLike(c.value, c.pattern); got != c.want {
			t.Errorf("matchLike(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}

func TestWhereFilterAndProjection(t *testing.T) {
	rows := []Row{
		{"key": "a", "value": "1"},
		{"key": "b", "value": "2"},
	}
	q := parseOrFatal(t, "SELECT key FROM t WHERE value = '2'")
	result, err := Basic(rows, q)
	if err != nil {
		t.Fatalf("Basic: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}
	if _, hasValue := result.Rows[0]["value"]; hasValue {
		t.Error("projection should have dropped the value column")
	}
	if result.Rows[0]["key"] != "b" {
		t.Errorf("Rows[0] = %+v", result.Rows[0])
	}
}

func TestInSubqueryUnsupported(t *testing.T) {
	q := parseOrFatal(t, "SELECT * FROM orders WHERE user_id IN (SELECT id FROM users WHERE active = 1)")
	_, err := Basic([]Row{{"user_id": "1"}}, q)
	if err != ErrUnsupportedSubquery {
		t.Errorf("err = %v, want ErrUnsupportedSubquery", err)
	}
}

// TestExecutorEquivalence: the optimized executor's
// result set matches the basic executor's, modulo row order prior to
// ORDER BY.
func TestExecutorEquivalence(t *testing.T) {
	rows := []Row{
		{"key": "page.000", "title": "a"},
		{"key": "page.001", "title": "b"},
		{"key": "post.000", "title": "c"},
	}

	idx := index.NewHash()
	for id, r := range rows {
		if err := idx.Insert(r["key"], uint64(id)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	q := parseOrFatal(t, "SELECT * FROM t WHERE key = 'page.000'")
	p := plan.Plan{Kind: plan.ExecIndexPointLookup, Value: "page.000"}

	basicResult, err := Basic(rows, q)
	if err != nil {
		t.Fatalf("Basic: %v", err)
	}
	optResult, err := Optimized(rows, q, p, idx)
	if err != nil {
		t.Fatalf("Optimized: %v", err)
	}

	if len(basicResult.Rows) != len(optResult.Rows) {
		t.Fatalf("row count mismatch: basic=%d optimized=%d", len(basicResult.Rows), len(optResult.Rows))
	}
	for i := range basicResult.Rows {
		if basicResult.Rows[i]["key"] != optResult.Rows[i]["key"] {
			t.Errorf("row %d mismatch: basic=%v optimized=%v", i, basicResult.Rows[i], optResult.Rows[i])
		}
	}
}
