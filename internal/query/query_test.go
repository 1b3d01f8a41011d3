package query

import "testing"

func TestParseSelectStar(t *testing.T) {
	q, err := Parse("SELECT * FROM users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Columns) != 1 || q.Columns[0] != "*" {
		t.Errorf("Columns = %v, want [*]", q.Columns)
	}
	if q.Table != "users" {
		t.Errorf("Table = %q, want users", q.Table)
	}
}

func TestParseColumnList(t *testing.T) {
	q, err := Parse("select id, name from users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Columns) != 2 || q.Columns[0] != "id" || q.Columns[1] != "name" {
		t.Errorf("Columns = %v", q.Columns)
	}
}

func TestParseWhereAndOrder(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE age >= 18 AND status = 'active' ORDER BY name DESC LIMIT 10 OFFSET 5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Where) != 2 {
		t.Fatalf("len(Where) = %d, want 2", len(q.Where))
	}
	if q.Where[0].Column != "age" || q.Where[0].Op != OpGe || q.Where[0].Value != "18" {
		t.Errorf("Where[0] = %+v", q.Where[0])
	}
	if q.Where[1].Column != "status" || q.Where[1].Op != OpEq || q.Where[1].Value != "active" {
		t.Errorf("Where[1] = %+v", q.Where[1])
	}
	if len(q.OrderBy) != 1 || q.OrderBy[0].Column != "name" || !q.OrderBy[0].Desc {
		t.Errorf("OrderBy = %+v", q.OrderBy)
	}
	if q.Limit == nil || *q.Limit != 10 {
		t.Errorf("Limit = %v, want 10", q.Limit)
	}
	if q.Offset == nil || *q.Offset != 5 {
		t.Errorf("Offset = %v, want 5", q.Offset)
	}
}

// TestParsePrefixScanLike covers the prefix-wildcard LIKE shape the planner accelerates.
func TestParsePrefixScanLike(t *testing.T) {
	q, err := Parse("SELECT * FROM t WHERE key LIKE 'page.%'")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Where) != 1 || q.Where[0].Op != OpLike || q.Where[0].Value != "page.%" {
		t.Errorf("Where = %+v", q.Where)
	}
}

// TestParseAggregate covers the single-aggregate column form.
func TestParseAggregate(t *testing.T) {
	q, err := Parse("SELECT AVG(age) FROM users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Agg == nil || q.Agg.Func != "AVG" || q.Agg.Column != "age" {
		t.Errorf("Agg = %+v", q.Agg)
	}
}

func TestParseCountStar(t *testing.T) {
	q, err := Parse("SELECT COUNT(*) FROM users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Agg == nil || q.Agg.Func != "COUNT" || q.Agg.Column != "*" {
		t.Errorf("Agg = %+v", q.Agg)
	}
}

func TestParseInLiteralList(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE id IN (1, 2, 3)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Where) != 1 || q.Where[0].Op != OpIn {
		t.Fatalf("Where = %+v", q.Where)
	}
	if len(q.Where[0].ValueList) != 3 {
		t.Errorf("ValueList = %v, want 3 entries", q.Where[0].ValueList)
	}
}

func TestParseInSubquery(t *testing.T) {
	q, err := Parse("SELECT * FROM orders WHERE user_id IN (SELECT id FROM users WHERE active = 1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cond := q.Where[0]
	if cond.Op != OpIn || cond.SubQuery == nil {
		t.Fatalf("expected subquery condition, got %+v", cond)
	}
	if cond.SubQuery.Table != "users" {
		t.Errorf("SubQuery.Table = %q, want users", cond.SubQuery.Table)
	}
}

func TestParseRejectsMalformedQuery(t *testing.T) {
	if _, err := Parse("SELECT FROM users"); err == nil {
		t.Error("expected error for missing columns")
	}
	if _, err := Parse("SELECT * users"); err == nil {
		t.Error("expected error for missing FROM")
	}
}
