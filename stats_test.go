package reedbase_test

import "testing"

func TestStatsReportsRowCountsAndQueryPatterns(t *testing.T) {
	db := newTestDB(t)
	seedPages(t, db, 3)

	if _, err := db.Query("SELECT * FROM pages WHERE key = 'page.001'"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, err := db.Query("SELECT * FROM pages"); err != nil {
		t.Fatalf("Query: %v", err)
	}

	stats := db.Stats()
	if stats.TableRowCounts["pages"] != 3 {
		t.Errorf("TableRowCounts[pages] = %d, want 3", stats.TableRowCounts["pages"])
	}
	if stats.QueryCountByPattern["point_lookup"] != 1 {
		t.Errorf("QueryCountByPattern[point_lookup] = %d, want 1", stats.QueryCountByPattern["point_lookup"])
	}
	if stats.QueryCountByPattern["full_scan"] != 1 {
		t.Errorf("QueryCountByPattern[full_scan] = %d, want 1", stats.QueryCountByPattern["full_scan"])
	}
}
