package reedbase_test

import (
	"os"
	"testing"

	"github.com/reedbase/reedbase"
)

func newTestDB(t *testing.T) *reedbase.Database {
	t.Helper()
	dir := t.TempDir()
	cfg := reedbase.DefaultConfig()
	db, err := reedbase.Open(dir, &cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	cfg := reedbase.DefaultConfig()
	db, err := reedbase.Open(dir, &cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, sub := range []string{"tables", "indices", "registry"} {
		if _, err := os.Stat(dir + "/" + sub); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}
}

func TestCreateTableAndList(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateTable("widgets", []string{"key", "name", "price"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := db.CreateTable("widgets", nil); err == nil {
		t.Error("expected error creating duplicate table")
	}

	tables := db.ListTables()
	if len(tables) != 1 || tables[0] != "widgets" {
		t.Errorf("ListTables() = %v, want [widgets]", tables)
	}
}

func TestCreateTableDefaultSchemaAutoIndexesKey(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("pages", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	indices := db.ListIndices("pages")
	if len(indices) != 1 || indices[0].Column != "key" {
		t.Errorf("ListIndices(pages) = %+v, want one index on key", indices)
	}
}

func TestRollbackRestoresRowsAndReindexes(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("widgets", []string{"key", "value"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := db.Execute("INSERT INTO widgets (key, value) VALUES (w1, 10)", "t"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	versions, err := db.ListVersions("widgets")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	tsAfterInsert := versions[0].Timestamp

	if err := db.Execute("INSERT INTO widgets (key, value) VALUES (w2, 20)", "t"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := db.Rollback("widgets", tsAfterInsert, "t"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	result, err := db.Query("SELECT * FROM widgets")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0]["key"] != "w1" {
		t.Errorf("rows after rollback = %+v, want only w1", result.Rows)
	}

	// The key index must track the restored row set, not the pre-rollback
	// one: w2's entry has to be gone.
	w2, err := db.Query("SELECT * FROM widgets WHERE key = 'w2'")
	if err != nil {
		t.Fatalf("Query w2: %v", err)
	}
	if len(w2.Rows) != 0 {
		t.Errorf("w2 still resolves after rollback: %+v", w2.Rows)
	}
}

func TestDropTableRemovesTableAndIndices(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("widgets", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if err := db.DropTable("widgets", false); err == nil {
		t.Error("expected DropTable without confirm to refuse")
	}
	if err := db.DropTable("widgets", true); err != nil {
		t.Fatalf("DropTable: %v", err)
	}

	if tables := db.ListTables(); len(tables) != 0 {
		t.Errorf("ListTables after drop = %v, want empty", tables)
	}
	if indices := db.ListIndices("widgets"); len(indices) != 0 {
		t.Errorf("ListIndices after drop = %+v, want empty", indices)
	}
}

func TestOpenReloadsExistingState(t *testing.T) {
	dir := t.TempDir()
	cfg := reedbase.DefaultConfig()

	db1, err := reedbase.Open(dir, &cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db1.CreateTable("widgets", []string{"key", "value"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := db1.Execute("INSERT INTO widgets (key, value) VALUES (w1, 10)", "alice"); err != nil {
		t.Fatalf("Execute insert: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := reedbase.Open(dir, &cfg, nil)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer db2.Close()

	tables := db2.ListTables()
	if len(tables) != 1 || tables[0] != "widgets" {
		t.Errorf("re-opened ListTables() = %v, want [widgets]", tables)
	}

	result, err := db2.Query("SELECT * FROM widgets WHERE key = 'w1'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0]["value"] != "10" {
		t.Errorf("Query after reopen = %+v", result.Rows)
	}
}
