package query

import "testing"

func TestParseInsertLiteralValues(t *testing.T) {
	m, err := ParseMutation("INSERT INTO users (id, name, active) VALUES (1, 'alice', 0)")
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if m.Kind != MutInsert || m.Table != "users" {
		t.Fatalf("Kind/Table = %v/%q", m.Kind, m.Table)
	}
	if len(m.Columns) != 3 || m.Columns[0] != "id" || m.Columns[2] != "active" {
		t.Errorf("Columns = %v", m.Columns)
	}
	if len(m.Values) != 3 || m.Values[1] != "alice" {
		t.Errorf("Values = %v", m.Values)
	}
}

func TestParseInsertMismatchedColumnValueCounts(t *testing.T) {
	if _, err := ParseMutation("INSERT INTO users (id, name) VALUES (1)"); err == nil {
		t.Error("expected error for mismatched column/value counts, got nil")
	}
}

func TestParseInsertRejectsUnquotedMultiWordValue(t *testing.T) {
	if _, err := ParseMutation("INSERT INTO notes (key, body) VALUES (k1, hello world)"); err == nil {
		t.Error("expected error for unquoted multi-word literal, got nil")
	}
}

func TestParseUpdateSetAndWhere(t *testing.T) {
	m, err := ParseMutation("UPDATE users SET active = 1, name = 'Bob' WHERE id = 7")
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if m.Kind != MutUpdate || m.Table != "users" {
		t.Fatalf("Kind/Table = %v/%q", m.Kind, m.Table)
	}
	if m.Sets["active"] != "1" || m.Sets["name"] != "Bob" {
		t.Errorf("Sets = %v", m.Sets)
	}
	if len(m.Where) != 1 || m.Where[0].Column != "id" || m.Where[0].Op != OpEq || m.Where[0].Value != "7" {
		t.Errorf("Where = %+v", m.Where)
	}
}

func TestParseUpdateWithoutWhere(t *testing.T) {
	m, err := ParseMutation("UPDATE counters SET value = 0")
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if len(m.Where) != 0 {
		t.Errorf("Where = %+v, want empty", m.Where)
	}
}

func TestParseDeleteWithWhere(t *testing.T) {
	m, err := ParseMutation("DELETE FROM users WHERE key = 'u2'")
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if m.Kind != MutDelete || m.Table != "users" {
		t.Fatalf("Kind/Table = %v/%q", m.Kind, m.Table)
	}
	if len(m.Where) != 1 || m.Where[0].Column != "key" || m.Where[0].Value != "u2" {
		t.Errorf("Where = %+v", m.Where)
	}
}

func TestParseDeleteWithoutWhereDeletesEverything(t *testing.T) {
	m, err := ParseMutation("DELETE FROM users")
	if err != nil {
		t.Fatalf("ParseMutation: %v", err)
	}
	if len(m.Where) != 0 {
		t.Errorf("Where = %+v, want empty (unconditional delete)", m.Where)
	}
}

func TestParseMutationRejectsUnknownStatement(t *testing.T) {
	if _, err := ParseMutation("SELECT * FROM users"); err == nil {
		t.Error("expected error for a SELECT passed to ParseMutation, got nil")
	}
	if _, err := ParseMutation("MERGE INTO users"); err == nil {
		t.Error("expected error for an unsupported statement, got nil")
	}
}

func TestParseInsertRejectsTrailingInput(t *testing.T) {
	if _, err := ParseMutation("INSERT INTO users (id) VALUES (1) EXTRA"); err == nil {
		t.Error("expected error for trailing input after a well-formed INSERT, got nil")
	}
}
