package reedbase_test

import "testing"

// TestLookupFallbackChain stores a base row and a language-qualified
// row, then checks that a fully-qualified lookup walks the chain: the
// de-variant resolves before the base, and a key with no stored
// variant at all falls through to the base row.
func TestLookupFallbackChain(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("content", []string{"key", "body"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for _, sql := range []string{
		"INSERT INTO content (key, body) VALUES ('page.home', 'home')",
		"INSERT INTO content (key, body) VALUES ('page.home<de>', 'startseite')",
		"INSERT INTO content (key, body) VALUES ('page.nav<mobile>', 'compact')",
	} {
		if err := db.Execute(sql, "s"); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	row, found, err := db.Lookup("content", "page.home<de,prod,christmas>")
	if err != nil || !found {
		t.Fatalf("Lookup(de,prod,christmas) = %v, %v", found, err)
	}
	if row["body"] != "startseite" {
		t.Errorf("body = %q, want startseite (language fallback)", row["body"])
	}

	row, found, err = db.Lookup("content", "page.home<fr,prod>")
	if err != nil || !found {
		t.Fatalf("Lookup(fr,prod) = %v, %v", found, err)
	}
	if row["body"] != "home" {
		t.Errorf("body = %q, want home (base fallback)", row["body"])
	}

	// A row keyed by its variant alone is reachable through the chain's
	// full-set first step.
	row, found, err = db.Lookup("content", "page.nav<mobile>")
	if err != nil || !found {
		t.Fatalf("Lookup(mobile) = %v, %v", found, err)
	}
	if row["body"] != "compact" {
		t.Errorf("body = %q, want compact (variant match)", row["body"])
	}

	_, found, err = db.Lookup("content", "page.missing<de>")
	if err != nil {
		t.Fatalf("Lookup(missing): %v", err)
	}
	if found {
		t.Error("Lookup of an absent base should not match")
	}
}

func TestLookupRejectsInvalidKey(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("content", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, _, err := db.Lookup("content", "single"); err == nil {
		t.Error("expected an error for a key below minimum depth")
	}
}
