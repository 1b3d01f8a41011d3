package table

import (
	"bytes"
	"path/filepath"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reedbase/reedbase/internal/eventlog"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	dir := t.TempDir()
	actions, err := eventlog.OpenRegistry(filepath.Join(dir, "registry", "actions.json"))
	if err != nil {
		t.Fatalf("OpenRegistry(actions): %v", err)
	}
	users, err := eventlog.OpenRegistry(filepath.Join(dir, "registry", "users.json"))
	if err != nil {
		t.Fatalf("OpenRegistry(users): %v", err)
	}
	cache, err := lru.New[string, []byte](8)
	if err != nil {
		t.Fatalf("lru.New: %v", err)
	}
	return Open(dir, name, actions, users, cache, nil, "xxh3")
}

func TestInitAndReadCurrent(t *testing.T) {
	s := newTestStore(t, "widgets")
	if s.Exists() {
		t.Fatal("new table should not exist before Init")
	}

	content := []byte("key|value\nfoo|1\n")
	if err := s.Init(content, "alice"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !s.Exists() {
		t.Fatal("table should exist after Init")
	}

	got, err := s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("ReadCurrent = %q, want %q", got, content)
	}
}

func TestInitTwiceFails(t *testing.T) {
	s := newTestStore(t, "widgets")
	if err := s.Init([]byte("key|value\n"), "alice"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Init([]byte("key|value\n"), "alice"); err != ErrTableAlreadyExists {
		t.Errorf("second Init error = %v, want ErrTableAlreadyExists", err)
	}
}

// TestRoundTripVersionedHistory: three committed
// versions, newest-first listing, and a rollback that restores the
// first version's exact bytes while appending a fourth log line.
func TestRoundTripVersionedHistory(t *testing.T) {
	s := newTestStore(t, "widgets")

	v1 := []byte("key|value\nfoo|1\n")
	v2 := []byte("key|value\nfoo|2\n")
	v3 := []byte("key|value\nfoo|3\n")

	if err := s.Init(v1, "t"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Write(v2, "t"); err != nil {
		t.Fatalf("Write v2: %v", err)
	}
	if err := s.Write(v3, "t"); err != nil {
		t.Fatalf("Write v3: %v", err)
	}

	versions, err := s.ListVersions()
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("len(versions) = %d, want 3", len(versions))
	}
	if versions[0].Action != "update" || versions[2].Action != "init" {
		t.Errorf("versions not newest-first: %+v", versions)
	}

	ts0 := versions[2].Timestamp

	if err := s.Rollback(ts0, "t"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	current, err := s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent after rollback: %v", err)
	}
	if !bytes.Equal(current, v1) {
		t.Errorf("ReadCurrent after rollback = %q, want %q", current, v1)
	}

	versionsAfter, err := s.ListVersions()
	if err != nil {
		t.Fatalf("ListVersions after rollback: %v", err)
	}
	if len(versionsAfter) != 4 {
		t.Fatalf("len(versionsAfter) = %d, want 4", len(versionsAfter))
	}
	if versionsAfter[0].Action != "update" {
		t.Errorf("newest action after rollback = %q, want update", versionsAfter[0].Action)
	}
}

func TestReadModifyWriteAtomic(t *testing.T) {
	s := newTestStore(t, "counters")
	if err := s.Init([]byte("key|value\ncount|0\n"), "t"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := s.ReadModifyWrite(func(cur []byte) ([]byte, error) {
		return []byte("key|value\ncount|1\n"), nil
	}, "t")
	if err != nil {
		t.Fatalf("ReadModifyWrite: %v", err)
	}

	got, err := s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	want := []byte("key|value\ncount|1\n")
	if !bytes.Equal(got, want) {
		t.Errorf("ReadCurrent = %q, want %q", got, want)
	}
}

// TestRepairLogRecoversListVersions appends a malformed line to the
// event log, checks that ListVersions fails, then repairs and checks
// that history listing works again with only the valid prefix.
func TestRepairLogRecoversListVersions(t *testing.T) {
	s := newTestStore(t, "widgets")
	if err := s.Init([]byte("key|value\nfoo|1\n"), "t"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Write([]byte("key|value\nfoo|2\n"), "t"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := eventlog.AppendEntry(logPath(s.dir), "not|a|valid|entry"); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if _, err := s.ListVersions(); err == nil {
		t.Fatal("expected ListVersions to fail on a corrupted log")
	}

	rep, err := s.RepairLog()
	if err != nil {
		t.Fatalf("RepairLog: %v", err)
	}
	if !rep.Truncated || rep.Corrupted != 1 || rep.Valid != 2 {
		t.Errorf("RepairLog report = %+v, want 2 valid, 1 corrupted, truncated", rep)
	}

	versions, err := s.ListVersions()
	if err != nil {
		t.Fatalf("ListVersions after repair: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("len(versions) after repair = %d, want 2", len(versions))
	}
}

func TestDeleteRequiresConfirm(t *testing.T) {
	s := newTestStore(t, "widgets")
	if err := s.Init([]byte("key|value\n"), "t"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Delete(false); err != ErrNotConfirmed {
		t.Errorf("Delete(false) error = %v, want ErrNotConfirmed", err)
	}
	if err := s.Delete(true); err != nil {
		t.Fatalf("Delete(true): %v", err)
	}
	if s.Exists() {
		t.Error("table should not exist after confirmed delete")
	}
}
