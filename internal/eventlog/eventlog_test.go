package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openRegistries(t *testing.T, dir string) (*Registry, *Registry) {
	t.Helper()
	actions, err := OpenRegistry(filepath.Join(dir, "actions.json"))
	if err != nil {
		t.Fatalf("OpenRegistry(actions): %v", err)
	}
	users, err := OpenRegistry(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("OpenRegistry(users): %v", err)
	}
	return actions, users
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	actions, users := openRegistries(t, dir)

	e := Entry{
		Timestamp: 1710000000000,
		Action:    "update",
		User:      "alice",
		Base:      1,
		Size:      128,
		Rows:      3,
		Hash:      "abc123",
		FrameID:   "f-1",
	}

	line, err := EncodeLine(e, actions, users)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	if !strings.HasPrefix(line, "REED|") {
		t.Fatalf("line missing REED prefix: %q", line)
	}

	got, err := DecodeLine(line, actions, users)
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if got != e {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestDecodeFrameNA(t *testing.T) {
	dir := t.TempDir()
	actions, users := openRegistries(t, dir)

	e := Entry{Timestamp: 1, Action: "init", User: "bob", Base: 0, Size: 10, Rows: 1, Hash: "h"}
	line, err := EncodeLine(e, actions, users)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	got, err := DecodeLine(line, actions, users)
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if got.FrameID != "" {
		t.Errorf("FrameID = %q, want empty", got.FrameID)
	}
}

func TestDecodeLegacyFormats(t *testing.T) {
	dir := t.TempDir()
	actions, users := openRegistries(t, dir)

	seven := "100|init|carol|0|10|1|hash1"
	e, err := DecodeLine(seven, actions, users)
	if err != nil {
		t.Fatalf("DecodeLine(7-field): %v", err)
	}
	if e.Action != "init" || e.FrameID != "" {
		t.Errorf("7-field decode = %+v", e)
	}

	eight := "200|update|carol|1|20|2|hash2|frame-9"
	e2, err := DecodeLine(eight, actions, users)
	if err != nil {
		t.Fatalf("DecodeLine(8-field): %v", err)
	}
	if e2.FrameID != "frame-9" {
		t.Errorf("8-field FrameID = %q, want frame-9", e2.FrameID)
	}
}

// TestValidateAndTruncateLog: a flipped CRC on one line
// causes validate_log to report a single corruption, and
// validate_and_truncate_log to drop that line and everything after it.
func TestValidateAndTruncateLog(t *testing.T) {
	dir := t.TempDir()
	actions, users := openRegistries(t, dir)
	path := filepath.Join(dir, "version.log")

	e1 := Entry{Timestamp: 1, Action: "init", User: "dave", Base: 0, Size: 5, Rows: 1, Hash: "h1"}
	e2 := Entry{Timestamp: 2, Action: "update", User: "dave", Base: 1, Size: 6, Rows: 2, Hash: "h2"}

	l1, err := EncodeLine(e1, actions, users)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	l2, err := EncodeLine(e2, actions, users)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}

	// Flip a bit in the CRC field of the second line to simulate
	// corruption.
	corruptL2 := l2[:len(l2)-1] + flipHexDigit(l2[len(l2)-1])

	if err := AppendEntry(path, l1); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if err := AppendEntry(path, corruptL2); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	rep, err := ValidateLog(path, actions, users)
	if err != nil {
		t.Fatalf("ValidateLog: %v", err)
	}
	if rep.Corrupted != 1 || rep.Valid != 1 {
		t.Errorf("ValidateLog report = %+v, want 1 valid, 1 corrupted", rep)
	}

	trep, err := ValidateAndTruncateLog(path, actions, users)
	if err != nil {
		t.Fatalf("ValidateAndTruncateLog: %v", err)
	}
	if !trep.Truncated {
		t.Error("expected Truncated = true")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimRight(string(data), "\n") != l1 {
		t.Errorf("truncated log content = %q, want only the first line", string(data))
	}

	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("expected exactly one quarantine file, found %d", len(matches))
	}
}

func flipHexDigit(b byte) string {
	if b == '0' {
		return "1"
	}
	return "0"
}
