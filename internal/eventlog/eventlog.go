// Package eventlog implements the per-table event log: an
// append-only, integer-coded, CRC-guarded text format with forward and
// backward compatibility, and the corruption-truncation routine that
// gives the table store its crash-recovery semantics.
package eventlog

import (
	"fmt"
	"hash/crc32"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const newFormatTag = "REED"

// Entry is one decoded event-log line.
type Entry struct {
	Timestamp uint64
	Action    string
	User      string
	Base      uint64
	Size      uint64
	Rows      uint64
	Hash      string
	FrameID   string // "" if absent
}

// ErrCorruptedLogEntry signals a line that failed CRC or length
// validation in the new format.
type ErrCorruptedLogEntry struct {
	Line   int
	Reason string
}

func (e *ErrCorruptedLogEntry) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("eventlog: corrupted entry at line %d: %s", e.Line, e.Reason)
	}
	return "eventlog: corrupted entry: " + e.Reason
}

// EncodeLine renders e in the new 11-field format, resolving action
// and user names to registry codes.
func EncodeLine(e Entry, actions, users *Registry) (string, error) {
	actionCode, err := actions.Code(e.Action)
	if err != nil {
		return "", err
	}
	userCode, err := users.Code(e.User)
	if err != nil {
		return "", err
	}

	frame := e.FrameID
	if frame == "" {
		frame = "n/a"
	}

	middle := fmt.Sprintf("%d|%d|%d|%d|%d|%d|%s|%s",
		e.Timestamp, actionCode, userCode, e.Base, e.Size, e.Rows, e.Hash, frame)
	crc := crc32.ChecksumIEEE([]byte(middle))

	// length covers the entire rendered line, including the CRC field
	// itself; both length and crc are fixed-width 8 hex digits, so the
	// total is computable before either is substituted in.
	totalLen := len(newFormatTag) + 1 + 8 + 1 + len(middle) + 1 + 8

	return fmt.Sprintf("%s|%08X|%s|%08X", newFormatTag, totalLen, middle, crc), nil
}

// DecodeLine parses a line in either the new 11-field format or one of
// the two legacy (7- or 8-field, uncoded, unchecked) formats.
func DecodeLine(line string, actions, users *Registry) (Entry, error) {
	fields := strings.Split(line, "|")

	if len(fields) == 11 && fields[0] == newFormatTag {
		return decodeNewFormat(line, fields, actions, users)
	}
	if len(fields) == 7 || len(fields) == 8 {
		return decodeLegacy(fields)
	}
	return Entry{}, fmt.Errorf("eventlog: unrecognized line format (%d fields)", len(fields))
}

func decodeNewFormat(line string, fields []string, actions, users *Registry) (Entry, error) {
	wantLen, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return Entry{}, &ErrCorruptedLogEntry{Reason: "unparseable length field"}
	}
	if int(wantLen) != len(line) {
		return Entry{}, &ErrCorruptedLogEntry{Reason: fmt.Sprintf("length mismatch: header says %d, line is %d", wantLen, len(line))}
	}

	middle := strings.Join(fields[2:10], "|")
	wantCRC, err := strconv.ParseUint(fields[10], 16, 32)
	if err != nil {
		return Entry{}, &ErrCorruptedLogEntry{Reason: "unparseable crc field"}
	}
	if uint32(wantCRC) != crc32.ChecksumIEEE([]byte(middle)) {
		return Entry{}, &ErrCorruptedLogEntry{Reason: "crc mismatch"}
	}

	ts, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad timestamp: %w", err)
	}
	actionCode, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad action code: %w", err)
	}
	userCode, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad user code: %w", err)
	}
	base, err := strconv.ParseUint(fields[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad base version: %w", err)
	}
	size, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad size: %w", err)
	}
	rows, err := strconv.ParseUint(fields[7], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad row count: %w", err)
	}

	actionName, err := actions.Name(uint32(actionCode))
	if err != nil {
		return Entry{}, err
	}
	userName, err := users.Name(uint32(userCode))
	if err != nil {
		return Entry{}, err
	}

	frame := fields[9]
	if frame == "n/a" {
		frame = ""
	}

	return Entry{
		Timestamp: ts,
		Action:    actionName,
		User:      userName,
		Base:      base,
		Size:      size,
		Rows:      rows,
		Hash:      fields[8],
		FrameID:   frame,
	}, nil
}

// decodeLegacy parses the two pre-CRC formats kept for read-only
// compatibility: ts|action|user|base|size|rows|hash[|frame]. These
// formats predate the action/user registry, so both fields are plain
// strings rather than codes.
func decodeLegacy(fields []string) (Entry, error) {
	ts, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad legacy timestamp: %w", err)
	}
	base, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad legacy base version: %w", err)
	}
	size, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad legacy size: %w", err)
	}
	rows, err := strconv.ParseUint(fields[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad legacy row count: %w", err)
	}

	e := Entry{
		Timestamp: ts,
		Action:    fields[1],
		User:      fields[2],
		Base:      base,
		Size:      size,
		Rows:      rows,
		Hash:      fields[6],
	}
	if len(fields) == 8 {
		e.FrameID = fields[7]
	}
	return e, nil
}

// AppendEntry creates or opens path for append and writes line plus a
// trailing newline, fsyncing before returning.
func AppendEntry(path, line string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

// Report is the outcome of ValidateLog / ValidateAndTruncateLog.
type Report struct {
	Total                int
	Valid                int
	Corrupted            int
	CorruptedLineNumbers []int
	Truncated            bool
}

// ValidateLog decodes path line by line, counting valid and corrupted
// lines without modifying the file.
func ValidateLog(path string, actions, users *Registry) (Report, error) {
	lines, err := readLines(path)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for i, line := range lines {
		rep.Total++
		if _, err := DecodeLine(line, actions, users); err != nil {
			rep.Corrupted++
			rep.CorruptedLineNumbers = append(rep.CorruptedLineNumbers, i+1)
			continue
		}
		rep.Valid++
	}
	return rep, nil
}

// ValidateAndTruncateLog decodes path line by line; on the first
// corrupted line it rewrites the file to contain only the lines
// strictly before it, preserving the removed tail in a zstd-compressed
// quarantine file (version.log.corrupt-<timestamp>.zst) rather than
// discarding it. If the
// resulting file would be empty, it is deleted instead.
func ValidateAndTruncateLog(path string, actions, users *Registry) (Report, error) {
	lines, err := readLines(path)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	cutAt := -1
	for i, line := range lines {
		rep.Total++
		if _, err := DecodeLine(line, actions, users); err != nil {
			rep.Corrupted++
			rep.CorruptedLineNumbers = append(rep.CorruptedLineNumbers, i+1)
			cutAt = i
			break
		}
		rep.Valid++
	}

	if cutAt == -1 {
		return rep, nil
	}
	rep.Truncated = true

	tail := strings.Join(lines[cutAt:], "\n")
	quarantine := fmt.Sprintf("%s.corrupt-%d.zst", path, time.Now().UnixNano())
	compressed, err := compressQuarantine([]byte(tail + "\n"))
	if err != nil {
		return rep, err
	}
	if err := os.WriteFile(quarantine, compressed, 0644); err != nil {
		return rep, err
	}

	kept := lines[:cutAt]
	if len(kept) == 0 {
		return rep, os.Remove(path)
	}

	content := strings.Join(kept, "\n") + "\n"
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return rep, err
	}
	return rep, os.Rename(tmp, path)
}

// compressQuarantine encodes the discarded tail with zstd before it is
// written aside, since quarantined corruption can include large runs of
// otherwise-valid-looking rows that operators may want to keep around
// for a while without the on-disk cost of the raw text.
func compressQuarantine(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
