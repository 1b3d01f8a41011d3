// Package table implements the versioned per-table store: a
// canonical current snapshot, a history of binary deltas, and an event
// log, committed atomically under a per-table advisory file lock.
package table

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/reedbase/reedbase/internal/delta"
	"github.com/reedbase/reedbase/internal/eventlog"
)

// Domain error sentinels.
var (
	ErrTableAlreadyExists = errors.New("table: already exists")
	ErrTableNotFound       = errors.New("table: not found")
	ErrVersionNotFound     = errors.New("table: version not found")
	ErrNotConfirmed        = errors.New("table: destructive operation requires confirm=true")
)

const (
	lockInitialInterval = 5 * time.Millisecond
	lockMaxInterval     = 100 * time.Millisecond
	lockMaxRetries      = 50
)

// VersionInfo describes one logged commit, as returned by ListVersions.
type VersionInfo struct {
	Timestamp uint64
	Action    string
	User      string
	Base      uint64
	Size      uint64
	Rows      uint64
	Hash      string
	FrameID   string
}

// Store manages one table's on-disk directory.
type Store struct {
	dir  string
	name string

	lock     *flock.Flock
	actions  *eventlog.Registry
	users    *eventlog.Registry
	cache    *lru.Cache[string, []byte]
	log      *zap.Logger
	hashAlgo string
}

func currentPath(dir string) string { return filepath.Join(dir, "current.csv") }
func logPath(dir string) string     { return filepath.Join(dir, "version.log") }
func lockPath(dir string) string    { return filepath.Join(dir, ".lock") }
func snapshot0Path(dir string) string { return filepath.Join(dir, "snapshot0.bin") }
func deltaPathFor(dir string, ts uint64) string {
	if ts == 0 {
		return filepath.Join(dir, "0.bsdiff")
	}
	return filepath.Join(dir, fmt.Sprintf("%d.bsdiff", ts))
}

// Open attaches a Store to an existing or not-yet-created table
// directory under baseDir/tables/<name>. actions and users are the
// shared registries used to encode/decode the event log; cache is the
// shared current-snapshot cache (may be nil, disabling caching).
// hashAlgo selects the content-hash function stamped into each commit's
// event-log entry ("xxh3", the default, or "blake2b"); any other value
// falls back to xxh3.
func Open(baseDir, name string, actions, users *eventlog.Registry, cache *lru.Cache[string, []byte], logger *zap.Logger, hashAlgo string) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(baseDir, "tables", name)
	return &Store{
		dir:      dir,
		name:     name,
		lock:     flock.New(lockPath(dir)),
		actions:  actions,
		users:    users,
		cache:    cache,
		log:      logger,
		hashAlgo: hashAlgo,
	}
}

// Exists reports whether the table's snapshot file is present. A
// table exists iff current.csv exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(currentPath(s.dir))
	return err == nil
}

func countRows(data []byte) uint64 {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return 0
	}
	lines := uint64(strings.Count(text, "\n") + 1)
	if lines == 0 {
		return 0
	}
	return lines - 1 // exclude header row
}

func (s *Store) hashOf(data []byte) string {
	if s.hashAlgo == "blake2b" {
		sum := blake2b.Sum256(data)
		return fmt.Sprintf("%x", sum)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// Init creates the table's directory and its first version. It fails
// if the table already exists.
func (s *Store) Init(data []byte, user string) error {
	if s.Exists() {
		return ErrTableAlreadyExists
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	if err := writeAtomicFile(currentPath(s.dir), data); err != nil {
		return err
	}
	if err := writeAtomicFile(snapshot0Path(s.dir), data); err != nil {
		return err
	}
	if err := writeAtomicFile(deltaPathFor(s.dir, 0), nil); err != nil {
		return err
	}

	ts := uint64(time.Now().UnixNano())
	entry := eventlog.Entry{
		Timestamp: ts,
		Action:    "init",
		User:      user,
		Base:      0,
		Size:      uint64(len(data)),
		Rows:      countRows(data),
		Hash:      s.hashOf(data),
		FrameID:   uuid.New().String(),
	}
	if err := s.appendEntry(entry); err != nil {
		return err
	}
	s.putCache(data)
	s.log.Info("table initialized", zap.String("table", s.name), zap.Uint64("ts", ts))
	return nil
}

// ReadCurrent returns the table's current snapshot bytes, serving from
// the shared cache when available.
func (s *Store) ReadCurrent() ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(s.name); ok {
			return data, nil
		}
	}
	data, err := os.ReadFile(currentPath(s.dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	s.putCache(data)
	return data, nil
}

func (s *Store) putCache(data []byte) {
	if s.cache != nil {
		s.cache.Add(s.name, data)
	}
}

// Write generates a delta from the prior snapshot to data, atomically
// replaces the snapshot, and appends an update event — all under the
// table's exclusive lock.
func (s *Store) Write(data []byte, user string) error {
	return s.withLock(func() error {
		return s.commitLocked(data, user, "update")
	})
}

// ReadModifyWrite reads the current snapshot, applies modify under a
// single lock acquisition, and commits the result — the only
// TOCTOU-free path for compound mutations.
func (s *Store) ReadModifyWrite(modify func([]byte) ([]byte, error), user string) error {
	return s.withLock(func() error {
		current, err := os.ReadFile(currentPath(s.dir))
		if err != nil {
			return err
		}
		next, err := modify(current)
		if err != nil {
			return err
		}
		return s.commitLocked(next, user, "update")
	})
}

// commitLocked stages the new snapshot bytes in a temp file, writes the
// delta from the current snapshot to them, renames the staged file over
// the snapshot, and only then appends the log line. Callers must hold
// the table lock.
func (s *Store) commitLocked(data []byte, user, action string) error {
	prevTS, err := s.lastTimestampLocked()
	if err != nil {
		return err
	}

	ts := uint64(time.Now().UnixNano())
	newTmp := filepath.Join(s.dir, fmt.Sprintf(".new-%d", ts))
	if err := writeAtomicFile(newTmp, data); err != nil {
		return err
	}
	defer os.Remove(newTmp)

	dPath := deltaPathFor(s.dir, ts)
	if _, err := delta.GenerateDelta(currentPath(s.dir), newTmp, dPath); err != nil {
		return err
	}

	if err := os.Rename(newTmp, currentPath(s.dir)); err != nil {
		return err
	}

	entry := eventlog.Entry{
		Timestamp: ts,
		Action:    action,
		User:      user,
		Base:      prevTS,
		Size:      uint64(len(data)),
		Rows:      countRows(data),
		Hash:      s.hashOf(data),
		FrameID:   uuid.New().String(),
	}
	if err := s.appendEntry(entry); err != nil {
		return err
	}

	s.putCache(data)
	return nil
}

func (s *Store) appendEntry(e eventlog.Entry) error {
	line, err := eventlog.EncodeLine(e, s.actions, s.users)
	if err != nil {
		return err
	}
	return eventlog.AppendEntry(logPath(s.dir), line)
}

func (s *Store) lastTimestampLocked() (uint64, error) {
	versions, err := s.listVersionsAscendingLocked()
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1].Timestamp, nil
}

func (s *Store) listVersionsAscendingLocked() ([]VersionInfo, error) {
	data, err := os.ReadFile(logPath(s.dir))
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

	var out []VersionInfo
	for _, line := range strings.Split(text, "\n") {
		e, err := eventlog.DecodeLine(line, s.actions, s.users)
		if err != nil {
			return nil, err
		}
		out = append(out, VersionInfo{
			Timestamp: e.Timestamp,
			Action:    e.Action,
			User:      e.User,
			Base:      e.Base,
			Size:      e.Size,
			Rows:      e.Rows,
			Hash:      e.Hash,
			FrameID:   e.FrameID,
		})
	}
	return out, nil
}

// ListVersions returns the table's commit history, newest first.
func (s *Store) ListVersions() ([]VersionInfo, error) {
	var versions []VersionInfo
	err := s.withLockRead(func() error {
		v, err := s.listVersionsAscendingLocked()
		if err != nil {
			return err
		}
		versions = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// Rollback reconstructs the snapshot as of timestamp by replaying
// delta[0] (the initial content) and every subsequent delta up to and
// including timestamp, then commits the result as a new version.
func (s *Store) Rollback(timestamp uint64, user string) error {
	return s.withLock(func() error {
		versions, err := s.listVersionsAscendingLocked()
		if err != nil {
			return err
		}

		found := false
		for _, v := range versions {
			if v.Timestamp == timestamp {
				found = true
				break
			}
		}
		if !found {
			return ErrVersionNotFound
		}

		scratch, err := os.ReadFile(snapshot0Path(s.dir))
		if err != nil {
			return err
		}
		scratchPath := filepath.Join(s.dir, ".rollback-scratch-0")
		if err := writeAtomicFile(scratchPath, scratch); err != nil {
			return err
		}
		defer os.Remove(scratchPath)

		for i, v := range versions {
			if i == 0 {
				continue // init's own entry; content already in snapshot0.bin
			}
			if v.Timestamp > timestamp {
				break
			}
			nextPath := filepath.Join(s.dir, fmt.Sprintf(".rollback-scratch-%d", v.Timestamp))
			if err := delta.ApplyDelta(scratchPath, deltaPathFor(s.dir, v.Timestamp), nextPath); err != nil {
				return err
			}
			os.Remove(scratchPath)
			scratchPath = nextPath
		}
		defer os.Remove(scratchPath)

		final, err := os.ReadFile(scratchPath)
		if err != nil {
			return err
		}
		// The restored bytes commit as an ordinary write, so the history
		// stays strictly append-only.
		return s.commitLocked(final, user, "update")
	})
}

// ValidateLog decodes the table's event log line by line, counting
// valid and corrupted lines without modifying the file.
func (s *Store) ValidateLog() (eventlog.Report, error) {
	var rep eventlog.Report
	err := s.withLockRead(func() error {
		r, err := eventlog.ValidateLog(logPath(s.dir), s.actions, s.users)
		rep = r
		return err
	})
	return rep, err
}

// RepairLog truncates the event log at its first corrupted line,
// quarantining the removed tail beside the log file. ListVersions
// succeeds afterward even if it failed before.
func (s *Store) RepairLog() (eventlog.Report, error) {
	var rep eventlog.Report
	err := s.withLock(func() error {
		r, err := eventlog.ValidateAndTruncateLog(logPath(s.dir), s.actions, s.users)
		rep = r
		return err
	})
	return rep, err
}

// Delete removes the table's entire directory. It refuses unless
// confirm is true.
func (s *Store) Delete(confirm bool) error {
	if !confirm {
		return ErrNotConfirmed
	}
	return os.RemoveAll(s.dir)
}

// withLock acquires the table's exclusive lock with bounded
// exponential backoff (5ms initial, 100ms cap, 50 retries), runs fn,
// and always releases the lock afterward.
func (s *Store) withLock(fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = lockInitialInterval
	bo.MaxInterval = lockMaxInterval
	bounded := backoff.WithMaxRetries(bo, lockMaxRetries)

	acquire := func() error {
		ok, err := s.lock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return fmt.Errorf("table: lock held")
		}
		return nil
	}
	if err := backoff.Retry(acquire, bounded); err != nil {
		return fmt.Errorf("table: failed to acquire lock on %s: %w", s.name, err)
	}
	defer s.lock.Unlock()

	return fn()
}

// withLockRead behaves like withLock; the lock is coarse (a single
// exclusive file lock per table), so reads also serialize through it
// rather than using a separate shared-lock mode.
func (s *Store) withLockRead(fn func() error) error {
	return s.withLock(fn)
}

func writeAtomicFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
