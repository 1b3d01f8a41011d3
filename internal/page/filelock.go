// OS-level file locking for cross-process coordination.
//
// fileLock wraps flock(2) / LockFileEx with a mutex that guards the file
// handle's lifetime. The mutex is held for the entire duration of the
// lock syscall so that Fd() cannot race with Close() on the same
// *os.File.
//
// The Store acquires an exclusive lock at Open and holds it until
// Close, so a second process cannot map the same index file while this
// one can write to it.
package page

import (
	"os"
	"sync"
)

type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// Lock acquires an exclusive lock on the file. Returns nil immediately
// if the handle has been cleared via setFile(nil).
func (l *fileLock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock()
}

// Unlock releases the lock. Returns nil immediately if the handle has
// been cleared via setFile(nil).
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight lock syscall (blocks until the mutex is available) and
// disables further locking. Used by Close before closing the fd.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
