// Package lock provides the workspace maintenance lock: a filesystem-based
// mutual-exclusion primitive scoping one destructive or rebuild operation
// per workspace at a time.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is the lock file payload. Existence of the file is the lock; the
// record only identifies the holder for diagnostics.
type Record struct {
	AcquiredAt time.Time `json:"acquired_at"`
	OwnerPID   int       `json:"owner_pid"`
	Operation  string    `json:"operation"`
}

// Locker is the mutual-exclusion contract honored by every entry point that
// mutates a workspace's stores. Acquire returns false when the lock is
// already held; Release is idempotent.
type Locker interface {
	Acquire(operation string) (bool, error)
	Release() error
}

// FileLock implements Locker over a single lock file per workspace.
type FileLock struct {
	path string
}

// NewFileLock creates a FileLock at the given path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire attempts to create the lock file exclusively. It never overwrites
// an existing lock; a held lock returns (false, nil).
func (f *FileLock) Acquire(operation string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	rec := Record{
		AcquiredAt: time.Now().UTC(),
		OwnerPID:   os.Getpid(),
		Operation:  operation,
	}
	if err := json.NewEncoder(file).Encode(rec); err != nil {
		os.Remove(f.path)
		return false, fmt.Errorf("failed to write lock record: %w", err)
	}

	return true, nil
}

// Release deletes the lock file if present. Releasing an unheld lock is a
// no-op, never an error.
func (f *FileLock) Release() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Holder returns the current lock record, or nil when no lock is held.
// A torn or unparseable lock file still counts as held.
func (f *FileLock) Holder() (*Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return &Record{}, nil
	}
	return &rec, nil
}

// MemoryLock is an in-process Locker for tests.
type MemoryLock struct {
	mu   sync.Mutex
	held bool
}

// NewMemoryLock creates an unheld MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{}
}

// Acquire takes the lock if free.
func (m *MemoryLock) Acquire(operation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

// Release frees the lock. Idempotent.
func (m *MemoryLock) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	return nil
}

// Held reports whether the lock is currently taken.
func (m *MemoryLock) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}
