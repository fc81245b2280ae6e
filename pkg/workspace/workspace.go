// Package workspace resolves workspace roots and enumerates the durable
// source files that feed the knowledge store.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the per-workspace state directory holding the lock,
// checkpoint, marker, journal, receipts and the local stores.
const StateDirName = ".mnemo"

// Layout describes the on-disk layout of one workspace.
type Layout struct {
	// Root is the absolute, symlink-resolved workspace root.
	Root string
}

// Resolve validates a workspace path and returns its layout.
// The path must be absolute and refer to an existing directory.
func Resolve(path string) (*Layout, error) {
	if path == "" {
		return nil, errors.New("workspace path is required")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("workspace path must be absolute: %s", path)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace path is not a directory: %s", path)
	}

	return &Layout{Root: resolved}, nil
}

// StateDir returns the workspace state directory.
func (l *Layout) StateDir() string {
	return filepath.Join(l.Root, StateDirName)
}

// LockFile returns the maintenance lock path.
func (l *Layout) LockFile() string {
	return filepath.Join(l.StateDir(), "maintenance.lock")
}

// CheckpointFile returns the rebuild checkpoint path.
func (l *Layout) CheckpointFile() string {
	return filepath.Join(l.StateDir(), "checkpoint.json")
}

// MarkerFile returns the migration marker path.
func (l *Layout) MarkerFile() string {
	return filepath.Join(l.StateDir(), "migration.json")
}

// JournalFile returns the append-only event journal path.
func (l *Layout) JournalFile() string {
	return filepath.Join(l.StateDir(), "journal.log")
}

// ReceiptsFile returns the receipts journal path.
func (l *Layout) ReceiptsFile() string {
	return filepath.Join(l.StateDir(), "receipts.jsonl")
}

// PIDFile returns the liveness marker path written by the watch service.
func (l *Layout) PIDFile() string {
	return filepath.Join(l.StateDir(), "daemon.pid")
}

// SettingsFile returns the optional per-workspace settings path.
func (l *Layout) SettingsFile() string {
	return filepath.Join(l.StateDir(), "settings.json")
}

// StoreDir returns the directory holding the local stores.
func (l *Layout) StoreDir() string {
	return filepath.Join(l.StateDir(), "store")
}

// PrimaryDB returns the primary record store path.
func (l *Layout) PrimaryDB() string {
	return filepath.Join(l.StoreDir(), "primary.db")
}

// VectorDB returns the derived embedding store path.
func (l *Layout) VectorDB() string {
	return filepath.Join(l.StoreDir(), "vector.db")
}

// EnsureStateDir creates the state and store directories if missing.
func (l *Layout) EnsureStateDir() error {
	if err := os.MkdirAll(l.StoreDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
