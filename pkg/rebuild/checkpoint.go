// Package rebuild implements the checkpointed batch rebuild pipeline that
// drives the knowledge-store engine from durable source files.
package rebuild

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ramdhan/mnemo/pkg/workspace"
)

// Checkpoint is the persisted progress marker for one in-progress or
// most-recently-interrupted rebuild. Updated atomically after each
// successfully committed batch.
type Checkpoint struct {
	InputFingerprint    workspace.Fingerprint `json:"input_fingerprint"`
	CompletedBatchIndex int                   `json:"completed_batch_index"`
	ProcessedFileCount  int                   `json:"processed_file_count"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// LoadCheckpoint reads the checkpoint at path. A missing, torn, or
// unparseable checkpoint is "no valid checkpoint": (nil, nil), never a
// crash on read.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil
	}
	if !validFingerprint(cp.InputFingerprint) || cp.CompletedBatchIndex < 0 {
		return nil, nil
	}
	return &cp, nil
}

// validFingerprint reports whether fp is a full sha256 hex digest. Anything
// else is a corrupt or hand-edited checkpoint.
func validFingerprint(fp workspace.Fingerprint) bool {
	if len(fp) != 64 {
		return false
	}
	for _, c := range fp {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Save persists the checkpoint atomically: write to a temp file in the same
// directory, then rename over the destination. A crash mid-write can never
// produce a half-written checkpoint.
func (c *Checkpoint) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// RemoveCheckpoint deletes the checkpoint if present. Idempotent.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}
