// Package migrate guards store initialization against destructive
// legacy-schema prunes.
package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Marker records that a workspace has been through schema migration. Once
// written it is authoritative: its presence forbids any future automatic
// destructive prune for the workspace, regardless of other signals.
type Marker struct {
	Version      string    `json:"version"`
	MigratedAt   time.Time `json:"migrated_at"`
	PruneSkipped bool      `json:"prune_skipped"`
	Reason       string    `json:"reason,omitempty"`
}

// ReadMarker loads the marker at path. A missing file returns (nil, nil).
// A torn or unparseable marker is conservatively treated as present: an
// empty Marker is returned so the gate still refuses to prune.
func ReadMarker(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migration marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return &Marker{}, nil
	}
	return &m, nil
}

// WriteMarker persists the marker atomically (temp file then rename).
func WriteMarker(path string, m Marker) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal migration marker: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".migration-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp marker: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp marker: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace migration marker: %w", err)
	}
	return nil
}
