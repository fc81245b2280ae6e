package rebuild

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ramdhan/mnemo/pkg/integrity"
)

// FileError records one input file that could not be processed.
type FileError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Receipt is the terminal summary of one run, appended to the workspace
// receipts journal for auditability.
type Receipt struct {
	RunID          string           `json:"run_id"`
	Mode           Mode             `json:"mode"`
	DryRun         bool             `json:"dry_run,omitempty"`
	FilesProcessed int              `json:"files_processed"`
	FilesSkipped   int              `json:"files_skipped"`
	Errors         []FileError      `json:"errors,omitempty"`
	FinalIntegrity integrity.Status `json:"final_integrity"`
	StartedAt      time.Time        `json:"started_at"`
	DurationMS     int64            `json:"duration_ms"`
}

// Append writes the receipt as one JSON line at the end of the receipts
// journal.
func (r *Receipt) Append(path string) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open receipts journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append receipt: %w", err)
	}
	return nil
}
