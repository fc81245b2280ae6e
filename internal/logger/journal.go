package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Journal is the append-only, workspace-scoped event log. Every line is a
// JSON record tagged with a severity level and a timestamp. Lines are only
// ever appended; the journal is part of the workspace audit trail and is
// never rotated or truncated by this tool.
type Journal struct {
	logger zerolog.Logger
	file   *os.File
}

// OpenJournal opens (creating if needed) the journal at path and tees
// events to the extra writer when non-nil (typically the console logger's
// output).
func OpenJournal(path string, level zerolog.Level, extra io.Writer) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	var writer io.Writer = file
	if extra != nil {
		writer = io.MultiWriter(file, extra)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Journal{logger: logger, file: file}, nil
}

// Logger returns the journal's zerolog.Logger.
func (j *Journal) Logger() zerolog.Logger {
	return j.logger
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.file.Close()
}
