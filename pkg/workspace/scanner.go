package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize is the default per-file size cap for enumeration (10 MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// InputFile is one durable source file observed during enumeration.
type InputFile struct {
	Path       string    `json:"path"`
	RelPath    string    `json:"rel_path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SkippedFile records a file excluded from an input set and why.
type SkippedFile struct {
	RelPath string `json:"rel_path"`
	Reason  string `json:"reason"`
}

// ScanOptions configures input enumeration.
type ScanOptions struct {
	// Extension selects source files, e.g. ".md". Matched case-insensitively.
	Extension string
	// MaxFileSize caps individual files; oversized files are skipped,
	// never fatal. Zero means DefaultMaxFileSize.
	MaxFileSize int64
}

// Scan walks the workspace recursively and returns the input set, sorted by
// relative path. The state directory subtree is always excluded.
func Scan(l *Layout, opts ScanOptions) ([]InputFile, []SkippedFile, error) {
	ext := strings.ToLower(opts.Extension)
	if ext == "" {
		ext = ".md"
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []InputFile
	var skipped []SkippedFile

	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == l.StateDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}

		if info.Size() > maxSize {
			skipped = append(skipped, SkippedFile{
				RelPath: relPath,
				Reason:  fmt.Sprintf("file size %d exceeds maximum %d", info.Size(), maxSize),
			})
			return nil
		}

		files = append(files, InputFile{
			Path:       path,
			RelPath:    relPath,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk workspace: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, skipped, nil
}
