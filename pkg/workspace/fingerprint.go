package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Fingerprint is a deterministic digest identifying the exact membership and
// metadata of an input set. Any change to membership, size or modification
// time of a file changes the fingerprint.
type Fingerprint string

// ComputeFingerprint digests the sorted (path, size, mtime) tuples of an
// input set. The input slice is not mutated.
func ComputeFingerprint(files []InputFile) Fingerprint {
	sorted := make([]InputFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RelPath < sorted[j].RelPath
	})

	h := sha256.New()
	for _, f := range sorted {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.RelPath, f.SizeBytes, f.ModifiedAt.UnixNano())
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
