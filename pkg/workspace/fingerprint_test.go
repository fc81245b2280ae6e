package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func inputSet() []InputFile {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []InputFile{
		{RelPath: "a.md", SizeBytes: 10, ModifiedAt: base},
		{RelPath: "b.md", SizeBytes: 20, ModifiedAt: base.Add(time.Minute)},
		{RelPath: "c.md", SizeBytes: 30, ModifiedAt: base.Add(2 * time.Minute)},
	}
}

func TestComputeFingerprint_Deterministic(t *testing.T) {
	assert.Equal(t, ComputeFingerprint(inputSet()), ComputeFingerprint(inputSet()))
}

func TestComputeFingerprint_OrderIndependent(t *testing.T) {
	files := inputSet()
	reversed := []InputFile{files[2], files[0], files[1]}
	assert.Equal(t, ComputeFingerprint(files), ComputeFingerprint(reversed))
}

func TestComputeFingerprint_SensitiveToSize(t *testing.T) {
	changed := inputSet()
	changed[1].SizeBytes++
	assert.NotEqual(t, ComputeFingerprint(inputSet()), ComputeFingerprint(changed))
}

func TestComputeFingerprint_SensitiveToModTime(t *testing.T) {
	changed := inputSet()
	changed[1].ModifiedAt = changed[1].ModifiedAt.Add(time.Nanosecond)
	assert.NotEqual(t, ComputeFingerprint(inputSet()), ComputeFingerprint(changed))
}

func TestComputeFingerprint_SensitiveToMembership(t *testing.T) {
	assert.NotEqual(t, ComputeFingerprint(inputSet()), ComputeFingerprint(inputSet()[:2]))
}

func TestComputeFingerprint_EmptySet(t *testing.T) {
	fp := ComputeFingerprint(nil)
	assert.Len(t, string(fp), 64)
	assert.Equal(t, fp, ComputeFingerprint([]InputFile{}))
}
