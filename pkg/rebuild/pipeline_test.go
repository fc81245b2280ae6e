package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhan/mnemo/pkg/lock"
	"github.com/ramdhan/mnemo/pkg/workspace"
)

// fakeEngine records engine calls and can fail on demand.
type fakeEngine struct {
	mu           sync.Mutex
	ingested     []string
	commits      int
	resets       int
	failCommitAt int // fail the n-th commit (1-based), zero disables
	failReset    bool
}

func (f *fakeEngine) Ingest(_ context.Context, _, source, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, source)
	return nil
}

func (f *fakeEngine) Commit(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.failCommitAt > 0 && f.commits == f.failCommitAt {
		return errors.New("commit failed")
	}
	return nil
}

func (f *fakeEngine) Reset(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if f.failReset {
		return errors.New("reset failed")
	}
	return nil
}

func (f *fakeEngine) Search(_ context.Context, _, _ string, _ int) ([]string, error) {
	return nil, nil
}

func (f *fakeEngine) ingestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingested)
}

func newTestWorkspace(t *testing.T, fileCount int) *workspace.Layout {
	t.Helper()
	dir := t.TempDir()

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	layout := &workspace.Layout{Root: resolved}
	require.NoError(t, layout.EnsureStateDir())

	for i := 0; i < fileCount; i++ {
		path := filepath.Join(resolved, fmt.Sprintf("note-%02d.txt", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("note %d content", i)), 0644))
	}
	return layout
}

func testOptions() Options {
	return Options{
		Mode:      ModeReindexOnly,
		BatchSize: 5,
		Extension: ".txt",
	}
}

func newTestPipeline(layout *workspace.Layout, eng *fakeEngine, locker lock.Locker) *Pipeline {
	return New(layout, eng, locker, zerolog.Nop())
}

func TestRun_EndToEnd(t *testing.T) {
	layout := newTestWorkspace(t, 12)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	receipt, err := newTestPipeline(layout, eng, locker).Run(context.Background(), testOptions())
	require.NoError(t, err)

	// 12 files in batches of 5: three commits (5, 5, 2).
	assert.Equal(t, 12, receipt.FilesProcessed)
	assert.Equal(t, 0, receipt.FilesSkipped)
	assert.Equal(t, 3, eng.commits)
	assert.Equal(t, 12, eng.ingestCount())
	assert.NotEmpty(t, receipt.RunID)

	// Checkpoint is removed after a completed run.
	cp, err := LoadCheckpoint(layout.CheckpointFile())
	require.NoError(t, err)
	assert.Nil(t, cp)

	// Receipt was appended.
	_, err = os.Stat(layout.ReceiptsFile())
	assert.NoError(t, err)

	assert.False(t, locker.Held())
}

func TestRun_DestructiveRequiresConfirmation(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.Mode = ModeResetAndRebuild

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, 0, eng.resets)
	assert.Equal(t, 0, eng.ingestCount())
	assert.False(t, locker.Held())
}

func TestRun_ResetMode(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.Mode = ModeResetAndRebuild
	opts.Force = true

	receipt, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, eng.resets)
	assert.Equal(t, 3, receipt.FilesProcessed)
	assert.False(t, locker.Held())
}

func TestRun_ResetInvalidatesCheckpoint(t *testing.T) {
	layout := newTestWorkspace(t, 12)
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.Mode = ModeResetAndRebuild
	opts.Force = true

	first := &fakeEngine{failCommitAt: 2}
	_, err := newTestPipeline(layout, first, locker).Run(context.Background(), opts)
	require.Error(t, err)

	cp, err := LoadCheckpoint(layout.CheckpointFile())
	require.NoError(t, err)
	require.NotNil(t, cp)

	// The second reset wipes batch 0's derived rows too, so the resume
	// must rebuild all 12 files, not just the ones past the checkpoint.
	second := &fakeEngine{}
	opts.Resume = true
	receipt, err := newTestPipeline(layout, second, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, second.resets)
	assert.Equal(t, 12, second.ingestCount())
	assert.Equal(t, 12, receipt.FilesProcessed)
}

func TestRun_ResumeWithMalformedCheckpointStartsFresh(t *testing.T) {
	layout := newTestWorkspace(t, 6)
	require.NoError(t, os.WriteFile(layout.CheckpointFile(),
		[]byte(`{"input_fingerprint": "abc", "completed_batch_index": 1}`), 0644))

	eng := &fakeEngine{}
	opts := testOptions()
	opts.Resume = true

	receipt, err := newTestPipeline(layout, eng, lock.NewMemoryLock()).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 6, receipt.FilesProcessed)
	assert.Equal(t, 6, eng.ingestCount())
}

func TestRun_ResetFailureAbortsBeforeRebuild(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{failReset: true}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.Mode = ModeResetAndRebuild
	opts.Force = true

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, 0, eng.ingestCount())
	assert.Equal(t, 0, eng.commits)
	assert.False(t, locker.Held())
}

func TestRun_LockHeld(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	held, err := locker.Acquire("other-operation")
	require.NoError(t, err)
	require.True(t, held)

	_, err = newTestPipeline(layout, eng, locker).Run(context.Background(), testOptions())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, 0, eng.ingestCount())

	// The held lock belongs to the other operation and must survive.
	assert.True(t, locker.Held())
}

func TestRun_ConcurrentWriterDetected(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	// The parent process is alive and is not us: a convincing live writer.
	require.NoError(t, os.WriteFile(layout.PIDFile(), []byte(fmt.Sprintf("%d\n", os.Getppid())), 0644))

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), testOptions())
	assert.ErrorIs(t, err, ErrConcurrentWriter)
	assert.Equal(t, 0, eng.ingestCount())
	assert.False(t, locker.Held())
}

func TestRun_DryRun(t *testing.T) {
	layout := newTestWorkspace(t, 6)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.DryRun = true

	receipt, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, receipt.DryRun)
	assert.Equal(t, 0, eng.ingestCount())
	assert.Equal(t, 0, eng.commits)

	// No checkpoint, no receipts: nothing was mutated.
	_, err = os.Stat(layout.CheckpointFile())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(layout.ReceiptsFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, locker.Held())
}

func TestRun_DryRunResetDoesNotReset(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.Mode = ModeResetAndRebuild
	opts.DryRun = true

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, eng.resets)
}

func TestRun_CommitFailureDoesNotAdvanceCheckpoint(t *testing.T) {
	layout := newTestWorkspace(t, 12)
	eng := &fakeEngine{failCommitAt: 2}
	locker := lock.NewMemoryLock()

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), testOptions())
	require.Error(t, err)
	assert.False(t, locker.Held())

	cp, err := LoadCheckpoint(layout.CheckpointFile())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.CompletedBatchIndex)
	assert.Equal(t, 5, cp.ProcessedFileCount)
}

func TestRun_ResumeSkipsCompletedBatches(t *testing.T) {
	layout := newTestWorkspace(t, 12)

	first := &fakeEngine{failCommitAt: 2}
	locker := lock.NewMemoryLock()
	_, err := newTestPipeline(layout, first, locker).Run(context.Background(), testOptions())
	require.Error(t, err)

	second := &fakeEngine{}
	opts := testOptions()
	opts.Resume = true
	receipt, err := newTestPipeline(layout, second, locker).Run(context.Background(), opts)
	require.NoError(t, err)

	// Batch 0 (files 0-4) was committed in the first run and is never
	// re-ingested; the resume covers the remaining 7 files.
	assert.Equal(t, 7, receipt.FilesProcessed)
	assert.Equal(t, 7, second.ingestCount())
	for _, source := range second.ingested {
		assert.NotContains(t, []string{"note-00.txt", "note-01.txt", "note-02.txt", "note-03.txt", "note-04.txt"}, source)
	}
}

func TestRun_FingerprintMismatchFailsClosed(t *testing.T) {
	layout := newTestWorkspace(t, 12)

	first := &fakeEngine{failCommitAt: 2}
	locker := lock.NewMemoryLock()
	_, err := newTestPipeline(layout, first, locker).Run(context.Background(), testOptions())
	require.Error(t, err)

	// Growing a file changes its size and therefore the fingerprint.
	require.NoError(t, os.WriteFile(filepath.Join(layout.Root, "note-07.txt"), []byte("changed content, different length"), 0644))

	second := &fakeEngine{}
	opts := testOptions()
	opts.Resume = true
	_, err = newTestPipeline(layout, second, locker).Run(context.Background(), opts)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
	assert.Equal(t, 0, second.ingestCount())
	assert.False(t, locker.Held())
}

func TestRun_ExplicitRestartAfterMismatch(t *testing.T) {
	layout := newTestWorkspace(t, 12)

	first := &fakeEngine{failCommitAt: 2}
	locker := lock.NewMemoryLock()
	_, err := newTestPipeline(layout, first, locker).Run(context.Background(), testOptions())
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(layout.Root, "note-07.txt"), []byte("changed content, different length"), 0644))

	second := &fakeEngine{}
	opts := testOptions()
	opts.Resume = true
	opts.Restart = true
	receipt, err := newTestPipeline(layout, second, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 12, receipt.FilesProcessed)
	assert.Equal(t, 12, second.ingestCount())
}

func TestRun_CancelledContext(t *testing.T) {
	layout := newTestWorkspace(t, 6)
	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(layout, eng, locker).Run(ctx, testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, eng.commits)
	assert.False(t, locker.Held())
}

func TestRun_OversizedFileSkipped(t *testing.T) {
	layout := newTestWorkspace(t, 3)
	big := make([]byte, 128)
	require.NoError(t, os.WriteFile(filepath.Join(layout.Root, "zz-big.txt"), big, 0644))

	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()

	opts := testOptions()
	opts.MaxSize = 64

	receipt, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.FilesProcessed)
	assert.Equal(t, 1, receipt.FilesSkipped)
	require.Len(t, receipt.Errors, 1)
	assert.Equal(t, "zz-big.txt", receipt.Errors[0].Path)
}

func TestRun_UnknownMode(t *testing.T) {
	layout := newTestWorkspace(t, 1)
	eng := &fakeEngine{}

	opts := testOptions()
	opts.Mode = "defragment"

	_, err := newTestPipeline(layout, eng, lock.NewMemoryLock()).Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRun_UnreadableFileSkippedInReindexMode(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root")
	}

	layout := newTestWorkspace(t, 3)
	bad := filepath.Join(layout.Root, "note-00.txt")
	require.NoError(t, os.Chmod(bad, 0000))
	t.Cleanup(func() { os.Chmod(bad, 0644) })

	eng := &fakeEngine{}
	receipt, err := newTestPipeline(layout, eng, lock.NewMemoryLock()).Run(context.Background(), testOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.FilesProcessed)
	assert.Equal(t, 1, receipt.FilesSkipped)
	require.Len(t, receipt.Errors, 1)
}

func TestRun_UnreadableFileFatalInResetMode(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root")
	}

	layout := newTestWorkspace(t, 3)
	bad := filepath.Join(layout.Root, "note-00.txt")
	require.NoError(t, os.Chmod(bad, 0000))
	t.Cleanup(func() { os.Chmod(bad, 0644) })

	eng := &fakeEngine{}
	locker := lock.NewMemoryLock()
	opts := testOptions()
	opts.Mode = ModeResetAndRebuild
	opts.Force = true

	_, err := newTestPipeline(layout, eng, locker).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, 0, eng.commits)
	assert.False(t, locker.Held())
}
