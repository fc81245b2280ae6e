package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ramdhan/mnemo/pkg/engine"
	"github.com/ramdhan/mnemo/pkg/integrity"
	"github.com/ramdhan/mnemo/pkg/lock"
	"github.com/ramdhan/mnemo/pkg/workspace"
)

// Mode selects the rebuild strategy.
type Mode string

const (
	// ModeReindexOnly re-ingests source files without destroying existing
	// derived data. Safe to run without confirmation.
	ModeReindexOnly Mode = "reindex-only"
	// ModeResetAndRebuild destroys the derived store first, then rebuilds
	// it from source files. Requires explicit confirmation.
	ModeResetAndRebuild Mode = "reset-and-rebuild"
)

// DefaultBatchSize is the number of files ingested per commit cycle.
const DefaultBatchSize = 50

// Terminal conditions with dedicated exit codes. Everything else surfaces
// as a generic operation failure.
var (
	// ErrLockHeld means another maintenance operation is in progress.
	ErrLockHeld = errors.New("maintenance lock already held")
	// ErrConfirmationRequired means a destructive run was requested
	// without the explicit force flag.
	ErrConfirmationRequired = errors.New("destructive operation requires explicit confirmation")
	// ErrConcurrentWriter means an active background writer owns the
	// workspace.
	ErrConcurrentWriter = errors.New("concurrent writer detected")
	// ErrFingerprintMismatch means the input set changed since the last
	// checkpoint; resuming would silently skip or duplicate work.
	ErrFingerprintMismatch = errors.New("checkpoint fingerprint mismatch: inputs changed since last run")
)

// Options configures one pipeline run.
type Options struct {
	Mode       Mode
	Force      bool
	DryRun     bool
	Resume     bool
	Restart    bool
	BatchSize  int
	Extension  string
	MaxSize    int64
	Collection string
	Thresholds integrity.Thresholds
}

// Pipeline enumerates source files, fingerprints the input set, resumes or
// restarts from a persisted checkpoint, and drives the engine through
// batched ingest+commit cycles. Execution is single-threaded; the only
// concurrency concern is cross-process, handled by the maintenance lock and
// the liveness probe.
type Pipeline struct {
	layout *workspace.Layout
	engine engine.Engine
	locker lock.Locker
	logger zerolog.Logger
}

// New creates a pipeline for one workspace.
func New(layout *workspace.Layout, eng engine.Engine, locker lock.Locker, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		layout: layout,
		engine: eng,
		locker: locker,
		logger: logger,
	}
}

// Run executes the pipeline. The lock is released on every path once
// acquired; precondition failures return before any lock is taken.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Receipt, error) {
	if opts.Mode != ModeReindexOnly && opts.Mode != ModeResetAndRebuild {
		return nil, fmt.Errorf("unknown mode: %q", opts.Mode)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Collection == "" {
		opts.Collection = engine.DefaultCollection
	}
	if opts.Thresholds == (integrity.Thresholds{}) {
		opts.Thresholds = integrity.DefaultThresholds()
	}

	if opts.Mode == ModeResetAndRebuild && !opts.Force && !opts.DryRun {
		return nil, ErrConfirmationRequired
	}

	if pid, live := lock.LivePID(p.layout.PIDFile()); live {
		return nil, fmt.Errorf("%w: background writer pid %d", ErrConcurrentWriter, pid)
	}

	acquired, err := p.locker.Acquire(string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire maintenance lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	defer func() {
		if err := p.locker.Release(); err != nil {
			p.logger.Error().Err(err).Msg("Failed to release maintenance lock")
		}
	}()

	start := time.Now()
	receipt := &Receipt{
		RunID:     uuid.NewString(),
		Mode:      opts.Mode,
		DryRun:    opts.DryRun,
		StartedAt: start.UTC(),
	}

	p.logger.Info().
		Str("run_id", receipt.RunID).
		Str("mode", string(opts.Mode)).
		Bool("dry_run", opts.DryRun).
		Msg("Run started")

	if opts.Mode == ModeResetAndRebuild && !opts.DryRun {
		if err := p.engine.Reset(ctx, opts.Collection); err != nil {
			// Fail hard with no rebuild attempt: a half-reset store must
			// never be silently rebuilt over.
			p.logger.Error().Err(err).Msg("Reset failed, aborting before rebuild")
			return nil, fmt.Errorf("engine reset failed: %w", err)
		}
		// The reset destroyed the derived rows of every previously
		// committed batch; a checkpoint from before it would let a resume
		// skip exactly those batches.
		if err := RemoveCheckpoint(p.layout.CheckpointFile()); err != nil {
			return nil, err
		}
		p.logger.Info().Str("collection", opts.Collection).Msg("Derived store reset")
	}

	files, oversized, err := workspace.Scan(p.layout, workspace.ScanOptions{
		Extension:   opts.Extension,
		MaxFileSize: opts.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate inputs: %w", err)
	}
	for _, s := range oversized {
		p.logger.Warn().Str("file", s.RelPath).Str("reason", s.Reason).Msg("Input skipped")
		receipt.FilesSkipped++
		receipt.Errors = append(receipt.Errors, FileError{Path: s.RelPath, Reason: s.Reason})
	}

	fp := workspace.ComputeFingerprint(files)
	batches := batchFiles(files, opts.BatchSize)

	p.logger.Info().
		Int("files", len(files)).
		Int("batches", len(batches)).
		Str("fingerprint", string(fp)[:12]).
		Msg("Inputs enumerated")

	if opts.DryRun {
		receipt.FinalIntegrity = integrity.Evaluate(integrity.CountStores(p.layout), opts.Thresholds)
		receipt.DurationMS = time.Since(start).Milliseconds()
		p.logger.Info().
			Int("files", len(files)).
			Int("batches", len(batches)).
			Msg("Dry run complete, no changes made")
		return receipt, nil
	}

	cp, startBatch, err := p.resolveCheckpoint(opts, fp)
	if err != nil {
		return nil, err
	}
	if startBatch > 0 {
		p.logger.Info().
			Int("completed_batches", startBatch).
			Msg("Resuming from checkpoint")
	}

	for i := startBatch; i < len(batches); i++ {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation: the current batch is abandoned
			// without advancing the checkpoint; the deferred release
			// still runs.
			p.logger.Warn().Int("batch", i).Msg("Run cancelled")
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		processed, err := p.runBatch(ctx, opts, batches[i], receipt)
		if err != nil {
			return nil, err
		}

		cp.CompletedBatchIndex = i + 1
		cp.ProcessedFileCount += processed
		cp.UpdatedAt = time.Now().UTC()
		if err := cp.Save(p.layout.CheckpointFile()); err != nil {
			return nil, err
		}
		receipt.FilesProcessed += processed

		p.logger.Info().
			Int("batch", i+1).
			Int("batches", len(batches)).
			Int("files", processed).
			Msg("Batch committed")
	}

	if err := RemoveCheckpoint(p.layout.CheckpointFile()); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to remove completed checkpoint")
	}

	receipt.FinalIntegrity = integrity.Evaluate(integrity.CountStores(p.layout), opts.Thresholds)
	receipt.DurationMS = time.Since(start).Milliseconds()

	if !receipt.FinalIntegrity.Healthy {
		p.logger.Warn().Str("warning", receipt.FinalIntegrity.Warning).Msg("Integrity check unhealthy after run")
	}
	if err := receipt.Append(p.layout.ReceiptsFile()); err != nil {
		p.logger.Error().Err(err).Msg("Failed to append receipt")
	}

	p.logger.Info().
		Str("run_id", receipt.RunID).
		Int("files_processed", receipt.FilesProcessed).
		Int("files_skipped", receipt.FilesSkipped).
		Int64("duration_ms", receipt.DurationMS).
		Bool("healthy", receipt.FinalIntegrity.Healthy).
		Msg("Run complete")

	return receipt, nil
}

// resolveCheckpoint decides where the batch loop starts. A fingerprint
// mismatch fails closed unless an explicit restart was requested; a restart
// or a non-resume run begins from a fresh checkpoint.
func (p *Pipeline) resolveCheckpoint(opts Options, fp workspace.Fingerprint) (*Checkpoint, int, error) {
	if opts.Resume {
		existing, err := LoadCheckpoint(p.layout.CheckpointFile())
		if err != nil {
			return nil, 0, err
		}
		if existing != nil {
			if existing.InputFingerprint != fp {
				if !opts.Restart {
					p.logger.Error().
						Str("checkpoint", string(existing.InputFingerprint)[:12]).
						Str("current", string(fp)[:12]).
						Msg("Input fingerprint changed since checkpoint")
					return nil, 0, ErrFingerprintMismatch
				}
				p.logger.Warn().Msg("Fingerprint mismatch, restarting from scratch as requested")
			} else {
				return existing, existing.CompletedBatchIndex, nil
			}
		}
	}

	now := time.Now().UTC()
	return &Checkpoint{
		InputFingerprint: fp,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, 0, nil
}

// runBatch ingests one batch and commits it. Read failures fail closed in
// destructive mode and are recorded-and-skipped otherwise. A commit failure
// leaves the whole batch unacknowledged so a resume retries it.
func (p *Pipeline) runBatch(ctx context.Context, opts Options, batch []workspace.InputFile, receipt *Receipt) (int, error) {
	processed := 0
	for _, f := range batch {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			if opts.Mode == ModeResetAndRebuild {
				// The derived store is already gone; a corrupt input must
				// not silently produce a partial rebuild of the only copy.
				return 0, fmt.Errorf("failed to read %s during destructive rebuild: %w", f.RelPath, err)
			}
			p.logger.Warn().Str("file", f.RelPath).Err(err).Msg("Input unreadable, skipped")
			receipt.FilesSkipped++
			receipt.Errors = append(receipt.Errors, FileError{Path: f.RelPath, Reason: err.Error()})
			continue
		}

		if err := p.engine.Ingest(ctx, opts.Collection, f.RelPath, string(content)); err != nil {
			return 0, fmt.Errorf("failed to ingest %s: %w", f.RelPath, err)
		}
		p.logger.Debug().Str("file", f.RelPath).Msg("Ingested")
		processed++
	}

	if err := p.engine.Commit(ctx, opts.Collection); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return processed, nil
}

// batchFiles splits files into fixed-size batches, preserving order.
func batchFiles(files []workspace.InputFile, size int) [][]workspace.InputFile {
	var batches [][]workspace.InputFile
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
