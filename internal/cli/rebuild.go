package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramdhan/mnemo/pkg/integrity"
	"github.com/ramdhan/mnemo/pkg/lock"
	"github.com/ramdhan/mnemo/pkg/rebuild"
)

var (
	rebuildMode      string
	rebuildForce     bool
	rebuildDryRun    bool
	rebuildResume    bool
	rebuildRestart   bool
	rebuildBatchSize int
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <workspace>",
	Short: "Rebuild the derived store from durable source files",
	Long: `Rebuild drives the knowledge-store engine through batched ingest and
commit cycles, with a persisted checkpoint between batches.

In reindex-only mode existing derived data is preserved. In
reset-and-rebuild mode the derived store is destroyed first; this
requires --force.`,
	Args: cobra.ExactArgs(1),
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildMode, "mode", string(rebuild.ModeReindexOnly), "rebuild mode (reindex-only, reset-and-rebuild)")
	rebuildCmd.Flags().BoolVar(&rebuildForce, "force", false, "confirm a destructive reset-and-rebuild")
	rebuildCmd.Flags().BoolVar(&rebuildDryRun, "dry-run", false, "enumerate and report without changing anything")
	rebuildCmd.Flags().BoolVar(&rebuildResume, "resume", false, "resume from the last checkpoint if present")
	rebuildCmd.Flags().BoolVar(&rebuildRestart, "restart", false, "with --resume, restart from scratch when inputs changed")
	rebuildCmd.Flags().IntVar(&rebuildBatchSize, "batch-size", 0, "files per commit cycle (default from config)")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	workspacePath, err := requireWorkspaceArg(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(workspacePath, true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := rebuild.Options{
		Mode:       rebuild.Mode(rebuildMode),
		Force:      rebuildForce,
		DryRun:     rebuildDryRun,
		Resume:     rebuildResume,
		Restart:    rebuildRestart,
		BatchSize:  rt.cfg.Rebuild.BatchSize,
		Extension:  rt.cfg.Rebuild.SourceExtension,
		MaxSize:    rt.cfg.Rebuild.MaxFileSize,
		Collection: rt.cfg.Rebuild.Collection,
		Thresholds: integrity.Thresholds{
			MinRatio:   rt.cfg.Integrity.MinRatio,
			NoiseFloor: rt.cfg.Integrity.NoiseFloor,
		},
	}
	if rebuildBatchSize > 0 {
		opts.BatchSize = rebuildBatchSize
	}

	pipeline := rebuild.New(rt.layout, rt.engine, lock.NewFileLock(rt.layout.LockFile()), rt.journal.Logger())
	receipt, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	if receipt.DryRun {
		fmt.Fprintf(os.Stdout, "dry run: mode=%s workspace=%s (no changes made)\n", receipt.Mode, rt.layout.Root)
		return nil
	}

	fmt.Fprintf(os.Stdout, "run %s complete: mode=%s processed=%d skipped=%d healthy=%v\n",
		receipt.RunID, receipt.Mode, receipt.FilesProcessed, receipt.FilesSkipped, receipt.FinalIntegrity.Healthy)
	if receipt.FinalIntegrity.Warning != "" {
		fmt.Fprintf(os.Stdout, "warning: %s\n", receipt.FinalIntegrity.Warning)
	}
	return nil
}
