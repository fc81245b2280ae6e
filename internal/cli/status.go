package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramdhan/mnemo/pkg/integrity"
	"github.com/ramdhan/mnemo/pkg/lock"
	"github.com/ramdhan/mnemo/pkg/migrate"
	"github.com/ramdhan/mnemo/pkg/rebuild"
)

var statusCmd = &cobra.Command{
	Use:   "status <workspace>",
	Short: "Report workspace store health and maintenance state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	workspacePath, err := requireWorkspaceArg(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(workspacePath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	counts := integrity.CountStores(rt.layout)
	status := integrity.Evaluate(counts, integrity.Thresholds{
		MinRatio:   rt.cfg.Integrity.MinRatio,
		NoiseFloor: rt.cfg.Integrity.NoiseFloor,
	})

	fmt.Fprintf(os.Stdout, "workspace: %s\n", rt.layout.Root)
	fmt.Fprintf(os.Stdout, "primary records: %s\n", formatCount(counts.Primary))
	fmt.Fprintf(os.Stdout, "derived rows:    %s\n", formatCount(counts.Derived))
	fmt.Fprintf(os.Stdout, "healthy: %v\n", status.Healthy)
	if status.Warning != "" {
		fmt.Fprintf(os.Stdout, "warning: %s\n", status.Warning)
	}

	holder, err := lock.NewFileLock(rt.layout.LockFile()).Holder()
	if err != nil {
		return err
	}
	if holder != nil {
		fmt.Fprintf(os.Stdout, "maintenance lock: held by pid %d (%s) since %s\n",
			holder.OwnerPID, holder.Operation, holder.AcquiredAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintln(os.Stdout, "maintenance lock: free")
	}

	cp, err := rebuild.LoadCheckpoint(rt.layout.CheckpointFile())
	if err != nil {
		return err
	}
	if cp != nil {
		fmt.Fprintf(os.Stdout, "checkpoint: %d batches completed, %d files processed (updated %s)\n",
			cp.CompletedBatchIndex, cp.ProcessedFileCount, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintln(os.Stdout, "checkpoint: none")
	}

	marker, err := migrate.ReadMarker(rt.layout.MarkerFile())
	if err != nil {
		return err
	}
	if marker != nil {
		fmt.Fprintf(os.Stdout, "migration marker: version %s (%s)\n", marker.Version, marker.Reason)
	} else {
		fmt.Fprintln(os.Stdout, "migration marker: none")
	}

	if pid, live := lock.LivePID(rt.layout.PIDFile()); live {
		fmt.Fprintf(os.Stdout, "background writer: pid %d active\n", pid)
	} else {
		fmt.Fprintln(os.Stdout, "background writer: none")
	}

	return nil
}

func formatCount(n int64) string {
	if n < 0 {
		return "unreadable"
	}
	return fmt.Sprintf("%d", n)
}
