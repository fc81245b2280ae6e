package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ramdhan/mnemo/pkg/integrity"
	"github.com/ramdhan/mnemo/pkg/lock"
	"github.com/ramdhan/mnemo/pkg/rebuild"
	"github.com/ramdhan/mnemo/pkg/workspace"
)

var (
	watchDebounce time.Duration
	watchSchedule string
)

var watchCmd = &cobra.Command{
	Use:   "watch <workspace>",
	Short: "Run the background reindex service",
	Long: `Watch keeps a workspace's derived store in sync: it watches the source
tree and runs a non-destructive reindex pass after changes settle, and
optionally on a cron schedule. While running it maintains the liveness
marker that makes concurrent maintenance runs abort.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "settle time after a file change before reindexing")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "optional cron expression for periodic full reindex")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	workspacePath, err := requireWorkspaceArg(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(workspacePath, true)
	if err != nil {
		return err
	}
	defer rt.close()

	log := rt.journal.Logger()

	if pid, live := lock.LivePID(rt.layout.PIDFile()); live {
		log.Error().Int("pid", pid).Msg("Another watch service is already running")
		return rebuild.ErrConcurrentWriter
	}
	if err := lock.WritePIDFile(rt.layout.PIDFile()); err != nil {
		return err
	}
	defer lock.RemovePIDFile(rt.layout.PIDFile())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watchTree(watcher, rt.layout); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	requestPass := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	var scheduler *cron.Cron
	if watchSchedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(watchSchedule, requestPass); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Str("schedule", watchSchedule).Msg("Periodic reindex scheduled")
	}

	ext := strings.ToLower(rt.cfg.Rebuild.SourceExtension)
	var timer *time.Timer
	log.Info().Str("workspace", rt.layout.Root).Msg("Watch service started")

	// Initial pass brings a stale workspace up to date on startup.
	requestPass()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watch service stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New directories must be watched as they appear; a failed
				// add means that subtree's changes go unobserved.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.Error().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
					}
					continue
				}
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ext) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				log.Debug().Str("file", filepath.Base(event.Name)).Str("op", event.Op.String()).Msg("Source change detected")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, requestPass)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-trigger:
			if err := runWatchPass(ctx, rt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Reindex pass failed")
			}
		}
	}
}

// runWatchPass performs one non-destructive reindex. The maintenance lock
// is honored per pass; a pass that loses the lock to an operator-run
// maintenance command is skipped, not raced.
func runWatchPass(ctx context.Context, rt *runtime) error {
	pipeline := rebuild.New(rt.layout, rt.engine, lock.NewFileLock(rt.layout.LockFile()), rt.journal.Logger())
	_, err := pipeline.Run(ctx, rebuild.Options{
		Mode:       rebuild.ModeReindexOnly,
		BatchSize:  rt.cfg.Rebuild.BatchSize,
		Extension:  rt.cfg.Rebuild.SourceExtension,
		MaxSize:    rt.cfg.Rebuild.MaxFileSize,
		Collection: rt.cfg.Rebuild.Collection,
		Thresholds: integrity.Thresholds{
			MinRatio:   rt.cfg.Integrity.MinRatio,
			NoiseFloor: rt.cfg.Integrity.NoiseFloor,
		},
	})
	if errors.Is(err, rebuild.ErrLockHeld) {
		log := rt.journal.Logger()
		log.Warn().Msg("Maintenance lock held, skipping reindex pass")
		return nil
	}
	return err
}

// watchTree adds the workspace root and every subdirectory outside the
// state directory to the watcher.
func watchTree(watcher *fsnotify.Watcher, l *workspace.Layout) error {
	return filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == l.StateDir() {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
}
