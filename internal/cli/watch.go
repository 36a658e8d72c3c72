package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"notesim/config"
	"notesim/internal/adapter/fs"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the vector store in sync while notes change",
	Long: `Refresh stale notes, then watch the vault and re-embed notes as they are
written. Deleted notes are removed from the store. Changes to the config file
are picked up without a restart; a new store connection is used from the next
sync on.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "wait for writes to settle before syncing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.commands.RefreshStale(ctx); err != nil {
		return silence(err)
	}

	if cfgPath != "" {
		cw, err := config.NewWatcher(cfgPath, config.WithWatchLogger(logger))
		if err != nil {
			return err
		}
		cw.OnChange(a.reconfigure)
		go func() {
			if err := cw.Run(ctx); err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", a.vault.Root())
	vw := fs.NewVaultWatcher(a.vault, watchDebounce, logger)
	return vw.Run(ctx, func(keys []string) {
		syncBatch(ctx, a, keys)
	})
}

func syncBatch(ctx context.Context, a *app, keys []string) {
	report, err := a.sync.SyncKeys(ctx, keys)
	if err != nil {
		a.logger.Error("sync failed", "error", err)
		return
	}
	for _, e := range report.Errors {
		a.logger.Warn("note not synced", "key", e.Key, "error", e.Err)
	}
	if report.Processed > 0 || report.Removed > 0 {
		fmt.Fprintf(os.Stderr, "Synced %d notes, removed %d.\n", report.Processed, report.Removed)
	}
}
