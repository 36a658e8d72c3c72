package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"notesim/internal/domain"
	"notesim/internal/usecase"
)

var (
	recomputeYes bool
	statusList   bool
)

// progressWriter keeps progress off stdout, which carries results.
var progressWriter io.Writer = os.Stderr

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Embed notes modified since their last sync",
	Long: `Compare every note's modification time with the one stored alongside its
vector and re-embed the notes that are newer or missing.

Examples:
  notesim refresh
  notesim refresh -d ~/vault`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-embed every note",
	Long: `Re-embed every note of the vault regardless of modification time. Use this
after switching embedding models. Asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: runRecompute,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection and sync status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(recomputeCmd)
	recomputeCmd.Flags().BoolVarP(&recomputeYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusList, "list", false, "list the stale notes")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.sync.SetProgress(newProgress("Refreshing"))
	report, err := a.commands.RefreshStale(cmd.Context())
	printFailures(report)
	return silence(err)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.terminal.AssumeYes = recomputeYes
	a.sync.SetProgress(newProgress("Recomputing"))
	report, err := a.commands.RecomputeAll(cmd.Context())
	printFailures(report)
	return silence(err)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	stale, total, err := a.sync.Stale(ctx)
	if err != nil {
		return err
	}

	st, collection := a.manager.Target()
	info, err := st.Describe(ctx, collection)
	if err != nil {
		return err
	}

	fmt.Printf("Backend:     %s (%s)\n", st.Name(), a.cfg.Store.Address)
	fmt.Printf("Collection:  %s\n", info.Name)
	fmt.Printf("Dimension:   %d\n", info.Dimension)
	fmt.Printf("Records:     %d\n", info.Count)
	fmt.Printf("Model:       %s\n", a.embedder.ModelName())
	fmt.Printf("Notes:       %d\n", total)
	fmt.Printf("Stale:       %d\n", len(stale))
	if statusList {
		for _, n := range stale {
			fmt.Printf("  %s\n", n.Path)
		}
	}
	return nil
}

// newProgress renders sync progress as a bar on stderr.
func newProgress(label string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	start := time.Now()
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintf(progressWriter, "\n")
				}),
				progressbar.OptionSetWriter(progressWriter),
			)
		}
		bar.Set(done)
		if done > 0 && done < total {
			eta := time.Duration(float64(time.Since(start)) / float64(done) * float64(total-done))
			bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
		}
	}
}

func printFailures(report domain.SyncReport) {
	for _, e := range report.Errors {
		fmt.Fprintf(progressWriter, "  failed: %s: %v\n", e.Key, e.Err)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
