package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"notesim/config"
	"notesim/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfgFile  string
	cfg      *config.Config
	cfgPath  string
	rootDir  string
	logLevel string
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "notesim",
	Short: "Find notes similar to a note or a query",
	Long: `notesim embeds the Markdown notes of a vault into a vector store and
finds the notes most similar to a given note or free-text query.

Example usage:
  notesim refresh                   # Embed notes changed since the last sync
  notesim similar projects/plan.md  # Notes similar to a note
  notesim query -q "graph storage"  # Notes similar to a query
  notesim watch                     # Keep the store in sync while editing`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfgPath = cfgFile
		} else if found, ok := config.FindConfig(rootDir); ok {
			cfgPath = found
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		// stdout carries command output and the MCP protocol
		logger = telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		shutdown, err = telemetry.InitMetrics(cfg.Telemetry.Metrics, Version, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			return shutdown(cmd.Context())
		}
		return nil
	},
}

func Execute() {
	err := fang.Execute(context.Background(), rootCmd,
		fang.WithVersion(Version),
		fang.WithErrorHandler(handleError),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	if err != nil {
		os.Exit(1)
	}
}

// handleError prints errors the notifier has not shown yet.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var r reported
	if errors.As(err, &r) {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// reported marks an error the notifier already showed to the user.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }

func silence(err error) error {
	if err == nil {
		return nil
	}
	return reported{err}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./notesim.yaml or ./.notesim/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "vault directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.Version = Version
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
