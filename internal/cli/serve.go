package cli

import (
	"github.com/spf13/cobra"
	"notesim/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve similarity tools to MCP clients over stdio",
	Long: `Start an MCP server on stdin/stdout exposing find_similar, query_notes and
refresh_index. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcp.NewServer("notesim", Version, a.query, a.sync, a.vault, a.cfg.Query.Limit, logger)
	return s.ServeStdio()
}
