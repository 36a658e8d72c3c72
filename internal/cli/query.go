package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"notesim/internal/domain"
)

var (
	queryText  string
	queryLimit int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find notes similar to free text",
	Long: `Embed a query and list the most similar notes. Without -q the query is
read from the terminal.

Examples:
  notesim query -q "distributed consensus"
  notesim query -q "weekly review" -k 10 --json`,
	RunE: runQuery,
}

var similarCmd = &cobra.Command{
	Use:   "similar <note>",
	Short: "Find notes similar to a note",
	Long: `List the notes most similar to the given note. The note is named by its
path relative to the vault and is never listed as similar to itself.

Examples:
  notesim similar journal/2024-03-01.md
  notesim similar ideas.md -k 3 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(similarCmd)
	similarCmd.Flags().IntVarP(&queryLimit, "limit", "k", 0, "number of results (default from config)")
	similarCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func resultLimit() int {
	if queryLimit > 0 {
		return queryLimit
	}
	return GetConfig().Query.Limit
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if queryJSON {
		results, err := a.query.QueryText(ctx, queryText, resultLimit())
		if err != nil {
			return err
		}
		return printJSON(results)
	}

	_, err = a.commands.QueryByText(ctx, queryText, resultLimit())
	return silence(err)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var key string
	if len(args) > 0 {
		var ok bool
		key, ok = noteKey(a, args[0])
		if !ok {
			return fmt.Errorf("%s is not inside the vault", args[0])
		}
	}

	ctx := cmd.Context()
	if queryJSON {
		if key == "" {
			return domain.ValidationError("find similar", "no active note")
		}
		note, err := a.vault.ReadNote(ctx, key)
		if err != nil {
			return err
		}
		results, err := a.query.SimilarTo(ctx, note, resultLimit())
		if err != nil {
			return err
		}
		return printJSON(results)
	}

	_, err = a.commands.FindSimilarToCurrent(ctx, key, resultLimit())
	return silence(err)
}

// noteKey accepts an absolute path or a vault-relative one.
func noteKey(a *app, arg string) (string, bool) {
	if filepath.IsAbs(arg) {
		return a.vault.KeyFor(arg)
	}
	return a.vault.KeyFor(filepath.Join(a.vault.Root(), arg))
}

func printJSON(results []domain.SimilarityResult) error {
	if results == nil {
		results = []domain.SimilarityResult{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
