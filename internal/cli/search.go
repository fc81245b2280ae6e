package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search <workspace> <query>",
	Short: "Enumerate committed records by keyword relevance",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(args[0], true)
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.engine.Search(cmd.Context(), rt.cfg.Rebuild.Collection, args[1], searchTopK)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(os.Stdout, "no results")
		return nil
	}
	for i, content := range results {
		fmt.Fprintf(os.Stdout, "--- result %d ---\n%s\n", i+1, content)
	}
	return nil
}
