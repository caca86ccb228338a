package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adalundhe/recall/core/rank"
	"github.com/adalundhe/recall/core/store"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Retrieve patterns similar to a task context",
	RunE:  runRetrieve,
}

var (
	retrieveTaskType   string
	retrieveLanguage   string
	retrieveFramework  string
	retrieveComplexity string
	retrieveScope      string
	retrieveTopK       int
	retrieveJSON       bool
	retrieveMarkReuse  bool
)

func init() {
	rootCmd.AddCommand(retrieveCmd)

	retrieveCmd.Flags().StringVar(&retrieveTaskType, "task-type", "", "Task type to match (e.g., refactoring)")
	retrieveCmd.Flags().StringVar(&retrieveLanguage, "language", "", "Language context")
	retrieveCmd.Flags().StringVar(&retrieveFramework, "framework", "", "Framework context")
	retrieveCmd.Flags().StringVar(&retrieveComplexity, "complexity", "", "Complexity context (trivial,low,medium,high,complex)")
	retrieveCmd.Flags().StringVar(&retrieveScope, "scope", "", "Scope context")
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top", "k", rank.DefaultTopK, "Number of results")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "Emit JSON instead of a table")
	retrieveCmd.Flags().BoolVar(&retrieveMarkReuse, "mark-reuse", false, "Increment reuse count of the top result")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	q := rank.Query{
		TaskType: retrieveTaskType,
		Context:  map[string]string{},
	}
	for key, val := range map[string]string{
		store.ContextLanguage:   retrieveLanguage,
		store.ContextFramework:  retrieveFramework,
		store.ContextComplexity: retrieveComplexity,
		store.ContextScope:      retrieveScope,
	} {
		if val != "" {
			q.Context[key] = val
		}
	}

	results, err := client.RetrievePatterns(cmd.Context(), q, retrieveTopK)
	if err != nil {
		return err
	}

	if retrieveMarkReuse && len(results) > 0 {
		if err := client.IncrementReuse(cmd.Context(), results[0].Pattern.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: mark reuse: %v\n", err)
		}
	}

	printRecoveryNotice(client)

	if retrieveJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK TYPE\tSCORE\tCONFIDENCE\tQUALITY\tREUSE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.2f\t%.0f\t%d\n",
			r.Pattern.ID, r.Pattern.TaskType, r.Score, r.Confidence,
			r.Pattern.Outcome.QualityScore, r.Pattern.ReuseCount)
	}
	return w.Flush()
}
