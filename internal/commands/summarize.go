package edgeprompt

import (
	"encoding/json"
	"fmt"

	"github.com/mwiater/edgeprompt/internal/results"
	"github.com/spf13/cobra"
)

var (
	summarizeWrite bool
	summarizeJSON  bool
)

// summarizeCmd rebuilds the summary of a results directory from its
// append-only run log. It also recovers the summary of an interrupted sweep.
var summarizeCmd = &cobra.Command{
	Use:   "summarize <results-dir>",
	Short: "Aggregate the run records of a results directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		records, err := results.ReadRuns(dir)
		if err != nil {
			return err
		}
		suiteID := ""
		if len(records) > 0 {
			suiteID = records[0].SuiteID
		}
		summary := results.Summarize(suiteID, records)

		if summarizeWrite {
			store, err := results.OpenStore(dir)
			if err != nil {
				return err
			}
			if err := store.LogSummary(summary); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if summarizeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		printSummary(out, summary)
		printFailures(out, records)
		if summarizeWrite {
			fmt.Fprintf(out, "\nWrote %s\n", results.SummaryFile)
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVarP(&summarizeWrite, "write", "w", false, "write the summary back to the results directory")
	summarizeCmd.Flags().BoolVar(&summarizeJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(summarizeCmd)
}
