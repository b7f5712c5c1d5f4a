package edgeprompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mwiater/edgeprompt/pipeline"
	"github.com/spf13/cobra"
)

var (
	checkContent  string
	checkFile     string
	checkMinWords int
	checkMaxWords int
	checkForbid   []string
	checkRequire  []string
	checkJSON     bool
)

// checkCmd runs the deterministic constraint checks without a model.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check content against word-count, forbidden-term and topic constraints",
	Long: `Check content against constraints without calling a model. Content is read
from --content, --file, or standard input when neither is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := checkInput(cmd)
		if err != nil {
			return err
		}

		var c pipeline.Constraint
		if cmd.Flags().Changed("min-words") {
			c.MinWords = pipeline.IntPtr(checkMinWords)
		}
		if cmd.Flags().Changed("max-words") {
			c.MaxWords = pipeline.IntPtr(checkMaxWords)
		}
		c.ForbiddenTerms = checkForbid
		c.RequiredTopics = checkRequire
		if c.MinWords != nil && c.MaxWords != nil && *c.MinWords > *c.MaxWords {
			return errors.New("--min-words must not exceed --max-words")
		}

		res := pipeline.CheckConstraints(content, []pipeline.Constraint{c})
		out := cmd.OutOrStdout()
		if checkJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			printConstraints(out, res)
		}
		if !res.Passed {
			cmd.SilenceUsage = true
			return fmt.Errorf("%d constraint violation(s)", len(res.Violations))
		}
		return nil
	},
}

func checkInput(cmd *cobra.Command) (string, error) {
	switch {
	case checkContent != "":
		return checkContent, nil
	case checkFile != "":
		data, err := os.ReadFile(checkFile)
		if err != nil {
			return "", fmt.Errorf("read content: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func init() {
	checkCmd.Flags().StringVar(&checkContent, "content", "", "content to check")
	checkCmd.Flags().StringVarP(&checkFile, "file", "f", "", "read content from a file")
	checkCmd.Flags().IntVar(&checkMinWords, "min-words", 0, "minimum word count")
	checkCmd.Flags().IntVar(&checkMaxWords, "max-words", 0, "maximum word count")
	checkCmd.Flags().StringSliceVar(&checkForbid, "forbidden", nil, "terms that must not appear (repeatable or comma separated)")
	checkCmd.Flags().StringSliceVar(&checkRequire, "required", nil, "topics that must be covered (repeatable or comma separated)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(checkCmd)
}
