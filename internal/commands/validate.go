package edgeprompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/providerfactory"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/pipeline"
	"github.com/spf13/cobra"
)

var (
	validateQuestion   string
	validateAnswer     string
	validateAnswerFile string
	validateRubric     string
	validateModel      string
	validateJSON       bool
)

// validateCmd scores a single answer with the built-in rubric validator.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score one answer against a rubric with a configured model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}
		answer := validateAnswer
		if validateAnswerFile != "" {
			data, err := os.ReadFile(validateAnswerFile)
			if err != nil {
				return fmt.Errorf("read answer: %w", err)
			}
			answer = string(data)
		}
		if validateQuestion == "" || answer == "" {
			return errors.New("--question and --answer (or --answer-file) are required")
		}

		exec, err := validationExecutor(cfg, validateModel)
		if err != nil {
			return err
		}
		defer exec.Close()

		res, err := pipeline.New(nil, exec).Validate(cmd.Context(), validateQuestion, answer, validateRubric)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if validateJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printValidation(out, res)
		return nil
	},
}

// validationExecutor resolves the executor for id. With no id the first
// cloud-tier model is used.
func validationExecutor(cfg *appconfig.Config, id string) (providers.Executor, error) {
	if id == "" {
		for _, m := range cfg.Models {
			if m.Tier == appconfig.TierCloud {
				id = m.ID
				break
			}
		}
	}
	m, ok := cfg.ModelByID(id)
	if cfg.DryRun {
		if !ok {
			m = appconfig.Model{ID: id, Model: "dry-run"}
		}
		return providerfactory.NewDryRunExecutor(m, nil), nil
	}
	if id == "" {
		return nil, errors.New("no model given and no cloud model configured")
	}
	if !ok {
		return nil, fmt.Errorf("model %q is not configured", id)
	}
	return providerfactory.NewExecutor(m, cfg, nil)
}

func init() {
	validateCmd.Flags().StringVarP(&validateQuestion, "question", "q", "", "question the answer responds to")
	validateCmd.Flags().StringVarP(&validateAnswer, "answer", "a", "", "answer to score")
	validateCmd.Flags().StringVar(&validateAnswerFile, "answer-file", "", "read the answer from a file")
	validateCmd.Flags().StringVarP(&validateRubric, "rubric", "r", "", "criteria the answer is scored on")
	validateCmd.Flags().StringVarP(&validateModel, "model", "m", "", "configured model id to validate with")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(validateCmd)
}
