package edgeprompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/template"
	"github.com/spf13/cobra"
)

var (
	templateVars     []string
	templateTestCase string
)

// templateCmd groups commands that inspect the templates of a suite.
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect and render suite templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the templates defined in the suite",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		suite, err := configuredSuite()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range suite.Templates {
			typ := string(t.Type)
			if typ == "" {
				typ = "-"
			}
			fmt.Fprintf(out, "%-24s %-20s %s\n", t.ID, typ, strings.Join(template.ExtractVariables(t), ", "))
		}
		return nil
	},
}

var templateVarsCmd = &cobra.Command{
	Use:   "vars <template-id>",
	Short: "List the placeholders a template expects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		suite, err := configuredSuite()
		if err != nil {
			return err
		}
		t, ok := suite.Template(args[0])
		if !ok {
			return fmt.Errorf("template %q not found in suite %q", args[0], suite.ID)
		}
		out := cmd.OutOrStdout()
		for _, name := range template.ExtractVariables(t) {
			marker := ""
			if _, ok := t.Defaults[name]; ok {
				marker = fmt.Sprintf(" (default %q)", t.Defaults[name])
			}
			fmt.Fprintf(out, "%s%s\n", name, marker)
		}
		return nil
	},
}

var templateRenderCmd = &cobra.Command{
	Use:   "render <template-id>",
	Short: "Render a template with --var values and optional test case constraints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		suite, err := configuredSuite()
		if err != nil {
			return err
		}
		t, ok := suite.Template(args[0])
		if !ok {
			return fmt.Errorf("template %q not found in suite %q", args[0], suite.ID)
		}

		vars := map[string]any{}
		var constraints []constraint.Constraint
		if templateTestCase != "" {
			tc, ok := findTestCase(suite, templateTestCase)
			if !ok {
				return fmt.Errorf("test case %q not found in suite %q", templateTestCase, suite.ID)
			}
			for k, v := range tc.Variables {
				vars[k] = v
			}
			vars["topic"] = tc.Topic
			constraints = tc.Constraints
		}
		for _, kv := range templateVars {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid --var %q: want name=value", kv)
			}
			vars[k] = v
		}

		r, err := template.NewEngine().Render(t, vars, constraints)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, template.Compact(r.Text))
		for _, d := range r.Diagnostics {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", d)
		}
		return nil
	},
}

// configuredSuite loads the suite named by --suite or the config file.
func configuredSuite() (*appconfig.Suite, error) {
	cfg := GetConfig()
	if cfg == nil || cfg.Suite == "" {
		return nil, errors.New("no suite configured: set --suite")
	}
	return appconfig.LoadSuite(cfg.Suite)
}

func findTestCase(s *appconfig.Suite, id string) (appconfig.TestCase, bool) {
	for _, tc := range s.TestCases {
		if tc.ID == id {
			return tc, true
		}
	}
	return appconfig.TestCase{}, false
}

func init() {
	templateRenderCmd.Flags().StringArrayVar(&templateVars, "var", nil, "placeholder value as name=value (repeatable)")
	templateRenderCmd.Flags().StringVar(&templateTestCase, "test-case", "", "seed variables and constraints from a test case")
	templateCmd.AddCommand(templateListCmd, templateVarsCmd, templateRenderCmd)
	rootCmd.AddCommand(templateCmd)
}
