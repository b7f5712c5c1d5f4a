package edgeprompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/models"
	"github.com/spf13/cobra"
)

// modelsCmd groups commands that talk to the configured model hosts.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the models served by configured hosts",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the models each configured host serves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil || len(cfg.Models) == 0 {
			return errors.New("no models configured")
		}
		out := cmd.OutOrStdout()
		for _, m := range cfg.Models {
			host, err := models.NewHost(m, cfg.RequestTimeout())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s (%s)\n", headerColor(m.ID+":"), m.URL, host.Type())
			listed, err := host.ListModels(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "  %s\n", dimColor(err.Error()))
				continue
			}
			for _, info := range listed {
				if info.Status != "" {
					fmt.Fprintf(out, "  - %s (%s)\n", info.Name, strings.ToUpper(info.Status))
				} else {
					fmt.Fprintf(out, "  - %s\n", info.Name)
				}
			}
		}
		return nil
	},
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check [suite]",
	Short: "Check that every model a suite uses is available on its host",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("configuration not loaded")
		}
		path := cfg.Suite
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no suite given: pass a path or set --suite")
		}
		suite, err := appconfig.LoadSuite(path)
		if err != nil {
			return err
		}
		if err := cfg.CheckSuite(suite); err != nil {
			return err
		}
		return checkSuiteModels(cmd, cfg, suite)
	},
}

// checkSuiteModels reports the availability of the suite's models and fails
// when any checked model is missing.
func checkSuiteModels(cmd *cobra.Command, cfg *appconfig.Config, suite *appconfig.Suite) error {
	var ms []appconfig.Model
	for _, id := range append([]string{suite.Models.Cloud}, suite.Models.Edge...) {
		if m, ok := cfg.ModelByID(id); ok {
			ms = append(ms, m)
		}
	}
	res := models.CheckAvailability(cmd.Context(), ms, cfg.RequestTimeout())
	printAvailability(cmd.OutOrStdout(), res)
	if missing := models.Missing(res); len(missing) > 0 {
		return fmt.Errorf("models not available on their hosts: %s", strings.Join(missing, ", "))
	}
	return nil
}

func printAvailability(out io.Writer, res []models.Availability) {
	for _, a := range res {
		switch {
		case !a.Checked:
			fmt.Fprintf(out, "  %-20s %s  %s\n", a.ModelID, dimColor("SKIP"), a.Error)
		case a.Available:
			fmt.Fprintf(out, "  %-20s %s  %s %s\n", a.ModelID, passColor("OK  "), a.Model, dimColor(a.Status))
		default:
			fmt.Fprintf(out, "  %-20s %s  %s not found on %s host\n", a.ModelID, failColor("MISS"), a.Model, a.Host)
		}
	}
}

func init() {
	modelsCmd.AddCommand(modelsListCmd, modelsCheckCmd)
	rootCmd.AddCommand(modelsCmd)
}
