package edgeprompt

import (
	"fmt"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// showCmd groups read-only inspection commands.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configuration and reference documents",
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		fallback := appconfig.Config{
			Suite:     viper.GetString("suite"),
			OutputDir: viper.GetString("outputDir"),
			LogFile:   viper.GetString("logFile"),
			Debug:     viper.GetBool("debug"),
			DryRun:    viper.GetBool("dryRun"),
			Workers:   viper.GetInt("workers"),
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), GetConfig(), fallback)
	},
}

var showSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema test suite documents are checked against",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), string(appconfig.SuiteSchema()))
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
	showCmd.AddCommand(showSchemaCmd)
	rootCmd.AddCommand(showCmd)
}
