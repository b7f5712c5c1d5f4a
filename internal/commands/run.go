package edgeprompt

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/results"
	"github.com/mwiater/edgeprompt/internal/runner"
	"github.com/spf13/cobra"
)

var runCheckModels bool

// runCmd sweeps a suite: every test case against every hardware profile and
// edge model, four runs per combination.
var runCmd = &cobra.Command{
	Use:   "run [suite]",
	Short: "Run the cloud and edge comparison for a test suite",
	Long: `Run the four-run comparison (cloud direct, cloud structured, edge direct,
edge structured) for every test case, hardware profile and edge model in the
suite. Records are written under the output directory as they complete.`,
	Args: cobra.MaximumNArgs(1),
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

		suite, err := loadRunnableSuite(cfg, path)
		if err != nil {
			return err
		}

		if runCheckModels && !cfg.DryRun {
			if err := checkSuiteModels(cmd, cfg, suite); err != nil {
				return err
			}
		}

		recorder := metrics.NewRecorder()
		execs, err := runner.BuildExecutors(cfg, suite, recorder)
		if err != nil {
			return err
		}
		defer func() {
			if err := execs.Close(); err != nil {
				logging.LogWarning("closing executors: %v", err)
			}
		}()

		store, err := results.NewStore(cfg.OutputDirPath(), suite.ID)
		if err != nil {
			return err
		}

		orch, err := runner.New(suite, execs, store, runner.Options{
			Workers:        cfg.WorkerCount(),
			SampleInterval: cfg.SampleInterval(),
			Sampler:        metrics.DefaultSampler(),
			Recorder:       recorder,
			Scoring:        evaluation.Scoring{OutputScale: cfg.OutputScale()},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Running suite %q (%d test cases, %d profiles, %d edge models)\n\n",
			suite.ID, len(suite.TestCases), len(suite.HardwareProfiles), len(suite.Models.Edge))

		summary, runErr := orch.Run(ctx)
		if err := recorder.WriteTextfile(store.MetricsPath()); err != nil {
			logging.LogWarning("writing metrics: %v", err)
		}

		printSummary(out, summary)
		if records, err := results.ReadRuns(store.Dir()); err == nil {
			printFailures(out, records)
		}
		fmt.Fprintf(out, "\nResults: %s\n", store.Dir())
		return runErr
	},
}

// loadRunnableSuite loads the suite at path and, outside a dry run, checks
// that every model it names is configured.
func loadRunnableSuite(cfg *appconfig.Config, path string) (*appconfig.Suite, error) {
	suite, err := appconfig.LoadSuite(path)
	if err != nil {
		return nil, err
	}
	if cfg.DryRun {
		return suite, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CheckSuite(suite); err != nil {
		return nil, err
	}
	return suite, nil
}

func init() {
	runCmd.Flags().BoolVar(&runCheckModels, "check-models", false, "verify every model is available on its host before running")
	rootCmd.AddCommand(runCmd)
}
