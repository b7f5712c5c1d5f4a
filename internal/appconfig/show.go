package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &fallback
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Suite:           %s\n", cfg.Suite)
	fmt.Fprintf(out, "  Output Dir:      %s\n", cfg.OutputDirPath())
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Dry Run:         %v\n", cfg.DryRun)
	fmt.Fprintf(out, "  Workers:         %d\n", cfg.WorkerCount())
	fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Sample Interval: %s\n", cfg.SampleInterval())
	fmt.Fprintf(out, "  Score Scale:     %g\n", cfg.OutputScale())

	if len(cfg.Models) == 0 {
		fmt.Fprintln(out, "  Models:          (none)")
		return
	}
	fmt.Fprintln(out, "  Models:")
	for _, m := range cfg.Models {
		tier := m.Tier
		if tier == "" {
			tier = "-"
		}
		fmt.Fprintf(out, "    - %s: %s/%s (tier %s, profile %s)\n", m.ID, NormalizeProvider(m.Provider), m.Model, tier, ProfileName(normalizeProfileName(m.ParameterProfile)))
		if cfg.Debug {
			pp.Fprintln(out, m.GenerationDefaults())
		}
	}
}
