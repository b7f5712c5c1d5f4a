package runner

import (
	"errors"
	"fmt"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/providerfactory"
	"github.com/mwiater/edgeprompt/internal/providers"
)

// Executors are the model backends a suite runs against.
type Executors struct {
	Cloud providers.Executor
	// Edge is keyed by the suite's edge model IDs.
	Edge map[string]providers.Executor
}

// BuildExecutors creates the cloud and edge executors the suite names. In a
// dry run every executor is the offline mock and unconfigured IDs are allowed.
func BuildExecutors(cfg *appconfig.Config, suite *appconfig.Suite, recorder *metrics.Recorder) (Executors, error) {
	if cfg == nil || suite == nil {
		return Executors{}, errors.New("runner: config and suite are required")
	}
	build := func(id string) (providers.Executor, error) {
		m, ok := cfg.ModelByID(id)
		if cfg.DryRun {
			if !ok {
				m = appconfig.Model{ID: id}
			}
			return providerfactory.NewDryRunExecutor(m, recorder), nil
		}
		if !ok {
			return nil, fmt.Errorf("model %q is not configured", id)
		}
		return providerfactory.NewExecutor(m, cfg, recorder)
	}

	execs := Executors{Edge: make(map[string]providers.Executor, len(suite.Models.Edge))}
	cloud, err := build(suite.Models.Cloud)
	if err != nil {
		return Executors{}, err
	}
	execs.Cloud = cloud
	for _, id := range suite.Models.Edge {
		exec, err := build(id)
		if err != nil {
			_ = execs.Close()
			return Executors{}, err
		}
		execs.Edge[id] = exec
	}
	return execs, nil
}

// Close closes every executor.
func (e Executors) Close() error {
	var errs []error
	if e.Cloud != nil {
		errs = append(errs, e.Cloud.Close())
	}
	for _, exec := range e.Edge {
		errs = append(errs, exec.Close())
	}
	return errors.Join(errs...)
}
