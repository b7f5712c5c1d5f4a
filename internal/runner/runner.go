// Package runner sweeps a test suite through the four-run cloud/edge
// comparison and persists every run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/environment"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/extract"
	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/results"
	"github.com/mwiater/edgeprompt/internal/template"
)

// defaultMaxAttempts allows one retry of a run that failed transiently.
const defaultMaxAttempts = 2

// Store persists run records and the suite summary.
type Store interface {
	LogRun(record results.RunRecord) error
	LogSummary(summary results.Summary) error
}

// ProfileManager applies a hardware profile for the duration of a run.
type ProfileManager interface {
	Acquire(ctx context.Context, p environment.Profile) (*environment.Scope, error)
}

// Options tune an Orchestrator. Zero values select the defaults.
type Options struct {
	Workers        int
	SampleInterval time.Duration
	// Sampler reads process CPU and memory. Nil records duration only.
	Sampler     metrics.Sampler
	Recorder    *metrics.Recorder
	Scoring     evaluation.Scoring
	MaxAttempts int
	Profiles    ProfileManager
}

// Orchestrator runs a suite. Combinations run concurrently up to
// Options.Workers; the four runs of one combination run in order.
type Orchestrator struct {
	suite    *appconfig.Suite
	execs    Executors
	store    Store
	opts     Options
	engine   *evaluation.Engine
	renderer *template.Engine
	requests *requestCache
}

// New validates its inputs and returns an Orchestrator for suite.
func New(suite *appconfig.Suite, execs Executors, store Store, opts Options) (*Orchestrator, error) {
	if suite == nil {
		return nil, errors.New("runner: nil suite")
	}
	if store == nil {
		return nil, errors.New("runner: nil result store")
	}
	if execs.Cloud == nil {
		return nil, fmt.Errorf("runner: no executor for cloud model %q", suite.Models.Cloud)
	}
	for _, id := range suite.Models.Edge {
		if execs.Edge[id] == nil {
			return nil, fmt.Errorf("runner: no executor for edge model %q", id)
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Profiles == nil {
		opts.Profiles = environment.NewManager()
	}

	o := &Orchestrator{
		suite:    suite,
		execs:    execs,
		store:    store,
		opts:     opts,
		renderer: template.NewEngine(),
		requests: newRequestCache(),
	}

	engineOpts := evaluation.Options{
		Scoring:  opts.Scoring,
		Observer: o.observe,
		Renderer: o.renderer,
	}
	if t, ok := suite.Template(suite.RunParameters.ProxyTemplateID); ok {
		engineOpts.ProxyTemplate = &t
	}
	if t, ok := suite.Template(suite.RunParameters.RubricTemplateID); ok {
		engineOpts.RubricTemplate = &t
	}
	o.engine = evaluation.NewEngine(suite.Templates, engineOpts)
	return o, nil
}

// Engine returns the evaluation engine built from the suite's templates.
func (o *Orchestrator) Engine() *evaluation.Engine { return o.engine }

// Run sweeps every (test case, hardware profile, edge model) combination and
// writes the suite summary. Per-run failures are recorded, not returned; a
// *results.PersistenceError stops the sweep and is returned.
func (o *Orchestrator) Run(ctx context.Context) (results.Summary, error) {
	var combos []combination
	for _, tc := range o.suite.TestCases {
		for _, p := range o.suite.HardwareProfiles {
			for _, edge := range o.suite.Models.Edge {
				combos = append(combos, combination{testCase: tc, profile: p, edgeID: edge})
			}
		}
	}
	logging.LogEvent("suite %s: %d combinations, %d workers", o.suite.ID, len(combos), o.opts.Workers)

	perCombo := make([][]results.RunRecord, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, c := range combos {
		g.Go(func() error {
			records, err := o.RunCombination(gctx, c.testCase, c.profile, c.edgeID)
			perCombo[i] = records
			return err
		})
	}
	sweepErr := g.Wait()

	var all []results.RunRecord
	for _, records := range perCombo {
		all = append(all, records...)
	}
	summary := results.Summarize(o.suite.ID, all)
	if sweepErr != nil {
		return summary, sweepErr
	}
	if err := o.store.LogSummary(summary); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	logging.LogEvent("suite %s finished: %d records", o.suite.ID, len(all))
	return summary, nil
}

func (o *Orchestrator) observe(ev evaluation.Event) {
	r := o.opts.Recorder
	switch ev.State {
	case evaluation.StateStagePassed, evaluation.StateStageFailed:
		r.ObserveStage(ev.StageID, string(ev.State))
	case evaluation.StateStageFailedFatal:
		var perr *extract.ValidationParseError
		if errors.As(ev.Err, &perr) {
			r.ObserveParseFailure(ev.StageID)
		}
		r.ObserveStage(ev.StageID, string(ev.State))
	}
}

// withRetry runs fn up to attempts times while it fails transiently.
func withRetry(ctx context.Context, attempts int, label string, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !providers.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if attempt < attempts {
			logging.LogWarning("%s: transient failure, retrying: %v", label, err)
		}
	}
	return err
}
