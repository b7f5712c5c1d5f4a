package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder keeps pipeline counters and histograms in a private registry.
// All methods are safe on a nil Recorder.
type Recorder struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	stages        *prometheus.CounterVec
	parseFailures *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	generation    *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
}

// NewRecorder registers the pipeline metrics in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprompt_runs_total",
			Help: "Runs executed, by tier, method and final status.",
		}, []string{"tier", "method", "status"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprompt_stage_results_total",
			Help: "Validation stage outcomes.",
		}, []string{"stage", "outcome"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprompt_parse_failures_total",
			Help: "Model outputs that no extraction strategy could parse.",
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeprompt_run_duration_seconds",
			Help:    "Wall time of a run's generation and validation.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"tier", "method"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeprompt_generation_seconds",
			Help:    "Latency of individual model calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprompt_generated_tokens_total",
			Help: "Tokens reported by model backends.",
		}, []string{"model", "kind"}),
	}
	r.registry.MustRegister(r.runs, r.stages, r.parseFailures, r.runDuration, r.generation, r.tokens)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(tier, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(tier, method, status).Inc()
	r.runDuration.WithLabelValues(tier, method).Observe(d.Seconds())
}

// ObserveStage records a stage outcome such as "stage_passed".
func (r *Recorder) ObserveStage(stage, outcome string) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(stage, outcome).Inc()
}

// ObserveParseFailure records an unparseable stage output.
func (r *Recorder) ObserveParseFailure(stage string) {
	if r == nil {
		return
	}
	r.parseFailures.WithLabelValues(stage).Inc()
}

// ObserveGeneration records one model call.
func (r *Recorder) ObserveGeneration(model string, d time.Duration, promptTokens, completionTokens int) {
	if r == nil {
		return
	}
	r.generation.WithLabelValues(model).Observe(d.Seconds())
	if promptTokens > 0 {
		r.tokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		r.tokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// WriteTextfile writes the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
