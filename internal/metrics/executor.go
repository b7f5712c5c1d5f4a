package metrics

import (
	"context"
	"time"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/providers"
)

// InstrumentedExecutor is a decorator that records latency and token usage
// of every call made through the wrapped Executor.
type InstrumentedExecutor struct {
	wrapped  providers.Executor
	recorder *Recorder
}

// NewInstrumentedExecutor wraps e so its calls are recorded in r.
func NewInstrumentedExecutor(e providers.Executor, r *Recorder) *InstrumentedExecutor {
	logging.LogEvent("[METRICS] Wrapping executor for model %s", e.Model())
	return &InstrumentedExecutor{wrapped: e, recorder: r}
}

// Unwrap returns the decorated executor.
func (x *InstrumentedExecutor) Unwrap() providers.Executor { return x.wrapped }

// Model passes the call through to the wrapped executor.
func (x *InstrumentedExecutor) Model() string { return x.wrapped.Model() }

// Complete records the call and passes it through.
func (x *InstrumentedExecutor) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, x, prompt)
}

// Generate records the call's latency and token counts.
func (x *InstrumentedExecutor) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	start := time.Now()
	gen, err := x.wrapped.Generate(ctx, prompt, params)
	if err != nil {
		return gen, err
	}
	elapsed := gen.Elapsed
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}
	model := gen.Model
	if model == "" {
		model = x.wrapped.Model()
	}
	x.recorder.ObserveGeneration(model, elapsed, gen.PromptTokens, gen.CompletionTokens)
	return gen, nil
}

// Close passes the call through to the wrapped executor.
func (x *InstrumentedExecutor) Close() error {
	return x.wrapped.Close()
}
