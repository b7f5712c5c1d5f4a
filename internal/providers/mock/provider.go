// Package mock provides a deterministic Executor for offline runs and tests.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/edgeprompt/internal/providers"
)

// Responder computes the reply for one call.
type Responder func(prompt string, params providers.GenerationParams) (string, error)

// Call is a recorded invocation.
type Call struct {
	Prompt string
	Params providers.GenerationParams
}

// Provider answers prompts without a model. With no scripted replies it
// derives a stable response from a hash of the prompt.
type Provider struct {
	model   string
	latency time.Duration

	mu        sync.Mutex
	scripted  []reply
	responder Responder
	calls     []Call
}

type reply struct {
	text string
	err  error
}

// Option configures a Provider.
type Option func(*Provider)

// WithResponses queues replies returned in order before falling back to the
// default behaviour.
func WithResponses(texts ...string) Option {
	return func(p *Provider) {
		for _, t := range texts {
			p.scripted = append(p.scripted, reply{text: t})
		}
	}
}

// WithError queues a failing call.
func WithError(err error) Option {
	return func(p *Provider) { p.scripted = append(p.scripted, reply{err: err}) }
}

// WithResponder replaces the default behaviour.
func WithResponder(r Responder) Option {
	return func(p *Provider) { p.responder = r }
}

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// New returns a mock executor for model.
func New(model string, opts ...Option) *Provider {
	p := &Provider{model: model}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Complete returns the reply for prompt.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, p, prompt)
}

// Generate returns the next scripted reply, the responder's reply, or the
// hash-derived default.
func (p *Provider) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	start := time.Now()
	if p.latency > 0 {
		select {
		case <-ctx.Done():
			return providers.Generation{}, ctx.Err()
		case <-time.After(p.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return providers.Generation{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{Prompt: prompt, Params: params})
	var (
		next      *reply
		responder = p.responder
	)
	if len(p.scripted) > 0 {
		r := p.scripted[0]
		p.scripted = p.scripted[1:]
		next = &r
	}
	p.mu.Unlock()

	var (
		text string
		err  error
	)
	switch {
	case next != nil:
		text, err = next.text, next.err
	case responder != nil:
		text, err = responder(prompt, params)
	default:
		text = p.defaultReply(prompt, params)
	}
	if err != nil {
		return providers.Generation{}, err
	}
	return providers.Generation{
		Text:             text,
		Model:            p.model,
		PromptTokens:     len(strings.Fields(prompt)),
		CompletionTokens: len(strings.Fields(text)),
		Elapsed:          time.Since(start),
	}, nil
}

func (p *Provider) defaultReply(prompt string, params providers.GenerationParams) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.model))
	_, _ = h.Write([]byte(prompt))
	sum := h.Sum32()

	if params.JSONMode {
		out, _ := json.Marshal(map[string]any{
			"passed":   sum%3 != 0,
			"score":    5 + int(sum%6),
			"feedback": fmt.Sprintf("Mock feedback from %s.", p.model),
		})
		return string(out)
	}
	return fmt.Sprintf("MOCK RESPONSE from %s (%08x): This simulates a model response to a %d word prompt.",
		p.model, sum, len(strings.Fields(prompt)))
}

// Calls returns a copy of every recorded call.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error { return nil }
