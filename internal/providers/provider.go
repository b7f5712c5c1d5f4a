// internal/providers/provider.go

// Package providers defines the executor abstraction the pipeline uses to talk
// to language models, regardless of which backend serves them.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// GenerationParams controls a single generation call. Nil fields fall back to
// the backend's defaults.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" mapstructure:"top_p"`
	TopK        *int     `json:"top_k,omitempty" mapstructure:"top_k"`
	MaxTokens   *int     `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Seed        *int64   `json:"seed,omitempty" mapstructure:"seed"`
	Stop        []string `json:"stop,omitempty" mapstructure:"stop"`
	// Threads caps backend CPU threads where the backend supports it.
	Threads *int `json:"threads,omitempty" mapstructure:"threads"`
	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode     bool   `json:"json_mode,omitempty" mapstructure:"json_mode"`
	SystemPrompt string `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
}

// Merge returns p with every field set in override applied on top.
func (p GenerationParams) Merge(override GenerationParams) GenerationParams {
	out := p
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK != nil {
		out.TopK = override.TopK
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if len(override.Stop) > 0 {
		out.Stop = override.Stop
	}
	if override.Threads != nil {
		out.Threads = override.Threads
	}
	if override.JSONMode {
		out.JSONMode = true
	}
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	return out
}

// Generation is the result of one model call.
type Generation struct {
	Text             string        `json:"text"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Executor is implemented by every model backend.
type Executor interface {
	// Complete returns the model's text for prompt using default parameters.
	Complete(ctx context.Context, prompt string) (string, error)
	// Generate runs prompt with params and reports token usage and latency.
	Generate(ctx context.Context, prompt string, params GenerationParams) (Generation, error)
	// Model names the model this executor calls.
	Model() string
	// Close releases any resources held by the executor.
	Close() error
}

// Complete adapts Generate to the Complete signature for backends that have
// no separate completion path.
func Complete(ctx context.Context, e Executor, prompt string) (string, error) {
	g, err := e.Generate(ctx, prompt, GenerationParams{})
	if err != nil {
		return "", err
	}
	return g.Text, nil
}

// TransientError marks a failure worth retrying: connection errors, timeouts
// and 5xx responses.
type TransientError struct {
	Backend string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Backend, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ClassifyTransport wraps transport-level failures as transient. Caller
// cancellation is returned unchanged.
func ClassifyTransport(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) ||
		strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return &TransientError{Backend: backend, Err: err}
	}
	return err
}

// StatusError builds the error for a non-2xx response; 429 and 5xx are transient.
func StatusError(backend, endpoint, status string, code int, body []byte) error {
	err := fmt.Errorf("%s: %s returned %s: %s", backend, endpoint, status, strings.TrimSpace(string(body)))
	if code == 429 || code >= 500 {
		return &TransientError{Backend: backend, Err: err}
	}
	return err
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Endpoint describes where and how to reach a model.
type Endpoint struct {
	// Name identifies the host in logs.
	Name    string
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
	// Defaults are applied under every call's params.
	Defaults GenerationParams
	Debug    bool
}

// HostLabel prefers the endpoint name, then its URL, then fallback.
func (e Endpoint) HostLabel(fallback string) string {
	if name := strings.TrimSpace(e.Name); name != "" {
		return name
	}
	if url := strings.TrimSpace(e.URL); url != "" {
		return url
	}
	return fallback
}
