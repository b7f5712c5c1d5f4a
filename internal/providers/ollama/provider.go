// internal/providers/ollama/provider.go
// Package ollama provides an Executor backed by Ollama's /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/providers"
)

const backend = "ollama"

// Provider implements providers.Executor against one Ollama host and model.
type Provider struct {
	client   *http.Client
	endpoint providers.Endpoint
	timeout  time.Duration
}

// New constructs a Provider for the given endpoint.
func New(endpoint providers.Endpoint) *Provider {
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	endpoint.URL = strings.TrimRight(endpoint.URL, "/")
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		endpoint: endpoint,
		timeout:  timeout,
	}
}

type generateResponse struct {
	Model              string `json:"model"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	TotalDuration      int64  `json:"total_duration"`
	LoadDuration       int64  `json:"load_duration"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalCount          int    `json:"eval_count"`
	EvalDuration       int64  `json:"eval_duration"`
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.endpoint.Model }

// Complete returns the model output for prompt with the endpoint defaults.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, p, prompt)
}

// Generate issues a non-streaming /api/generate request.
func (p *Provider) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	params = p.endpoint.Defaults.Merge(params)
	payload := map[string]any{
		"model":   p.endpoint.Model,
		"prompt":  strings.TrimSpace(prompt),
		"options": buildOptions(params),
		"stream":  false,
	}
	if strings.TrimSpace(params.SystemPrompt) != "" {
		payload["system"] = params.SystemPrompt
	}
	if params.JSONMode {
		payload["format"] = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.Generation{}, err
	}

	hostID := p.endpoint.HostLabel("ollama-host")
	logging.LogRequest(logging.DirectionOut, hostID, p.endpoint.Model, "generate", body)

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return providers.Generation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	logging.LogRequest(logging.DirectionIn, hostID, p.endpoint.Model, "generate", respBody)

	if resp.StatusCode != http.StatusOK {
		return providers.Generation{}, providers.StatusError(backend, "/api/generate", resp.Status, resp.StatusCode, respBody)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return providers.Generation{}, fmt.Errorf("ollama: decode /api/generate response: %w", err)
	}

	model := result.Model
	if model == "" {
		model = p.endpoint.Model
	}
	elapsed := time.Since(start)
	if result.TotalDuration > 0 {
		elapsed = time.Duration(result.TotalDuration)
	}
	return providers.Generation{
		Text:             strings.TrimSpace(result.Response),
		Model:            model,
		PromptTokens:     result.PromptEvalCount,
		CompletionTokens: result.EvalCount,
		Elapsed:          elapsed,
	}, nil
}

func buildOptions(params providers.GenerationParams) map[string]any {
	options := map[string]any{}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if params.Seed != nil {
		options["seed"] = *params.Seed
	}
	if params.Threads != nil && *params.Threads > 0 {
		options["num_thread"] = *params.Threads
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
