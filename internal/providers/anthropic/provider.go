// Package anthropic provides an Executor for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/providers"
)

const (
	backend          = "anthropic"
	apiVersion       = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com/v1/messages"
	defaultMaxTokens = 1024
)

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	StopSeqs    []string  `json:"stop_sequences,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Provider implements providers.Executor over raw HTTP.
type Provider struct {
	httpClient *http.Client
	endpoint   providers.Endpoint
	url        string
}

// New builds a Provider. The endpoint URL defaults to the public Messages API.
func New(endpoint providers.Endpoint) (*Provider, error) {
	if strings.TrimSpace(endpoint.APIKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if strings.TrimSpace(endpoint.Model) == "" {
		return nil, errors.New("anthropic: model is required")
	}
	url := strings.TrimSpace(endpoint.URL)
	if url == "" {
		url = defaultBaseURL
	}
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Provider{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		url:        url,
	}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.endpoint.Model }

// Complete returns the model output for prompt with the endpoint defaults.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, p, prompt)
}

// Generate sends prompt as a single user turn. The Messages API has no JSON
// mode, so JSONMode adds an instruction to the system prompt instead.
func (p *Provider) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	params = p.endpoint.Defaults.Merge(params)
	req := request{
		Model:       p.endpoint.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		System:      strings.TrimSpace(params.SystemPrompt),
		MaxTokens:   defaultMaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.JSONMode {
		req.System = strings.TrimSpace(req.System + "\nRespond with a single JSON object and nothing else.")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return providers.Generation{}, err
	}
	hostID := p.endpoint.HostLabel("api.anthropic.com")
	logging.LogRequest(logging.DirectionOut, hostID, p.endpoint.Model, "messages", body)

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return providers.Generation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.endpoint.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	logging.LogRequest(logging.DirectionIn, hostID, p.endpoint.Model, "messages", raw)
	if resp.StatusCode != http.StatusOK {
		return providers.Generation{}, providers.StatusError(backend, "/v1/messages", resp.Status, resp.StatusCode, raw)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return providers.Generation{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return providers.Generation{}, fmt.Errorf("anthropic: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	model := parsed.Model
	if model == "" {
		model = p.endpoint.Model
	}
	return providers.Generation{
		Text:             strings.TrimSpace(text.String()),
		Model:            model,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		Elapsed:          time.Since(start),
	}, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
