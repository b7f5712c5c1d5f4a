// internal/providers/llamacpp/provider.go
// Package llamacpp provides an Executor backed by llama.cpp's OpenAI-compatible HTTP API.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/providers"
)

const backend = "llama.cpp"

// Provider implements providers.Executor using llama.cpp HTTP APIs.
type Provider struct {
	client   *http.Client
	endpoint providers.Endpoint
	timeout  time.Duration

	readyMu sync.Mutex
	ready   bool
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

// Model returns the configured model name.
func (p *Provider) Model() string { return p.endpoint.Model }

// Complete returns the model output for prompt with the endpoint defaults.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, p, prompt)
}

// Generate issues a non-streaming chat completion with prompt as the user turn.
func (p *Provider) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	if strings.TrimSpace(p.endpoint.Model) != "" {
		if err := p.ensureReady(ctx); err != nil {
			return providers.Generation{}, err
		}
	}

	params = p.endpoint.Defaults.Merge(params)
	messages := []chatMessage{}
	if s := strings.TrimSpace(params.SystemPrompt); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	messages = append(messages, chatMessage{Role: "user", Content: strings.TrimSpace(prompt)})

	payload := map[string]any{
		"model":    p.endpoint.Model,
		"messages": messages,
		"stream":   false,
	}
	applyParameters(payload, params)
	if params.JSONMode {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providers.Generation{}, err
	}
	hostID := p.endpoint.HostLabel("llama.cpp-host")
	logging.LogRequest(logging.DirectionOut, hostID, p.endpoint.Model, "chat", body)

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint.URL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return providers.Generation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Generation{}, providers.ClassifyTransport(backend, err)
	}
	logging.LogRequest(logging.DirectionIn, hostID, p.endpoint.Model, "chat", raw)
	if resp.StatusCode != http.StatusOK {
		return providers.Generation{}, providers.StatusError(backend, "/v1/chat/completions", resp.Status, resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return providers.Generation{}, fmt.Errorf("llama.cpp: decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return providers.Generation{}, fmt.Errorf("llama.cpp: chat response contained no choices")
	}

	model := parsed.Model
	if model == "" {
		model = p.endpoint.Model
	}
	return providers.Generation{
		Text:             strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Elapsed:          time.Since(start),
	}, nil
}

// ensureReady loads the model once. A failed load is retried on the next call.
func (p *Provider) ensureReady(ctx context.Context) error {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	if p.ready {
		return nil
	}
	if err := p.ensureModelReady(ctx); err != nil {
		return err
	}
	p.ready = true
	return nil
}

// ensureModelReady asks a llama.cpp router to load the model. Servers without
// router endpoints load on first request.
func (p *Provider) ensureModelReady(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"model": p.endpoint.Model})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hostID := p.endpoint.HostLabel("llama.cpp-host")
	logging.LogRequest(logging.DirectionOut, hostID, p.endpoint.Model, "load", body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.URL+"/models/load", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.ClassifyTransport(backend, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logging.LogRequest(logging.DirectionIn, hostID, p.endpoint.Model, "load", respBody)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if resp.StatusCode >= 400 && !isAlreadyLoadedError(resp.StatusCode, respBody) {
		return providers.StatusError(backend, "/models/load", resp.Status, resp.StatusCode, respBody)
	}
	return p.waitForModelLoaded(ctx)
}

func (p *Provider) waitForModelLoaded(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		loaded, err := p.isModelLoaded(ctx)
		if err != nil {
			return err
		}
		if loaded {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("llama.cpp: model %s did not load before timeout", p.endpoint.Model)
		case <-ticker.C:
		}
	}
}

func (p *Provider) isModelLoaded(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint.URL+"/models", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, providers.ClassifyTransport(backend, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("llama.cpp: /models returned %s", resp.Status)
	}

	var listing struct {
		Data []llamaModel `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return false, fmt.Errorf("llama.cpp: decode /models: %w", err)
	}
	for _, item := range listing.Data {
		if strings.EqualFold(strings.TrimSpace(item.ID), p.endpoint.Model) {
			return strings.EqualFold(item.Status.Value, "loaded"), nil
		}
	}
	return false, nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type llamaModel struct {
	ID     string      `json:"id"`
	Status statusField `json:"status"`
}

// statusField accepts both "loaded" and {"value":"loaded"}.
type statusField struct {
	Value string
}

func (s *statusField) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		s.Value = ""
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(data, &s.Value)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Value = obj.Value
	return nil
}

func isAlreadyLoadedError(statusCode int, body []byte) bool {
	if statusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), "already loaded")
}

func applyParameters(payload map[string]any, params providers.GenerationParams) {
	if params.TopK != nil {
		payload["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		payload["top_p"] = *params.TopP
	}
	if params.Temperature != nil {
		payload["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		payload["max_tokens"] = *params.MaxTokens
	}
	if params.Seed != nil {
		payload["seed"] = *params.Seed
	}
	if len(params.Stop) > 0 {
		payload["stop"] = params.Stop
	}
}
