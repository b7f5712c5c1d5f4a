// Package openai provides an Executor for OpenAI and OpenAI-compatible servers
// such as LM Studio.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/providers"
)

const backend = "openai"

// Provider implements providers.Executor through the go-openai client.
type Provider struct {
	client   *goopenai.Client
	endpoint providers.Endpoint
	timeout  time.Duration
}

// New builds a Provider. An empty endpoint URL targets api.openai.com; any
// other URL is used as the API base (for example http://localhost:1234/v1).
func New(endpoint providers.Endpoint) (*Provider, error) {
	if strings.TrimSpace(endpoint.Model) == "" {
		return nil, errors.New("openai: model is required")
	}
	cfg := goopenai.DefaultConfig(endpoint.APIKey)
	if url := strings.TrimRight(strings.TrimSpace(endpoint.URL), "/"); url != "" {
		cfg.BaseURL = url
	} else if endpoint.APIKey == "" {
		return nil, errors.New("openai: api key is required for the hosted API")
	}
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Provider{
		client:   goopenai.NewClientWithConfig(cfg),
		endpoint: endpoint,
		timeout:  timeout,
	}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.endpoint.Model }

// Complete returns the model output for prompt with the endpoint defaults.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	return providers.Complete(ctx, p, prompt)
}

// Generate sends prompt as a single user message.
func (p *Provider) Generate(ctx context.Context, prompt string, params providers.GenerationParams) (providers.Generation, error) {
	params = p.endpoint.Defaults.Merge(params)
	req := buildRequest(p.endpoint.Model, prompt, params)

	hostID := p.endpoint.HostLabel("api.openai.com")
	logging.LogRequest(logging.DirectionOut, hostID, p.endpoint.Model, "chat", req)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return providers.Generation{}, classify(err)
	}
	logging.LogRequest(logging.DirectionIn, hostID, p.endpoint.Model, "chat", resp)
	if len(resp.Choices) == 0 {
		return providers.Generation{}, fmt.Errorf("openai: response contained no choices")
	}

	model := resp.Model
	if model == "" {
		model = p.endpoint.Model
	}
	return providers.Generation{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Elapsed:          time.Since(start),
	}, nil
}

func buildRequest(model, prompt string, params providers.GenerationParams) goopenai.ChatCompletionRequest {
	var messages []goopenai.ChatCompletionMessage
	if s := strings.TrimSpace(params.SystemPrompt); s != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: s})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})

	req := goopenai.ChatCompletionRequest{Model: model, Messages: messages}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.Seed != nil {
		seed := int(*params.Seed)
		req.Seed = &seed
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	if params.JSONMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return &providers.TransientError{Backend: backend, Err: err}
		}
		return fmt.Errorf("openai: %w", err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500) {
		return &providers.TransientError{Backend: backend, Err: err}
	}
	return providers.ClassifyTransport(backend, err)
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}
