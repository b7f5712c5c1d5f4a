// internal/models/openai_host.go
package models

import (
	"context"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAIHost lists models through an OpenAI-compatible /models endpoint.
type OpenAIHost struct {
	name   string
	client *goopenai.Client
}

func newOpenAIHost(name, baseURL, apiKey string, httpClient *http.Client) *OpenAIHost {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpClient
	return &OpenAIHost{name: name, client: goopenai.NewClientWithConfig(cfg)}
}

// Name returns the configured model ID the host was built for.
func (h *OpenAIHost) Name() string { return h.name }

// Type returns "openai".
func (h *OpenAIHost) Type() string { return "openai" }

// ListModels returns every model the API exposes. The endpoint does not
// report load state.
func (h *OpenAIHost) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := h.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list models: %w", err)
	}
	out := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, ModelInfo{Name: m.ID})
	}
	return out, nil
}
