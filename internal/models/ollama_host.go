// internal/models/ollama_host.go
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mwiater/edgeprompt/internal/logging"
)

// OllamaHost lists models on an Ollama server.
type OllamaHost struct {
	name   string
	url    string
	client *http.Client
}

// Name returns the configured model ID the host was built for.
func (h *OllamaHost) Name() string { return h.name }

// Type returns "ollama".
func (h *OllamaHost) Type() string { return "ollama" }

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the pulled models, marking those currently in memory.
func (h *OllamaHost) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var tags ollamaTags
	if err := h.getJSON(ctx, "/api/tags", &tags); err != nil {
		return nil, err
	}
	running, err := h.runningModels(ctx)
	if err != nil {
		logging.LogWarning("ollama %s: could not read running models: %v", h.name, err)
	}

	out := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		info := ModelInfo{Name: m.Name, Status: "unloaded"}
		if _, ok := running[m.Name]; ok {
			info.Status = "loaded"
		}
		out = append(out, info)
	}
	return out, nil
}

// runningModels queries /api/ps.
func (h *OllamaHost) runningModels(ctx context.Context) (map[string]struct{}, error) {
	var ps ollamaTags
	if err := h.getJSON(ctx, "/api/ps", &ps); err != nil {
		return nil, err
	}
	running := make(map[string]struct{}, len(ps.Models))
	for _, m := range ps.Models {
		running[m.Name] = struct{}{}
	}
	return running, nil
}

func (h *OllamaHost) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+path, nil)
	if err != nil {
		return err
	}
	logging.LogRequest(logging.DirectionOut, h.url, "", "list", map[string]string{"method": http.MethodGet, "url": h.url + path})
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not list models: Ollama is not accessible at %s", h.url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body from %s: %v", h.url, err)
	}
	logging.LogRequest(logging.DirectionIn, h.url, "", "list", body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("could not list models: %s", strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("error parsing %s from %s: %v", path, h.url, err)
	}
	return nil
}
