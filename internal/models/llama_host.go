// internal/models/llama_host.go
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

// LlamaCppHost lists models on a llama.cpp server or router.
type LlamaCppHost struct {
	name   string
	url    string
	client *http.Client
}

// Name returns the configured model ID the host was built for.
func (h *LlamaCppHost) Name() string { return h.name }

// Type returns "llama.cpp".
func (h *LlamaCppHost) Type() string { return "llama.cpp" }

// ListModels returns the models the server reports on /models.
func (h *LlamaCppHost) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"/models", nil)
	if err != nil {
		return nil, err
	}
	logging.LogRequest(logging.DirectionOut, h.url, "", "list", map[string]string{"method": http.MethodGet, "url": h.url + "/models"})
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not list models: llama.cpp is not accessible at %s", h.url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body from %s: %v", h.url, err)
	}
	logging.LogRequest(logging.DirectionIn, h.url, "", "list", body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not list models: %s", strings.TrimSpace(string(body)))
	}

	models, err := parseLlamaModels(body)
	if err != nil {
		return nil, fmt.Errorf("%w from %s", err, h.url)
	}
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		if name := m.displayName(); name != "" {
			out = append(out, ModelInfo{Name: name, Status: strings.ToLower(strings.TrimSpace(m.Status.Value))})
		}
	}
	return out, nil
}

type llamaModel struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Model  string      `json:"model"`
	Path   string      `json:"path"`
	Status statusField `json:"status"`
}

func (m llamaModel) displayName() string {
	for _, v := range []string{m.ID, m.Name, m.Model, m.Path} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
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

// parseLlamaModels accepts the listing shapes different llama.cpp builds
// return: {"data":[...]}, {"models":[...]}, a bare array, or a name list.
func parseLlamaModels(body []byte) ([]llamaModel, error) {
	var wrapped struct {
		Data   []llamaModel `json:"data"`
		Models []llamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if len(wrapped.Models) > 0 {
			return wrapped.Models, nil
		}
		if len(wrapped.Data) > 0 {
			return wrapped.Data, nil
		}
	}

	var direct []llamaModel
	if err := json.Unmarshal(body, &direct); err == nil && len(direct) > 0 {
		return direct, nil
	}

	var names struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(body, &names); err == nil && len(names.Models) > 0 {
		out := make([]llamaModel, 0, len(names.Models))
		for _, name := range names.Models {
			out = append(out, llamaModel{Name: name})
		}
		return out, nil
	}

	return nil, fmt.Errorf("unrecognized /models response")
}
