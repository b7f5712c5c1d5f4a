// internal/models/models.go
// Package models lists the models served by configured hosts and checks that
// the models a suite needs are available before a sweep starts.
package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/edgeprompt/internal/appconfig"
)

// defaultRequestTimeout bounds a single listing request.
const defaultRequestTimeout = 30 * time.Second

// ErrListingUnsupported is returned by hosts that cannot enumerate models.
var ErrListingUnsupported = errors.New("model listing not supported")

// ModelInfo is one model a host reports.
type ModelInfo struct {
	Name string `json:"name"`
	// Status is the host's load state ("loaded", "loading", "unloaded"), or
	// empty when the host does not report one.
	Status string `json:"status,omitempty"`
}

// Host enumerates the models a backend serves.
type Host interface {
	Name() string
	Type() string
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// NewHost returns the host that serves m.
func NewHost(m appconfig.Model, timeout time.Duration) (Host, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(strings.TrimSpace(m.URL), "/")

	switch appconfig.NormalizeProvider(m.Provider) {
	case appconfig.ProviderOllama:
		return &OllamaHost{name: m.ID, url: url, client: client}, nil
	case appconfig.ProviderLlamaCpp:
		return &LlamaCppHost{name: m.ID, url: url, client: client}, nil
	case appconfig.ProviderOpenAI, appconfig.ProviderLMStudio:
		if url == "" && appconfig.NormalizeProvider(m.Provider) == appconfig.ProviderLMStudio {
			url = "http://localhost:1234/v1"
		}
		return newOpenAIHost(m.ID, url, m.APIKey(), client), nil
	case appconfig.ProviderAnthropic:
		return unsupportedHost{name: m.ID, typ: appconfig.ProviderAnthropic}, nil
	case appconfig.ProviderMock:
		return staticHost{name: m.ID, models: []string{m.Model}}, nil
	default:
		return nil, fmt.Errorf("model %q: unsupported provider %q", m.ID, m.Provider)
	}
}

// Availability is the result of looking for one configured model on its host.
type Availability struct {
	ModelID   string `json:"modelId"`
	Model     string `json:"model"`
	Host      string `json:"host"`
	Available bool   `json:"available"`
	// Checked is false when the host could not list its models.
	Checked bool   `json:"checked"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckAvailability looks up every model in ms on its host concurrently.
// Results keep the order of ms.
func CheckAvailability(ctx context.Context, ms []appconfig.Model, timeout time.Duration) []Availability {
	out := make([]Availability, len(ms))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range ms {
		g.Go(func() error {
			out[i] = checkOne(ctx, m, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func checkOne(ctx context.Context, m appconfig.Model, timeout time.Duration) Availability {
	a := Availability{ModelID: m.ID, Model: m.Model}
	host, err := NewHost(m, timeout)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.Host = host.Type()
	listed, err := host.ListModels(ctx)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.Checked = true
	for _, info := range listed {
		if sameModel(info.Name, m.Model) {
			a.Available = true
			a.Status = info.Status
			break
		}
	}
	return a
}

// sameModel matches names case-insensitively and treats an untagged Ollama
// name as ":latest".
func sameModel(listed, want string) bool {
	listed, want = strings.ToLower(strings.TrimSpace(listed)), strings.ToLower(strings.TrimSpace(want))
	if listed == want {
		return true
	}
	if !strings.Contains(want, ":") && listed == want+":latest" {
		return true
	}
	return !strings.Contains(listed, ":") && want == listed+":latest"
}

// Missing reports the checked models that were not found, sorted by ID.
func Missing(results []Availability) []string {
	var ids []string
	for _, a := range results {
		if a.Checked && !a.Available {
			ids = append(ids, a.ModelID)
		}
	}
	sort.Strings(ids)
	return ids
}

type unsupportedHost struct{ name, typ string }

func (h unsupportedHost) Name() string { return h.name }
func (h unsupportedHost) Type() string { return h.typ }
func (h unsupportedHost) ListModels(context.Context) ([]ModelInfo, error) {
	return nil, ErrListingUnsupported
}

type staticHost struct {
	name   string
	models []string
}

func (h staticHost) Name() string { return h.name }
func (h staticHost) Type() string { return appconfig.ProviderMock }
func (h staticHost) ListModels(context.Context) ([]ModelInfo, error) {
	out := make([]ModelInfo, 0, len(h.models))
	for _, m := range h.models {
		out = append(out, ModelInfo{Name: m, Status: "loaded"})
	}
	return out, nil
}
