// internal/models/models_test.go
package models

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwiater/edgeprompt/internal/appconfig"
)

func TestLlamaCppHostListModelsVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		body       string
		wantIDs    []string
		wantStatus map[string]string
	}{
		{
			name:       "wrapped data",
			body:       `{"data":[{"id":"model-a","status":"loaded"},{"name":"model-b","status":"unloaded"}]}`,
			wantIDs:    []string{"model-a", "model-b"},
			wantStatus: map[string]string{"model-a": "loaded", "model-b": "unloaded"},
		},
		{
			name:       "wrapped models",
			body:       `{"models":[{"name":"model-c","status":{"value":"Loading"}}]}`,
			wantIDs:    []string{"model-c"},
			wantStatus: map[string]string{"model-c": "loading"},
		},
		{
			name:       "direct array",
			body:       `[{"id":"model-d","status":"loaded"}]`,
			wantIDs:    []string{"model-d"},
			wantStatus: map[string]string{"model-d": "loaded"},
		},
		{
			name:       "names list",
			body:       `{"models":["model-e","model-f"]}`,
			wantIDs:    []string{"model-e", "model-f"},
			wantStatus: map[string]string{"model-e": "", "model-f": ""},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			host := &LlamaCppHost{name: "edge", url: server.URL, client: server.Client()}
			got, err := host.ListModels(context.Background())
			if err != nil {
				t.Fatalf("ListModels: %v", err)
			}
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("expected %d models, got %+v", len(tc.wantIDs), got)
			}
			for i, m := range got {
				if m.Name != tc.wantIDs[i] {
					t.Errorf("model %d: expected %s, got %s", i, tc.wantIDs[i], m.Name)
				}
				if m.Status != tc.wantStatus[m.Name] {
					t.Errorf("model %s: expected status %q, got %q", m.Name, tc.wantStatus[m.Name], m.Status)
				}
			}
		})
	}
}

func TestLlamaCppHostUnrecognizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":true}`))
	}))
	defer server.Close()

	host := &LlamaCppHost{name: "edge", url: server.URL, client: server.Client()}
	if _, err := host.ListModels(context.Background()); err == nil {
		t.Fatal("expected error for unrecognized listing")
	}
}

func TestOllamaHostMarksRunningModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"},{"name":"qwen2.5:0.5b"}]}`))
		case "/api/ps":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:0.5b"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	host := &OllamaHost{name: "edge", url: server.URL, client: server.Client()}
	got, err := host.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(got) != 2 || got[0].Status != "unloaded" || got[1].Status != "loaded" {
		t.Fatalf("unexpected models: %+v", got)
	}
}

func TestOllamaHostStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	host := &OllamaHost{name: "edge", url: server.URL, client: server.Client()}
	if _, err := host.ListModels(context.Background()); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestOpenAIHostListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"phi-3-mini","object":"model"}]}`))
	}))
	defer server.Close()

	host := newOpenAIHost("studio", server.URL+"/v1", "", server.Client())
	got, err := host.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(got) != 1 || got[0].Name != "phi-3-mini" {
		t.Fatalf("unexpected models: %+v", got)
	}
}

func TestSameModel(t *testing.T) {
	cases := []struct {
		listed, want string
		match        bool
	}{
		{"llama3.2:1b", "llama3.2:1b", true},
		{"Llama3.2:1B", "llama3.2:1b", true},
		{"gemma:latest", "gemma", true},
		{"gemma", "gemma:latest", true},
		{"gemma:2b", "gemma", false},
	}
	for _, c := range cases {
		if got := sameModel(c.listed, c.want); got != c.match {
			t.Errorf("sameModel(%q, %q) = %v, want %v", c.listed, c.want, got, c.match)
		}
	}
}

func TestCheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"}]}`))
		case "/api/ps":
			_, _ = w.Write([]byte(`{"models":[]}`))
		}
	}))
	defer server.Close()

	ms := []appconfig.Model{
		{ID: "edge-ok", Provider: "ollama", URL: server.URL, Model: "llama3.2:1b"},
		{ID: "edge-missing", Provider: "ollama", URL: server.URL, Model: "phi3:mini"},
		{ID: "claude", Provider: "anthropic", Model: "claude-3-5-haiku-latest"},
		{ID: "offline", Provider: "mock", Model: "mock-model"},
	}
	got := CheckAvailability(context.Background(), ms, time.Second)
	if len(got) != len(ms) {
		t.Fatalf("expected %d results, got %d", len(ms), len(got))
	}
	if !got[0].Available || got[0].Status != "unloaded" {
		t.Errorf("expected edge-ok available, got %+v", got[0])
	}
	if got[1].Available || !got[1].Checked {
		t.Errorf("expected edge-missing checked and unavailable, got %+v", got[1])
	}
	if got[2].Checked || got[2].Error != ErrListingUnsupported.Error() {
		t.Errorf("expected anthropic unchecked, got %+v", got[2])
	}
	if !got[3].Available {
		t.Errorf("expected mock available, got %+v", got[3])
	}
	if missing := Missing(got); len(missing) != 1 || missing[0] != "edge-missing" {
		t.Errorf("unexpected missing list: %v", missing)
	}
}

func TestNewHostUnknownProvider(t *testing.T) {
	_, err := NewHost(appconfig.Model{ID: "x", Provider: "carrier-pigeon"}, 0)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	var target error = ErrListingUnsupported
	if errors.Is(err, target) {
		t.Fatal("unknown provider must not look like an unsupported listing")
	}
}
