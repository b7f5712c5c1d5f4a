// internal/providers/ollama/provider_test.go
package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwiater/edgeprompt/internal/providers"
)

// TestGenerateSendsOptionsAndParsesUsage verifies the request payload and the
// token accounting read back from the response.
func TestGenerateSendsOptionsAndParsesUsage(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		capturedBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2:1b","response":"  final  ","done":true,"total_duration":2000000,"prompt_eval_count":12,"eval_count":5}`))
	}))
	defer server.Close()

	provider := New(providers.Endpoint{
		Name:     "edge",
		URL:      server.URL + "/",
		Model:    "llama3.2:1b",
		Timeout:  5 * time.Second,
		Defaults: providers.GenerationParams{Temperature: providers.Ptr(0.7)},
	})

	gen, err := provider.Generate(context.Background(), "hello", providers.GenerationParams{
		MaxTokens: providers.Ptr(512),
		Threads:   providers.Ptr(2),
		JSONMode:  true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if gen.Text != "final" {
		t.Fatalf("unexpected text: %q", gen.Text)
	}
	if gen.PromptTokens != 12 || gen.CompletionTokens != 5 {
		t.Fatalf("unexpected usage: %+v", gen)
	}
	if gen.Elapsed != 2*time.Millisecond {
		t.Fatalf("expected elapsed from total_duration, got %s", gen.Elapsed)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if stream, ok := payload["stream"].(bool); !ok || stream {
		t.Fatalf("expected stream=false, got %v", payload["stream"])
	}
	if payload["format"] != "json" {
		t.Fatalf("expected json format, got %v", payload["format"])
	}
	opts, ok := payload["options"].(map[string]any)
	if !ok {
		t.Fatalf("expected options map, got %T", payload["options"])
	}
	if opts["temperature"] != 0.7 {
		t.Fatalf("expected default temperature, got %v", opts["temperature"])
	}
	if opts["num_predict"] != float64(512) || opts["num_thread"] != float64(2) {
		t.Fatalf("unexpected options: %v", opts)
	}
}

func TestGenerateServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := New(providers.Endpoint{URL: server.URL, Model: "m", Timeout: time.Second})
	_, err := provider.Generate(context.Background(), "hi", providers.GenerationParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !providers.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGenerateClientErrorIsNotTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider := New(providers.Endpoint{URL: server.URL, Model: "missing", Timeout: time.Second})
	_, err := provider.Complete(context.Background(), "hi")
	if err == nil || providers.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestBuildOptionsSkipsUnset(t *testing.T) {
	if got := buildOptions(providers.GenerationParams{}); len(got) != 0 {
		t.Fatalf("expected empty options, got %v", got)
	}
	got := buildOptions(providers.GenerationParams{Threads: providers.Ptr(0), Stop: []string{"\n\n"}})
	if _, ok := got["num_thread"]; ok {
		t.Fatalf("zero threads should be omitted: %v", got)
	}
	if _, ok := got["stop"]; !ok {
		t.Fatalf("expected stop sequences: %v", got)
	}
}
