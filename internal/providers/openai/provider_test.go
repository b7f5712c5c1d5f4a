package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/edgeprompt/internal/providers"
)

func TestGenerateAgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":" hi "}}],"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}}`))
	}))
	defer server.Close()

	p, err := New(providers.Endpoint{URL: server.URL + "/v1", Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	require.NoError(t, err)

	gen, err := p.Generate(context.Background(), "hello", providers.GenerationParams{
		Temperature: providers.Ptr(0.1),
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", gen.Text)
	assert.Equal(t, 4, gen.PromptTokens)
	assert.Equal(t, 1, gen.CompletionTokens)

	rf, ok := payload["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing: %v", payload)
	assert.Equal(t, "json_object", rf["type"])
}

func TestGenerateRateLimitIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	p, err := New(providers.Endpoint{URL: server.URL + "/v1", Model: "m", Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, providers.IsTransient(err), "got %v", err)
}

func TestNewRequiresModelAndKey(t *testing.T) {
	_, err := New(providers.Endpoint{})
	assert.Error(t, err)
	_, err = New(providers.Endpoint{Model: "gpt-4o"})
	assert.Error(t, err)
}
