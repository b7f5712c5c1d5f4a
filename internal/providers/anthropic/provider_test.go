package anthropic

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

func TestGenerateSendsHeadersAndJoinsTextBlocks(t *testing.T) {
	t.Parallel()

	var got request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"{\"passed\":"},{"type":"text","text":"true}"}],"usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer server.Close()

	p, err := New(providers.Endpoint{URL: server.URL, Model: "claude-test", APIKey: "secret", Timeout: 5 * time.Second})
	require.NoError(t, err)

	gen, err := p.Generate(context.Background(), "evaluate", providers.GenerationParams{
		MaxTokens: providers.Ptr(256),
		JSONMode:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"passed":true}`, gen.Text)
	assert.Equal(t, 10, gen.PromptTokens)
	assert.Equal(t, 4, gen.CompletionTokens)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Contains(t, got.System, "JSON object")
}

func TestGenerateOverloadedIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	p, err := New(providers.Endpoint{URL: server.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, providers.IsTransient(err))
}

func TestNewValidatesEndpoint(t *testing.T) {
	_, err := New(providers.Endpoint{Model: "m"})
	assert.Error(t, err)
	_, err = New(providers.Endpoint{APIKey: "k"})
	assert.Error(t, err)
}
