// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad tests the Load function to ensure it correctly handles valid and
// invalid configurations. Temporary files simulate each scenario.
func TestLoad(t *testing.T) {
	validConfig := `{
        "suite": "suites/example.yaml",
        "models": [
            { "id": "cloud", "provider": "openai", "model": "gpt-4o-mini", "apiKeyEnv": "OPENAI_API_KEY", "tier": "cloud" },
            { "id": "edge", "provider": "llamacpp", "url": "http://localhost:8080", "model": "qwen", "tier": "edge", "parameterProfile": "generation" }
        ]
    }`
	path := writeTemp(t, "config.json", validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if len(cfg.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(cfg.Models))
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, cfg.ConfigPath)
	}
	if cfg.TimeoutSeconds != 600 {
		t.Fatalf("expected default timeout of 600 seconds, got %d", cfg.TimeoutSeconds)
	}
	if cfg.RequestTimeout() != 600*time.Second {
		t.Fatalf("expected default request timeout of 600s, got %v", cfg.RequestTimeout())
	}
	if cfg.SampleInterval() != 250*time.Millisecond {
		t.Fatalf("expected default sample interval of 250ms, got %v", cfg.SampleInterval())
	}
	if cfg.WorkerCount() != 1 || cfg.OutputScale() != 10 {
		t.Fatalf("unexpected defaults: workers=%d scale=%g", cfg.WorkerCount(), cfg.OutputScale())
	}
	if cfg.LogFilePath() != "edgeprompt.log" || cfg.OutputDirPath() != "results" {
		t.Fatalf("unexpected path defaults: %q %q", cfg.LogFilePath(), cfg.OutputDirPath())
	}

	if _, err := Load(writeTemp(t, "config.json", `{ "models": [`)); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}
	if _, err := Load(writeTemp(t, "config.json", `{ "models": [] }`)); err == nil {
		t.Fatal("Load() with no models should have failed")
	}
	if _, err := Load("nonexistent.json"); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

func TestValidateRejectsBadModels(t *testing.T) {
	cases := map[string]string{
		"duplicate": `{"models":[{"id":"a","provider":"mock","model":"m"},{"id":"a","provider":"mock","model":"m"}]}`,
		"provider":  `{"models":[{"id":"a","provider":"bard","model":"m"}]}`,
		"tier":      `{"models":[{"id":"a","provider":"mock","model":"m","tier":"fog"}]}`,
		"no model":  `{"models":[{"id":"a","provider":"mock"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, "config.json", body)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadDefaultPath(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tempDir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	payload := `{"models":[{"id":"m","provider":"llama.cpp","url":"http://localhost:8080","model":"m1"}]}`
	if err := os.WriteFile(filepath.Join(tempDir, "config", "config.json"), []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(tempDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConfigPath != DefaultConfigPath {
		t.Fatalf("expected %q, got %q", DefaultConfigPath, cfg.ConfigPath)
	}
	if NormalizeProvider(cfg.Models[0].Provider) != ProviderLlamaCpp {
		t.Fatalf("expected llama.cpp provider, got %q", cfg.Models[0].Provider)
	}
}

func TestGenerationDefaultsMergeOverrides(t *testing.T) {
	temp := 0.3
	m := Model{ParameterProfile: "validation"}
	m.Parameters.Temperature = &temp

	params := m.GenerationDefaults()
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Fatalf("expected override temperature 0.3, got %v", params.Temperature)
	}
	if !params.JSONMode {
		t.Fatal("validation profile should keep JSON mode")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Fatalf("expected validation max tokens 512, got %v", params.MaxTokens)
	}
}

func TestParamsForProfileAliases(t *testing.T) {
	if p := ParamsForProfile("judge"); !p.JSONMode {
		t.Fatal("judge alias should select validation profile")
	}
	if p := ParamsForProfile("unknown"); p.JSONMode || *p.Temperature != 0.7 {
		t.Fatal("unknown profile should fall back to generation")
	}
	if p := ParamsForProfile("student"); *p.Temperature != 0.8 {
		t.Fatal("student alias should select persona profile")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("EDGEPROMPT_TEST_KEY", "  secret ")
	m := Model{APIKeyEnv: "EDGEPROMPT_TEST_KEY"}
	if m.APIKey() != "secret" {
		t.Fatalf("expected trimmed key, got %q", m.APIKey())
	}
	if (Model{}).APIKey() != "" {
		t.Fatal("expected empty key without env var")
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Suite: "s.yaml", Models: []Model{{ID: "edge", Provider: "ollama", Model: "llama3.2", Tier: TierEdge}}}
	ShowConfig(&buf, "config/config.json", cfg, Config{})

	out := buf.String()
	for _, want := range []string{"Config file: config/config.json", "Suite:           s.yaml", "edge: ollama/llama3.2 (tier edge, profile generation)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	ShowConfig(&buf, "", nil, Config{})
	if !strings.Contains(buf.String(), "No config file loaded") || !strings.Contains(buf.String(), "(none)") {
		t.Fatalf("unexpected fallback output:\n%s", buf.String())
	}
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
