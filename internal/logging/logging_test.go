package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testStringer string

func (s testStringer) String() string { return string(s) }

func TestInitAndLoggingToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "nested", "edgeprompt.log")

	SetQuiet(true)
	t.Cleanup(func() { SetQuiet(false) })

	if err := Init(logPath); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
	})

	LogEvent("hello %s", "world")
	LogWarning("profile %s not enforced", "edge-2gb")
	LogRun("tc1/edge-2gb/run_3", "generation took %dms", 42)
	_ = Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"hello world",
		"[WARN] profile edge-2gb not enforced",
		"[run=tc1/edge-2gb/run_3] generation took 42ms",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in log, got: %s", want, content)
		}
	}
}

func TestBuildRequestMessageDefaults(t *testing.T) {
	msg := buildRequestMessage(" in ", " ", "", " generate ", map[string]any{"ok": true})
	if !strings.Contains(msg, "[IN]") {
		t.Fatalf("expected uppercased direction, got: %s", msg)
	}
	if !strings.Contains(msg, "host=unknown") {
		t.Fatalf("expected default host, got: %s", msg)
	}
	if !strings.Contains(msg, "model=unknown") {
		t.Fatalf("expected default model, got: %s", msg)
	}
	if !strings.Contains(msg, "op=generate") {
		t.Fatalf("expected operation name, got: %s", msg)
	}
	if !strings.Contains(msg, "payload={\"ok\":true}") {
		t.Fatalf("expected payload json, got: %s", msg)
	}
}

func TestFormatPayloadVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"nil", nil, "null"},
		{"blank string", "  ", `""`},
		{"empty bytes", []byte{}, "[]"},
		{"bytes", []byte("raw"), "raw"},
		{"stringer", testStringer("custom"), "custom"},
		{"struct", struct {
			A int `json:"a"`
		}{A: 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := formatPayload(tt.payload); got != tt.want {
			t.Errorf("%s: formatPayload() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTruncateLongPayload(t *testing.T) {
	long := strings.Repeat("a", maxPayloadRunes+10)
	got := truncate(long)
	if !strings.HasSuffix(got, "...(10 more runes)") {
		t.Fatalf("unexpected truncation suffix: %q", got[len(got)-30:])
	}
	if short := truncate("short"); short != "short" {
		t.Fatalf("short payload changed: %q", short)
	}
}
