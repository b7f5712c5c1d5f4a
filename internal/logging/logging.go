// internal/logging/logging.go
// Package logging routes pipeline events and model traffic to stdout and an
// append-only log file.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// DirectionOut marks a payload sent to a model backend.
	DirectionOut = "EDGEPROMPT->LLM"
	// DirectionIn marks a payload received from a model backend.
	DirectionIn = "LLM->EDGEPROMPT"

	maxPayloadRunes = 4000
)

var (
	mu      sync.Mutex
	logFile *os.File
	quiet   bool
)

// Init directs the standard logger to stdout and, when logPath is set, to the
// given file. Calling Init again replaces the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if !quiet {
		writers = append(writers, os.Stdout)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// SetQuiet drops stdout from the writers installed by the next Init call.
func SetQuiet(v bool) {
	mu.Lock()
	quiet = v
	mu.Unlock()
}

// Close flushes and releases the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent writes a formatted pipeline event.
func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogWarning writes a formatted event tagged as a warning.
func LogWarning(format string, args ...any) {
	log.Println("[WARN] " + fmt.Sprintf(format, args...))
}

// LogRun writes an event scoped to a single run of a suite.
func LogRun(runKey, format string, args ...any) {
	key := strings.TrimSpace(runKey)
	if key == "" {
		key = "-"
	}
	log.Printf("[run=%s] %s\n", key, fmt.Sprintf(format, args...))
}

// LogRequest records a payload exchanged with a model backend.
func LogRequest(direction, host, model, operation string, payload any) {
	msg := buildRequestMessage(direction, host, model, operation, payload)
	log.Println(msg)
}

func buildRequestMessage(direction, host, model, operation string, payload any) string {
	dir := strings.TrimSpace(direction)
	if dir != "" {
		dir = strings.ToUpper(dir)
	}
	hostValue := strings.TrimSpace(host)
	if hostValue == "" {
		hostValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("host=%s", hostValue))
	parts = append(parts, fmt.Sprintf("model=%s", modelValue))
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", operation))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", truncate(formatPayload(payload))))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxPayloadRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxPayloadRunes]) + fmt.Sprintf("...(%d more runes)", len(r)-maxPayloadRunes)
}
