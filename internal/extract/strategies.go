package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z]*)[ \\t]*\\r?\\n?(.*?)```")

// FencedJSON reads JSON objects from fenced code blocks.
type FencedJSON struct{}

func (FencedJSON) Name() string { return "fenced_json" }

func (FencedJSON) Candidates(text string) []Candidate {
	var out []Candidate
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" && lang != "javascript" && lang != "js" {
			continue
		}
		body := strings.TrimSpace(m[2])
		if c, ok := decodeObject(body); ok {
			out = append(out, c)
			continue
		}
		for _, span := range balancedSpans(body) {
			if c, ok := decodeObject(span); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// BalancedObject reads every top-level balanced {...} span in the text.
type BalancedObject struct{}

func (BalancedObject) Name() string { return "balanced_object" }

func (BalancedObject) Candidates(text string) []Candidate {
	var out []Candidate
	for _, span := range balancedSpans(text) {
		if c, ok := decodeObject(span); ok {
			out = append(out, c)
		}
	}
	return out
}

var kvLinePattern = regexp.MustCompile(`^\s*(?:[-*•]\s*|\d+[.)]\s+)?\**["']?([A-Za-z_][A-Za-z_ ]*?)["']?\**\s*[:=]\s*(.+?)\s*,?\s*$`)

// KeyValueLines reads "key: value" or "- key: value" lines for known fields.
type KeyValueLines struct{}

func (KeyValueLines) Name() string { return "key_value_lines" }

func (KeyValueLines) Candidates(text string) []Candidate {
	fields := map[string]any{}
	for _, line := range strings.Split(text, "\n") {
		m := kvLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "_")
		if !knownField(key) {
			continue
		}
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = lineValue(key, m[2])
	}
	if len(fields) == 0 {
		return nil
	}
	return []Candidate{{Fields: fields}}
}

func knownField(key string) bool {
	switch key {
	case FieldPassed, FieldScore, FieldFeedback:
		return true
	}
	for _, s := range synonyms {
		if s.alias == key {
			return true
		}
	}
	return false
}

func lineValue(key, raw string) any {
	v := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "*"))
	if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
		return v[1 : len(v)-1]
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && key != FieldFeedback {
		return f
	}
	return v
}

// balancedSpans returns each top-level {...} span, skipping braces inside
// JSON strings.
func balancedSpans(text string) []string {
	var (
		spans    []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

func decodeObject(s string) (Candidate, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return Candidate{}, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return Candidate{Fields: m}, true
	}
	if err := json.Unmarshal([]byte(repair(s)), &m); err == nil {
		return Candidate{Fields: m, Repaired: true}, true
	}
	return Candidate{}, false
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	pyLiteral     = regexp.MustCompile(`:\s*(True|False|None)\b`)
)

// repair applies lenient fixes for common model mistakes: single-quoted
// strings, unquoted keys, Python literals and trailing commas.
func repair(s string) string {
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	s = pyLiteral.ReplaceAllStringFunc(s, func(m string) string {
		switch {
		case strings.HasSuffix(m, "True"):
			return strings.TrimSuffix(m, "True") + "true"
		case strings.HasSuffix(m, "False"):
			return strings.TrimSuffix(m, "False") + "false"
		default:
			return strings.TrimSuffix(m, "None") + "null"
		}
	})
	s = unquotedKey.ReplaceAllString(s, `$1"$2":`)
	return trailingComma.ReplaceAllString(s, "$1")
}
