// Package extract recovers the {passed, score, feedback} verdict from
// free-form model output through an ordered chain of parsing strategies.
package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical field names every verdict must carry.
const (
	FieldPassed   = "passed"
	FieldScore    = "score"
	FieldFeedback = "feedback"
)

// synonyms are checked in order; the first present alias wins.
var synonyms = []struct{ alias, canonical string }{
	{"valid", FieldPassed},
	{"is_valid", FieldPassed},
	{"pass", FieldPassed},
	{"comments", FieldFeedback},
	{"comment", FieldFeedback},
	{"reason", FieldFeedback},
	{"explanation", FieldFeedback},
	{"rating", FieldScore},
	{"grade", FieldScore},
	{"evaluation", FieldScore},
}

// nestedKeys are wrapper objects some models put the verdict under.
var nestedKeys = []string{"evaluation", "result", "validation", "verdict"}

// Result is a successfully extracted verdict.
type Result struct {
	Passed   bool           `json:"passed"`
	Score    float64        `json:"score"`
	Feedback string         `json:"feedback"`
	Strategy string         `json:"strategy"`
	Raw      map[string]any `json:"-"`
}

// Attempt records why one strategy did not produce a verdict.
type Attempt struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// ValidationParseError is returned when no strategy yields all mandatory fields.
type ValidationParseError struct {
	Attempts []Attempt
	Snippet  string
}

func (e *ValidationParseError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Strategy+": "+a.Reason)
	}
	return fmt.Sprintf("could not extract passed/score/feedback (%s) from %q", strings.Join(parts, "; "), e.Snippet)
}

// Candidate is a field map proposed by a strategy.
type Candidate struct {
	Fields   map[string]any
	Repaired bool
}

// Strategy proposes candidate field maps for a piece of text.
type Strategy interface {
	Name() string
	Candidates(text string) []Candidate
}

// Extractor runs strategies in order and returns the first complete verdict.
type Extractor struct {
	strategies []Strategy
}

// New returns an Extractor with the given strategies, or the default chain
// when none are given.
func New(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// DefaultStrategies is fenced JSON, then balanced objects, then key/value lines.
func DefaultStrategies() []Strategy {
	return []Strategy{FencedJSON{}, BalancedObject{}, KeyValueLines{}}
}

// Extract parses text into a verdict.
func (x *Extractor) Extract(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, &ValidationParseError{
			Attempts: []Attempt{{Strategy: "input", Reason: "empty response"}},
		}
	}

	var attempts []Attempt
	for _, s := range x.strategies {
		candidates := s.Candidates(text)
		if len(candidates) == 0 {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Reason: "no candidate found"})
			continue
		}
		var reason string
		for _, c := range candidates {
			res, err := coerce(normalize(c.Fields))
			if err != nil {
				reason = err.Error()
				continue
			}
			res.Strategy = s.Name()
			if c.Repaired {
				res.Strategy += "+repaired"
			}
			res.Raw = c.Fields
			return res, nil
		}
		attempts = append(attempts, Attempt{Strategy: s.Name(), Reason: reason})
	}
	return Result{}, &ValidationParseError{Attempts: attempts, Snippet: snippet(text)}
}

// Extract runs the default chain.
func Extract(text string) (Result, error) {
	return New().Extract(text)
}

// normalize lowercases keys, maps synonyms, and lifts fields out of a nested
// wrapper object. Canonical keys win over synonyms.
func normalize(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := out[key]; dup {
			continue
		}
		out[key] = v
	}
	for _, syn := range synonyms {
		v, ok := out[syn.alias]
		if !ok {
			continue
		}
		canonical := syn.canonical
		if _, exists := out[canonical]; exists {
			continue
		}
		if _, isMap := v.(map[string]any); isMap {
			continue
		}
		out[canonical] = v
	}
	for _, nk := range nestedKeys {
		nested, ok := out[nk].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range normalize(nested) {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}

func coerce(fields map[string]any) (Result, error) {
	var missing []string
	for _, f := range []string{FieldPassed, FieldScore, FieldFeedback} {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	passed, err := toBool(fields[FieldPassed])
	if err != nil {
		return Result{}, err
	}
	score, err := toScore(fields[FieldScore])
	if err != nil {
		return Result{}, err
	}
	feedback, ok := fields[FieldFeedback].(string)
	if !ok {
		return Result{}, fmt.Errorf("feedback is %T, want string", fields[FieldFeedback])
	}
	return Result{Passed: passed, Score: score, Feedback: strings.TrimSpace(feedback)}, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case string:
		switch strings.ToLower(strings.Trim(strings.TrimSpace(b), `"'.`)) {
		case "true", "yes", "pass", "passed", "valid":
			return true, nil
		case "false", "no", "fail", "failed", "invalid":
			return false, nil
		}
	}
	return false, fmt.Errorf("passed value %v is not a boolean", v)
}

func toScore(v any) (float64, error) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case int:
		f = float64(s)
	case string:
		raw := strings.TrimSpace(s)
		if i := strings.Index(raw, "/"); i > 0 {
			raw = strings.TrimSpace(raw[:i])
		}
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("score value %q is not numeric", s)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("score value %v is not numeric", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("score value %v is not finite", v)
	}
	return f, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) > 160 {
		return string(r[:160]) + "..."
	}
	return text
}
