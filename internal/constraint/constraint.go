// Package constraint checks generated content against deterministic rules:
// word-count bounds, forbidden terms, and required topics.
package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule names reported in violations.
const (
	RuleMinWords       = "minWords"
	RuleMaxWords       = "maxWords"
	RuleForbiddenTerms = "forbiddenTerms"
	RuleRequiredTopics = "requiredTopics"
)

// Constraint is a single rule attached to a test case. A constraint may set
// more than one field; each set field is checked independently.
type Constraint struct {
	MinWords       *int     `json:"minWords,omitempty" validate:"omitempty,gte=0"`
	MaxWords       *int     `json:"maxWords,omitempty" validate:"omitempty,gt=0"`
	ForbiddenTerms []string `json:"forbiddenTerms,omitempty" validate:"omitempty,dive,required"`
	RequiredTopics []string `json:"requiredTopics,omitempty" validate:"omitempty,dive,required"`
}

// MinWordsRule returns a constraint that only bounds the word count from below.
func MinWordsRule(n int) Constraint { return Constraint{MinWords: &n} }

// MaxWordsRule returns a constraint that only bounds the word count from above.
func MaxWordsRule(n int) Constraint { return Constraint{MaxWords: &n} }

// Empty reports whether no rule is set.
func (c Constraint) Empty() bool {
	return c.MinWords == nil && c.MaxWords == nil && len(c.ForbiddenTerms) == 0 && len(c.RequiredTopics) == 0
}

// Lines renders the constraint as human-readable prompt lines.
func (c Constraint) Lines() []string {
	var out []string
	if c.MinWords != nil {
		out = append(out, fmt.Sprintf("Minimum words: %d", *c.MinWords))
	}
	if c.MaxWords != nil {
		out = append(out, fmt.Sprintf("Maximum words: %d", *c.MaxWords))
	}
	if len(c.ForbiddenTerms) > 0 {
		out = append(out, "Forbidden terms: "+strings.Join(c.ForbiddenTerms, ", "))
	}
	if len(c.RequiredTopics) > 0 {
		out = append(out, "Required topics: "+strings.Join(c.RequiredTopics, ", "))
	}
	return out
}

// Violation describes one broken rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result is the outcome of checking content against a set of constraints.
type Result struct {
	Passed     bool        `json:"passed"`
	WordCount  int         `json:"wordCount"`
	Violations []Violation `json:"violations,omitempty"`
}

// Messages returns the violation messages in order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:'[\p{L}\p{N}_]+)*`)

// Words splits content into word tokens.
func Words(content string) []string {
	return wordPattern.FindAllString(content, -1)
}

// CountWords returns the number of word tokens in content.
func CountWords(content string) int {
	return len(wordPattern.FindAllStringIndex(content, -1))
}

// Check evaluates content against every constraint. It has no side effects.
func Check(content string, constraints []Constraint) Result {
	words := Words(content)
	res := Result{WordCount: len(words)}

	var tokens map[string]struct{}
	for _, c := range constraints {
		if c.MinWords != nil && res.WordCount < *c.MinWords {
			res.Violations = append(res.Violations, Violation{
				Rule:    RuleMinWords,
				Message: fmt.Sprintf("content has %d words, minimum is %d", res.WordCount, *c.MinWords),
			})
		}
		if c.MaxWords != nil && res.WordCount > *c.MaxWords {
			res.Violations = append(res.Violations, Violation{
				Rule:    RuleMaxWords,
				Message: fmt.Sprintf("content has %d words, maximum is %d", res.WordCount, *c.MaxWords),
			})
		}
		for _, term := range c.ForbiddenTerms {
			if containsTerm(content, term) {
				res.Violations = append(res.Violations, Violation{
					Rule:    RuleForbiddenTerms,
					Message: fmt.Sprintf("content contains forbidden term %q", term),
				})
			}
		}
		if len(c.RequiredTopics) > 0 && tokens == nil {
			tokens = tokenSet(words)
		}
		for _, topic := range c.RequiredTopics {
			if !topicCovered(tokens, topic) {
				res.Violations = append(res.Violations, Violation{
					Rule:    RuleRequiredTopics,
					Message: fmt.Sprintf("content does not cover required topic %q", topic),
				})
			}
		}
	}
	res.Passed = len(res.Violations) == 0
	return res
}

// containsTerm matches term case-insensitively on token boundaries. Multi-word
// terms match as a phrase with any whitespace between the words.
func containsTerm(content, term string) bool {
	parts := Words(term)
	if len(parts) == 0 {
		return false
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	pattern := `(?i)(?:^|[^\p{L}\p{N}_])` + strings.Join(quoted, `[^\p{L}\p{N}_]+`) + `(?:$|[^\p{L}\p{N}_])`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}

func tokenSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// topicCovered requires at least half of the topic's tokens, and never fewer
// than one, to appear in the content.
func topicCovered(tokens map[string]struct{}, topic string) bool {
	parts := Words(topic)
	if len(parts) == 0 {
		return true
	}
	need := max(1, len(parts)/2)
	found := 0
	for _, p := range parts {
		if _, ok := tokens[strings.ToLower(p)]; ok {
			found++
		}
	}
	return found >= need
}
