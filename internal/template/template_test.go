package template

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/edgeprompt/internal/constraint"
)

func quietEngine(diags *[]string) *Engine {
	return &Engine{Warnf: func(format string, args ...any) {
		if diags != nil {
			*diags = append(*diags, fmt.Sprintf(format, args...))
		}
	}}
}

func TestProcessSubstitutesAllPlaceholders(t *testing.T) {
	tpl := Template{
		ID:           "gen",
		Pattern:      "Write about [topic] for [audience]. Use [topic] twice. Keywords: [keywords]. Level [level].",
		RequiredVars: []string{"topic"},
		Defaults:     map[string]string{"audience": "students"},
	}
	out, err := quietEngine(nil).Process(tpl, map[string]any{
		"topic":    "fractions",
		"keywords": []string{"numerator", "denominator"},
		"level":    3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Write about fractions for students. Use fractions twice. Keywords: numerator, denominator. Level 3.", out)
	assert.NotRegexp(t, `\[[A-Za-z_][A-Za-z0-9_]*\]`, out)
}

func TestProcessMissingRequiredVariable(t *testing.T) {
	tpl := Template{ID: "gen", Pattern: "About [topic]", RequiredVars: []string{"topic"}}
	_, err := quietEngine(nil).Process(tpl, nil)

	var missing *MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "topic", missing.Variable)
	assert.Equal(t, "gen", missing.Template)
}

func TestProcessOptionalVariableBecomesEmptyWithDiagnostic(t *testing.T) {
	var diags []string
	tpl := Template{ID: "gen", Pattern: "A[extra]B"}
	r, err := quietEngine(&diags).Render(tpl, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AB", r.Text)
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, r.Diagnostics, diags)
}

func TestProcessIsSinglePass(t *testing.T) {
	tpl := Template{ID: "t", Pattern: "Q: [question]"}
	out, err := quietEngine(nil).Process(tpl, map[string]any{
		"question": "What is [answer]?",
		"answer":   "leak",
	})
	require.NoError(t, err)
	assert.Equal(t, "Q: What is [answer]?", out)
}

func TestProcessLeavesNonPlaceholderBrackets(t *testing.T) {
	tpl := Template{ID: "t", Pattern: "See [1] and [a-b] for [name]"}
	out, err := quietEngine(nil).Process(tpl, map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "See [1] and [a-b] for x", out)
}

func TestExtractVariables(t *testing.T) {
	tpl := Template{Pattern: "[b] [a] [b] [snake_case] [9x] [step2]"}
	assert.Equal(t, []string{"b", "a", "snake_case", "step2"}, ExtractVariables(tpl))
}

func TestProcessNamesWithDigits(t *testing.T) {
	tpl := Template{ID: "t", Pattern: "First [step1], then [step2_b]. Missing [step3]."}
	var diags []string
	r, err := quietEngine(&diags).Render(tpl, map[string]any{"step1": "mix", "step2_b": "bake"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "First mix, then bake. Missing .", r.Text)
	require.Len(t, r.Diagnostics, 1)
	assert.Contains(t, r.Diagnostics[0], "step3")
}

func TestProcessWithConstraintsAppendsSection(t *testing.T) {
	tpl := Template{ID: "gen", Type: TypeQuestionGeneration, Pattern: "Ask about [topic]."}
	out, err := quietEngine(nil).ProcessWithConstraints(tpl, map[string]any{"topic": "rain"}, []constraint.Constraint{
		constraint.MinWordsRule(5),
		{ForbiddenTerms: []string{"cloud"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ask about rain.\n\nCONSTRAINTS:\n- Minimum words: 5\n- Forbidden terms: cloud", out)

	body, section, ok := SplitConstraints(out)
	require.True(t, ok)
	assert.Equal(t, "Ask about rain.", body)
	assert.True(t, strings.HasPrefix(section, ConstraintsHeading))
}

func TestValidationTemplatesUseCriteriaHeading(t *testing.T) {
	tpl := Template{ID: "v", Type: TypeValidation, Pattern: "Check it."}
	out, err := quietEngine(nil).ProcessWithConstraints(tpl, nil, []constraint.Constraint{constraint.MaxWordsRule(9)})
	require.NoError(t, err)
	assert.Contains(t, out, "VALIDATION CRITERIA:\n- Maximum words: 9")
}

func TestProcessWithoutConstraintsHasNoSection(t *testing.T) {
	tpl := Template{ID: "gen", Pattern: "Plain."}
	out, err := quietEngine(nil).ProcessWithConstraints(tpl, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Plain.", out)
	_, _, ok := SplitConstraints(out)
	assert.False(t, ok)
}

func TestCompact(t *testing.T) {
	in := "Line  one   here\n\n\n\nLine two   \n"
	assert.Equal(t, "Line one here\n\nLine two", Compact(in))
}

func TestFormatValueSequences(t *testing.T) {
	assert.Equal(t, "1, two, true", formatValue([]any{1, "two", true}))
	assert.Equal(t, "0.5, 2", formatValue([]float64{0.5, 2}))
	assert.Equal(t, "1.25", formatValue(1.25))
}
