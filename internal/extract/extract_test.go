package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFencedJSON(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"passed\":true,\"score\":8,\"feedback\":\"good\"}\n```\nThanks"
	res, err := Extract(text)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 8.0, res.Score)
	assert.Equal(t, "good", res.Feedback)
	assert.Equal(t, "fenced_json", res.Strategy)
}

func TestExtractBalancedObjectWithPreamble(t *testing.T) {
	text := `Sure! {"passed": false, "score": 3.5, "feedback": "uses {braces} in text"} Hope this helps.`
	res, err := Extract(text)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 3.5, res.Score)
	assert.Equal(t, "uses {braces} in text", res.Feedback)
	assert.Equal(t, "balanced_object", res.Strategy)
}

func TestExtractPureJSON(t *testing.T) {
	res, err := Extract(`{"passed":true,"score":"9","feedback":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, 9.0, res.Score)
	assert.Equal(t, "balanced_object", res.Strategy)
}

func TestExtractSkipsIncompleteObjects(t *testing.T) {
	text := `{"note": "draft"} then {"passed": true, "score": 7, "feedback": "final"}`
	res, err := Extract(text)
	require.NoError(t, err)
	assert.Equal(t, "final", res.Feedback)
}

func TestExtractKeyValueLines(t *testing.T) {
	text := "Evaluation:\n- passed: true\n- score: 8/10\n- feedback: Clear and concise."
	res, err := Extract(text)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 8.0, res.Score)
	assert.Equal(t, "Clear and concise.", res.Feedback)
	assert.Equal(t, "key_value_lines", res.Strategy)
}

func TestExtractSynonyms(t *testing.T) {
	res, err := Extract(`{"valid": "yes", "rating": 6, "comments": "fine"}`)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 6.0, res.Score)
	assert.Equal(t, "fine", res.Feedback)
}

func TestExtractCanonicalBeatsSynonym(t *testing.T) {
	res, err := Extract(`{"passed": false, "valid": true, "score": 2, "grade": 9, "feedback": "a", "comments": "b"}`)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 2.0, res.Score)
	assert.Equal(t, "a", res.Feedback)
}

func TestExtractNestedWrapper(t *testing.T) {
	res, err := Extract(`{"role": "teacher", "evaluation": {"passed": true, "score": 7, "feedback": "nested"}}`)
	require.NoError(t, err)
	assert.Equal(t, "nested", res.Feedback)
	assert.Equal(t, 7.0, res.Score)
}

func TestExtractRepairsLenientJSON(t *testing.T) {
	res, err := Extract("```json\n{'passed': True, 'score': 5, 'feedback': 'single quotes',}\n```")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "fenced_json+repaired", res.Strategy)
}

func TestExtractFailsWithoutMandatoryFields(t *testing.T) {
	_, err := Extract(`{"score": 9, "feedback": "no verdict"}`)

	var perr *ValidationParseError
	require.True(t, errors.As(err, &perr))
	require.Len(t, perr.Attempts, 3)
	assert.Equal(t, "fenced_json", perr.Attempts[0].Strategy)
	assert.Equal(t, "missing passed", perr.Attempts[1].Reason)
}

func TestExtractRejectsEmptyAndProse(t *testing.T) {
	for _, text := range []string{"", "   ", "I think the answer looks fine overall."} {
		_, err := Extract(text)
		var perr *ValidationParseError
		assert.True(t, errors.As(err, &perr), "input %q", text)
	}
}

func TestExtractRejectsBadTypes(t *testing.T) {
	_, err := Extract(`{"passed": "maybe", "score": 5, "feedback": "x"}`)
	assert.Error(t, err)
	_, err = Extract(`{"passed": true, "score": "high", "feedback": "x"}`)
	assert.Error(t, err)
	_, err = Extract(`{"passed": true, "score": 5, "feedback": 12}`)
	assert.Error(t, err)
}

func TestBalancedSpans(t *testing.T) {
	spans := balancedSpans(`a {"x": "}"} b {c {d}} }`)
	assert.Equal(t, []string{`{"x": "}"}`, `{c {d}}`}, spans)
}

func TestCustomStrategyOrder(t *testing.T) {
	x := New(KeyValueLines{})
	res, err := x.Extract("passed: false\nscore: 1\nfeedback: {\"passed\": true}")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "key_value_lines", res.Strategy)
}
