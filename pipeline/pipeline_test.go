package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/edgeprompt/internal/extract"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/providers/mock"
)

func TestValidate(t *testing.T) {
	exec := mock.New("judge", mock.WithResponses("```json\n{\"passed\": true, \"score\": 9, \"feedback\": \"Correct.\"}\n```"))
	p := New(nil, exec)

	res, err := p.Validate(context.Background(), "What is 2+2?", "4", "Exact arithmetic.")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.InDelta(t, 9, res.Score, 1e-9)
	require.Len(t, res.StageResults, 1)
	assert.Equal(t, "Correct.", res.StageResults[0].Feedback)

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Exact arithmetic.")
	assert.True(t, calls[0].Params.JSONMode)
}

func TestValidateParseFailureIsError(t *testing.T) {
	p := New(nil, mock.New("judge", mock.WithResponses("looks good to me")))
	_, err := p.Validate(context.Background(), "q", "a", "")
	var perr *extract.ValidationParseError
	assert.ErrorAs(t, err, &perr)
}

func TestValidatePropagatesExecutorError(t *testing.T) {
	boom := &providers.TransientError{Backend: "mock", Err: errors.New("down")}
	p := New(nil, mock.New("judge", mock.WithError(boom)))
	_, err := p.Validate(context.Background(), "q", "a", "")
	assert.True(t, providers.IsTransient(err))
}

func TestValidateWithoutExecutor(t *testing.T) {
	_, err := New(nil, nil).Validate(context.Background(), "q", "a", "")
	assert.ErrorIs(t, err, ErrNoExecutor)
}

func TestCheckConstraints(t *testing.T) {
	res := CheckConstraints("This answer is obviously short.", []Constraint{
		{MinWords: IntPtr(10)},
		{ForbiddenTerms: []string{"obviously"}},
	})
	assert.False(t, res.Passed)
	assert.Len(t, res.Violations, 2)

	p := New(nil, nil)
	assert.True(t, p.CheckConstraints("one two three", []Constraint{{MaxWords: IntPtr(3)}}).Passed)
}
