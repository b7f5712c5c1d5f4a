package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateWeightedMean(t *testing.T) {
	stages := []Stage{
		{ID: "a", Weight: 3, Scale: 10},
		{ID: "b", Weight: 1, Scale: 5},
	}
	results := []StageResult{
		{StageID: "a", Score: 10},
		{StageID: "b", Score: 0},
	}
	assert.InDelta(t, 7.5, Scoring{}.Aggregate(stages, results), 1e-9)
	assert.InDelta(t, 0.75, Scoring{OutputScale: 1}.Aggregate(stages, results), 1e-9)
}

func TestAggregateClampsOutOfRangeScores(t *testing.T) {
	stages := []Stage{{ID: "a"}, {ID: "b"}}
	results := []StageResult{{StageID: "a", Score: 15}, {StageID: "b", Score: -3}}
	assert.InDelta(t, 5.0, Scoring{}.Aggregate(stages, results), 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Zero(t, Scoring{}.Aggregate(nil, nil))
	assert.True(t, AllPassed(nil))
	assert.Equal(t, "", AggregateFeedback(nil))
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, 4.0, Scoring{}.Normalize(2, 5), 1e-9)
	assert.InDelta(t, 10.0, Scoring{}.Normalize(12, 10), 1e-9)
}
