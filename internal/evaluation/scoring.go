package evaluation

import (
	"fmt"
	"strings"
)

const (
	// DefaultOutputScale is the range of the aggregate score, [0, 10].
	DefaultOutputScale = 10.0
	// DefaultStageScale is the score range stage prompts ask models for.
	DefaultStageScale = 10.0
)

// Scoring turns stage scores into the aggregate score.
//
// Each stage score is clamped to [0, scale] and divided by the stage's scale.
// The aggregate is the weighted mean of those fractions multiplied by
// OutputScale. A stage with zero weight counts with weight 1.
type Scoring struct {
	OutputScale       float64
	DefaultStageScale float64
}

func (s Scoring) outputScale() float64 {
	if s.OutputScale <= 0 {
		return DefaultOutputScale
	}
	return s.OutputScale
}

func (s Scoring) stageScale(st Stage) float64 {
	switch {
	case st.Scale > 0:
		return st.Scale
	case s.DefaultStageScale > 0:
		return s.DefaultStageScale
	default:
		return DefaultStageScale
	}
}

// Normalize maps a raw score on [0, scale] to [0, OutputScale].
func (s Scoring) Normalize(raw, scale float64) float64 {
	if scale <= 0 {
		scale = DefaultStageScale
	}
	return clamp(raw, 0, scale) / scale * s.outputScale()
}

// Aggregate combines results, matched to stages by ID.
func (s Scoring) Aggregate(stages []Stage, results []StageResult) float64 {
	byID := make(map[string]Stage, len(stages))
	for _, st := range stages {
		byID[st.ID] = st
	}
	var sum, weights float64
	for _, r := range results {
		st := byID[r.StageID]
		w := st.Weight
		if w <= 0 {
			w = 1
		}
		scale := s.stageScale(st)
		sum += w * clamp(r.Score, 0, scale) / scale
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights * s.outputScale()
}

// AggregateFeedback joins "stageId: feedback" lines in stage order.
func AggregateFeedback(results []StageResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %s", r.StageID, r.Feedback))
	}
	return strings.Join(lines, "\n")
}

// AllPassed is the conjunction of every result's Passed. It is true for no
// results.
func AllPassed(results []StageResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
