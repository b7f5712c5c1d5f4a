package results

import (
	"fmt"
	"time"
)

// RunStats aggregates every record with the same run id.
type RunStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	// Valid counts completed structured runs whose validation passed.
	Valid int `json:"valid"`
	// ConstraintsPassed counts runs whose output met every constraint.
	ConstraintsPassed int      `json:"constraintsPassed"`
	MeanScore         *float64 `json:"meanScore,omitempty"`
	MeanQuality       *float64 `json:"meanQuality,omitempty"`
	MeanDurationMs    float64  `json:"meanDurationMs"`
	MeanWordCount     float64  `json:"meanWordCount"`
}

// Comparison counts combinations where both runs of a pair completed.
type Comparison struct {
	Run4VsRun3Completed int `json:"run4VsRun3Completed"`
	Run3VsRun1Completed int `json:"run3VsRun1Completed"`
	Run4VsRun1Completed int `json:"run4VsRun1Completed"`
}

// Summary is the suite-level aggregate written to summary.json.
type Summary struct {
	SuiteID           string              `json:"suiteId"`
	GeneratedAt       time.Time           `json:"generatedAt"`
	TotalRecords      int                 `json:"totalRecords"`
	TotalCombinations int                 `json:"totalCombinations"`
	Runs              map[string]RunStats `json:"runs"`
	Comparison        Comparison          `json:"comparison"`
	// TopicViolations lists combinations whose runs did not share one
	// teacher request.
	TopicViolations []string `json:"topicViolations,omitempty"`
}

// RunKey names a run id in Summary.Runs.
func RunKey(runID int) string { return fmt.Sprintf("run_%d", runID) }

type runAccum struct {
	stats                        RunStats
	scoreSum, qualitySum, durSum float64
	scoreN, qualityN             int
	wordSum                      float64
	wordN                        int
}

// Summarize builds the suite aggregate from records.
func Summarize(suiteID string, records []RunRecord) Summary {
	sum := Summary{
		SuiteID:      suiteID,
		GeneratedAt:  time.Now().UTC(),
		TotalRecords: len(records),
		Runs:         make(map[string]RunStats, 4),
	}

	accums := make(map[int]*runAccum, 4)
	for id := RunCloudDirect; id <= RunEdgeStructured; id++ {
		accums[id] = &runAccum{}
	}

	type combo struct {
		completed map[int]bool
		requests  map[string]bool
		label     string
	}
	combos := make(map[string]*combo)
	var order []string

	for _, r := range records {
		acc, ok := accums[r.RunID]
		if !ok {
			acc = &runAccum{}
			accums[r.RunID] = acc
		}
		c, ok := combos[r.ComboKey()]
		if !ok {
			c = &combo{
				completed: map[int]bool{},
				requests:  map[string]bool{},
				label:     fmt.Sprintf("%s/%s/%s", r.TestCaseID, r.ProfileID, r.EdgeModel),
			}
			combos[r.ComboKey()] = c
			order = append(order, r.ComboKey())
		}
		c.requests[r.TeacherRequest] = true

		if !r.Completed() {
			acc.stats.Failed++
			continue
		}
		c.completed[r.RunID] = true
		acc.stats.Completed++
		acc.durSum += float64(r.Metrics.DurationMs)

		if r.ConstraintResult != nil {
			acc.wordSum += float64(r.ConstraintResult.WordCount)
			acc.wordN++
			if r.ConstraintResult.Passed {
				acc.stats.ConstraintsPassed++
			}
		}
		if r.ValidationResult != nil {
			acc.scoreSum += r.ValidationResult.Score
			acc.scoreN++
			if r.ValidationResult.IsValid {
				acc.stats.Valid++
			}
		}
		if r.QualityVsReference != nil {
			acc.qualitySum += r.QualityVsReference.Score
			acc.qualityN++
		}
	}

	for id, acc := range accums {
		st := acc.stats
		if st.Completed > 0 {
			st.MeanDurationMs = acc.durSum / float64(st.Completed)
		}
		if acc.wordN > 0 {
			st.MeanWordCount = acc.wordSum / float64(acc.wordN)
		}
		if acc.scoreN > 0 {
			st.MeanScore = mean(acc.scoreSum, acc.scoreN)
		}
		if acc.qualityN > 0 {
			st.MeanQuality = mean(acc.qualitySum, acc.qualityN)
		}
		sum.Runs[RunKey(id)] = st
	}

	sum.TotalCombinations = len(combos)
	for _, key := range order {
		c := combos[key]
		if c.completed[RunEdgeStructured] && c.completed[RunEdgeDirect] {
			sum.Comparison.Run4VsRun3Completed++
		}
		if c.completed[RunEdgeDirect] && c.completed[RunCloudDirect] {
			sum.Comparison.Run3VsRun1Completed++
		}
		if c.completed[RunEdgeStructured] && c.completed[RunCloudDirect] {
			sum.Comparison.Run4VsRun1Completed++
		}
		if len(c.requests) > 1 {
			sum.TopicViolations = append(sum.TopicViolations, c.label)
		}
	}
	return sum
}

func mean(total float64, n int) *float64 {
	v := total / float64(n)
	return &v
}
