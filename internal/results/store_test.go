package results

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/evaluation"
)

func record(tc string, run int, status string) RunRecord {
	return RunRecord{
		SuiteID:        "suite",
		TestCaseID:     tc,
		ProfileID:      "pi4",
		EdgeModel:      "llama3.2:1b",
		RunID:          run,
		Status:         status,
		TeacherRequest: "Explain photosynthesis.",
	}
}

func TestNewStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, "Photosynthesis Basics")
	require.NoError(t, err)

	rel, err := filepath.Rel(root, s.Dir())
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 2)
	assert.Equal(t, "photosynthesis-basics", parts[0])
	assert.Regexp(t, `^\d{8}T\d{6}Z_[0-9a-f]{8}$`, parts[1])
	assert.DirExists(t, filepath.Join(s.Dir(), RunsDir))
	assert.Equal(t, filepath.Join(s.Dir(), MetricsFile), s.MetricsPath())
}

func TestLogRunAppendsAndWritesFile(t *testing.T) {
	s, err := NewStore(t.TempDir(), "suite")
	require.NoError(t, err)

	first := record("tc1", RunCloudDirect, StatusCompleted)
	second := record("tc1", RunEdgeDirect, StatusFailed)
	second.Error = "connection refused"
	require.NoError(t, s.LogRun(first))
	require.NoError(t, s.LogRun(second))

	got, err := ReadRuns(s.Dir())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, RunCloudDirect, got[0].RunID)
	assert.Equal(t, "connection refused", got[1].Error)

	assert.FileExists(t, filepath.Join(s.Dir(), RunsDir, first.Key()+".json"))
	assert.Regexp(t, `^tc1__pi4__llama3-2_1b__run1_[0-9a-f]{8}$`, first.Key())
	assert.Equal(t, first.Key(), record("tc1", RunCloudDirect, StatusFailed).Key())
}

func TestLogRunKeepsSlugCollidingRecords(t *testing.T) {
	s, err := NewStore(t.TempDir(), "suite")
	require.NoError(t, err)

	spaced := record("grade 5", RunCloudDirect, StatusCompleted)
	dashed := record("grade-5", RunCloudDirect, StatusCompleted)
	require.NotEqual(t, spaced.Key(), dashed.Key())
	require.NoError(t, s.LogRun(spaced))
	require.NoError(t, s.LogRun(dashed))

	entries, err := os.ReadDir(filepath.Join(s.Dir(), RunsDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLogRunConcurrent(t *testing.T) {
	s, err := NewStore(t.TempDir(), "suite")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := record("tc", 1+i%4, StatusCompleted)
			r.ProfileID = string(rune('a' + i))
			assert.NoError(t, s.LogRun(r))
		}()
	}
	wg.Wait()

	got, err := ReadRuns(s.Dir())
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestLogSummaryRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir(), "suite")
	require.NoError(t, err)

	sum := Summarize("suite", []RunRecord{record("tc1", RunCloudDirect, StatusCompleted)})
	require.NoError(t, s.LogSummary(sum))

	got, err := ReadSummary(s.Dir())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Runs["run_1"].Completed)
}

func TestPersistenceErrors(t *testing.T) {
	_, err := ReadRuns(t.TempDir())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "open", perr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewStore(file, "suite")
	require.ErrorAs(t, err, &perr)

	_, err = OpenStore(file)
	require.ErrorAs(t, err, &perr)
}

func TestReadRunsRejectsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RunsFile), []byte("{\"runId\":1}\nnot json\n"), 0o644))
	_, err := ReadRuns(dir)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "decode", perr.Op)
	assert.True(t, strings.HasSuffix(perr.Path, ":2"))
}

func TestOpenStoreAppends(t *testing.T) {
	s, err := NewStore(t.TempDir(), "suite")
	require.NoError(t, err)
	require.NoError(t, s.LogRun(record("tc1", 1, StatusCompleted)))

	again, err := OpenStore(s.Dir())
	require.NoError(t, err)
	require.NoError(t, again.LogRun(record("tc1", 2, StatusCompleted)))

	got, err := ReadRuns(s.Dir())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSummarize(t *testing.T) {
	var records []RunRecord
	// tc1: all four runs complete.
	for run := RunCloudDirect; run <= RunEdgeStructured; run++ {
		r := record("tc1", run, StatusCompleted)
		r.Metrics.DurationMs = int64(100 * run)
		r.ConstraintResult = &constraint.Result{Passed: run%2 == 0, WordCount: 10 * run}
		if run == RunCloudStructured || run == RunEdgeStructured {
			r.ValidationResult = &evaluation.ValidationResult{IsValid: run == RunEdgeStructured, Score: float64(run)}
		}
		if run > RunCloudDirect {
			r.QualityVsReference = &evaluation.ProxyResult{Score: 8}
		}
		records = append(records, r)
	}
	// tc2: edge direct fails, and one record drifted to another request.
	for run := RunCloudDirect; run <= RunEdgeStructured; run++ {
		status := StatusCompleted
		if run == RunEdgeDirect {
			status = StatusFailed
		}
		r := record("tc2", run, status)
		if run == RunEdgeStructured {
			r.TeacherRequest = "something else"
		}
		records = append(records, r)
	}

	sum := Summarize("suite", records)
	assert.Equal(t, 8, sum.TotalRecords)
	assert.Equal(t, 2, sum.TotalCombinations)

	run1 := sum.Runs["run_1"]
	assert.Equal(t, 2, run1.Completed)
	assert.Nil(t, run1.MeanScore)
	assert.Nil(t, run1.MeanQuality)
	assert.InDelta(t, 50, run1.MeanDurationMs, 1e-9)

	run3 := sum.Runs["run_3"]
	assert.Equal(t, 1, run3.Completed)
	assert.Equal(t, 1, run3.Failed)

	run4 := sum.Runs["run_4"]
	assert.Equal(t, 1, run4.Valid)
	require.NotNil(t, run4.MeanScore)
	assert.InDelta(t, 4, *run4.MeanScore, 1e-9)
	require.NotNil(t, run4.MeanQuality)
	assert.InDelta(t, 8, *run4.MeanQuality, 1e-9)
	assert.Equal(t, 1, run4.ConstraintsPassed)
	assert.InDelta(t, 40, run4.MeanWordCount, 1e-9)

	assert.Equal(t, Comparison{Run4VsRun3Completed: 1, Run3VsRun1Completed: 1, Run4VsRun1Completed: 2}, sum.Comparison)
	assert.Equal(t, []string{"tc2/pi4/llama3.2:1b"}, sum.TopicViolations)
}
