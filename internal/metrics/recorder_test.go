package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/providers/mock"
)

func TestRecorderCountsAndWritesTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun("edge", "structured", "completed", 2*time.Second)
	r.ObserveRun("edge", "structured", "completed", time.Second)
	r.ObserveStage("length_check", "stage_failed")
	r.ObserveParseFailure("vocabulary_check")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("edge", "structured", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stages.WithLabelValues("length_check", "stage_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.parseFailures.WithLabelValues("vocabulary_check")))

	path := filepath.Join(t.TempDir(), "suite", "metrics.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "edgeprompt_runs_total"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRun("cloud", "direct", "failed", time.Second)
	r.ObserveStage("s", "x")
	r.ObserveGeneration("m", time.Second, 1, 1)
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, r.Registry())
}

func TestInstrumentedExecutorRecordsTokens(t *testing.T) {
	r := NewRecorder()
	exec := NewInstrumentedExecutor(mock.New("edge-model", mock.WithResponses("one two three")), r)

	gen, err := exec.Generate(context.Background(), "a b", providers.GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "one two three", gen.Text)
	assert.Equal(t, "edge-model", exec.Model())

	assert.Equal(t, 2.0, testutil.ToFloat64(r.tokens.WithLabelValues("edge-model", "prompt")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.tokens.WithLabelValues("edge-model", "completion")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.generation))
}
