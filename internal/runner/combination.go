package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/environment"
	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/results"
	"github.com/mwiater/edgeprompt/internal/template"
)

// defaultQualityCriteria grades a run against the reference when the test
// case has no rubric.
const defaultQualityCriteria = "Accuracy, relevance to the topic, clarity and completeness compared with the reference output."

type combination struct {
	testCase appconfig.TestCase
	profile  environment.Profile
	edgeID   string
}

type runSpec struct {
	id     int
	tier   string
	method string
	exec   providers.Executor
}

// RunCombination executes the four runs for one test case, hardware profile
// and edge model, persisting each record as it completes. A test case whose
// teacher request cannot be produced is skipped with no records.
func (o *Orchestrator) RunCombination(ctx context.Context, tc appconfig.TestCase, profile environment.Profile, edgeID string) ([]results.RunRecord, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	edge := o.execs.Edge[edgeID]
	if edge == nil {
		return nil, fmt.Errorf("runner: no executor for edge model %q", edgeID)
	}

	request, err := o.teacherRequest(ctx, tc)
	if err != nil {
		logging.LogWarning("test case %s skipped: teacher request: %v", tc.ID, err)
		return nil, nil
	}

	c := combination{testCase: tc, profile: profile, edgeID: edgeID}
	plan := []runSpec{
		{id: results.RunCloudDirect, tier: appconfig.TierCloud, method: results.MethodDirect, exec: o.execs.Cloud},
		{id: results.RunCloudStructured, tier: appconfig.TierCloud, method: results.MethodStructured, exec: o.execs.Cloud},
		{id: results.RunEdgeDirect, tier: appconfig.TierEdge, method: results.MethodDirect, exec: edge},
		{id: results.RunEdgeStructured, tier: appconfig.TierEdge, method: results.MethodStructured, exec: edge},
	}

	records := make([]results.RunRecord, 0, len(plan))
	var reference *results.RunRecord
	for _, rs := range plan {
		rec := o.executeRun(ctx, c, rs, request)
		if rs.id == results.RunCloudDirect {
			ref := rec
			reference = &ref
		} else if o.suite.RunParameters.ProxyOn() && rec.Completed() {
			o.scoreQuality(ctx, &rec, reference, tc)
		}

		if err := o.store.LogRun(rec); err != nil {
			return records, err
		}
		o.opts.Recorder.ObserveRun(rec.ModelTier, rec.Method, rec.Status, rec.FinishedAt.Sub(rec.StartedAt))
		records = append(records, rec)
	}

	checkTopicConsistency(records)
	return records, nil
}

func (o *Orchestrator) executeRun(ctx context.Context, c combination, rs runSpec, request string) (rec results.RunRecord) {
	rec = results.RunRecord{
		SuiteID:        o.suite.ID,
		TestCaseID:     c.testCase.ID,
		ProfileID:      c.profile.ID,
		RunID:          rs.id,
		ModelTier:      rs.tier,
		Method:         rs.method,
		CloudModel:     o.suite.Models.Cloud,
		EdgeModel:      c.edgeID,
		Model:          rs.exec.Model(),
		TeacherRequest: request,
		StartedAt:      time.Now().UTC(),
	}
	key := rec.Key()
	defer func() { rec.FinishedAt = time.Now().UTC() }()

	scope, err := o.opts.Profiles.Acquire(ctx, c.profile)
	if err != nil {
		rec.Status = results.StatusFailed
		rec.Error = fmt.Sprintf("acquire hardware profile: %v", err)
		logging.LogRun(key, "failed: %s", rec.Error)
		return rec
	}
	defer scope.Release()
	rec.Environment.Enforced = scope.Enforced
	if scope.Warning != nil {
		rec.Environment.Warning = scope.Warning.Error()
		logging.LogWarning("[run=%s] %v", key, scope.Warning)
	}

	err = withRetry(ctx, o.opts.MaxAttempts, "run "+key, func(attempt int) error {
		rec.Attempts = attempt
		resetOutputs(&rec)
		summary, err := metrics.Track(ctx, o.opts.Sampler, o.opts.SampleInterval, func(ctx context.Context) error {
			return o.attempt(ctx, c, rs, request, &rec)
		})
		rec.Metrics = summary
		return err
	})
	if err != nil {
		rec.Status = results.StatusFailed
		rec.Error = err.Error()
		logging.LogRun(key, "failed after %d attempt(s): %v", rec.Attempts, err)
		return rec
	}
	rec.Status = results.StatusCompleted
	logging.LogRun(key, "completed in %dms", rec.Metrics.DurationMs)
	return rec
}

func resetOutputs(rec *results.RunRecord) {
	rec.Prompt = ""
	rec.GenerationOutput = ""
	rec.StudentAnswer = ""
	rec.ConstraintResult = nil
	rec.ValidationResult = nil
	rec.ValidationSkipped = ""
	rec.ValidationError = ""
}

// attempt performs one try of a run: generate, optionally answer as the
// student, enforce constraints and, for structured runs, validate.
func (o *Orchestrator) attempt(ctx context.Context, c combination, rs runSpec, request string, rec *results.RunRecord) error {
	rp := o.suite.RunParameters
	tc := c.testCase
	vars := caseVariables(tc, request)

	params := providers.GenerationParams{}
	if rs.tier == appconfig.TierEdge && c.profile.CPUCores > 0 {
		params.Threads = providers.Ptr(c.profile.CPUCores)
	}

	var prompt string
	var err error
	if rs.method == results.MethodDirect {
		prompt, err = o.renderTemplate(rp.BaselineTemplateID, vars, nil)
	} else {
		prompt, err = o.renderTemplate(rp.StructuredTemplateID, vars, tc.Constraints)
	}
	if err != nil {
		return err
	}
	rec.Prompt = prompt

	gen, err := rs.exec.Generate(ctx, prompt, params)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	rec.GenerationOutput = strings.TrimSpace(gen.Text)
	if gen.Model != "" {
		rec.Model = gen.Model
	}
	if rec.GenerationOutput == "" {
		return errors.New("generate: empty output")
	}

	question, content := request, rec.GenerationOutput
	if rp.StudentTemplateID != "" {
		studentVars := maps.Clone(vars)
		studentVars["question"] = rec.GenerationOutput
		studentPrompt, err := o.renderTemplate(rp.StudentTemplateID, studentVars, nil)
		if err != nil {
			return err
		}
		answer, err := rs.exec.Generate(ctx, studentPrompt, params)
		if err != nil {
			return fmt.Errorf("student answer: %w", err)
		}
		rec.StudentAnswer = strings.TrimSpace(answer.Text)
		if rec.StudentAnswer == "" {
			return errors.New("student answer: empty output")
		}
		question, content = rec.GenerationOutput, rec.StudentAnswer
	}

	cr := constraint.Check(content, tc.Constraints)
	rec.ConstraintResult = &cr
	if rs.method == results.MethodDirect {
		return nil
	}

	if !cr.Passed && rp.ShortCircuit() {
		rec.ValidationSkipped = "constraints failed: " + strings.Join(cr.Messages(), "; ")
		return nil
	}

	seq, ok := o.suite.Sequence(tc.ValidationSequenceID)
	if !ok {
		return fmt.Errorf("unknown validation sequence %q", tc.ValidationSequenceID)
	}
	vr, err := o.engine.RunSequence(ctx, question, content, seq, rs.exec, vars)
	if err != nil {
		rec.ValidationError = err.Error()
		return fmt.Errorf("validate: %w", err)
	}
	rec.ValidationResult = &vr
	return nil
}

func (o *Orchestrator) renderTemplate(id string, vars map[string]any, constraints []constraint.Constraint) (string, error) {
	t, ok := o.suite.Template(id)
	if !ok {
		return "", fmt.Errorf("unknown template %q", id)
	}
	var (
		text string
		err  error
	)
	if len(constraints) > 0 {
		text, err = o.renderer.ProcessWithConstraints(t, vars, constraints)
	} else {
		text, err = o.renderer.Process(t, vars)
	}
	if err != nil {
		return "", err
	}
	return template.Compact(text), nil
}

// scoreQuality grades rec against the reference run with the cloud model.
func (o *Orchestrator) scoreQuality(ctx context.Context, rec *results.RunRecord, reference *results.RunRecord, tc appconfig.TestCase) {
	if reference == nil || !reference.Completed() {
		rec.QualityError = "reference run did not complete"
		return
	}
	criteria := strings.TrimSpace(tc.Rubric)
	if criteria == "" {
		criteria = defaultQualityCriteria
	}
	criteria += "\n\nREFERENCE OUTPUT:\n" + evaluatedContent(*reference)

	result, err := o.engine.EvaluateProxy(ctx, evaluatedContent(*rec), criteria, o.suite.RunParameters.ProxyRole, o.execs.Cloud)
	if err != nil {
		rec.QualityError = err.Error()
		logging.LogWarning("[run=%s] quality vs reference: %v", rec.Key(), err)
		return
	}
	rec.QualityVsReference = &result
}

func evaluatedContent(r results.RunRecord) string {
	if r.StudentAnswer != "" {
		return r.StudentAnswer
	}
	return r.GenerationOutput
}

// caseVariables are the template variables shared by every prompt of a test
// case.
func caseVariables(tc appconfig.TestCase, request string) map[string]any {
	vars := make(map[string]any, len(tc.Variables)+3)
	maps.Copy(vars, tc.Variables)
	vars["topic"] = tc.Topic
	vars["testCaseId"] = tc.ID
	if request != "" {
		vars["teacherRequest"] = request
	}
	return vars
}

// checkTopicConsistency logs when the runs of one combination disagree on
// the teacher request.
func checkTopicConsistency(records []results.RunRecord) bool {
	if len(records) == 0 {
		return true
	}
	want := records[0].TeacherRequest
	for _, r := range records[1:] {
		if r.TeacherRequest != want {
			logging.LogWarning("topic consistency violated for %s: run %d request differs from run %d",
				r.ComboKey(), r.RunID, records[0].RunID)
			return false
		}
	}
	return true
}
