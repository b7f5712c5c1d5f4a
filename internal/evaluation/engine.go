// Package evaluation runs multi-stage validation sequences against a model
// executor and aggregates the stage verdicts.
package evaluation

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/mwiater/edgeprompt/internal/extract"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/template"
)

// Built-in template IDs used when a suite does not supply its own.
const (
	RubricTemplateID = "builtin_rubric"
	ProxyTemplateID  = "builtin_proxy"
	DefaultProxyRole = "expert evaluator"
)

// DefaultRubricTemplate judges an answer against free-text criteria.
var DefaultRubricTemplate = template.Template{
	ID:   RubricTemplateID,
	Type: template.TypeValidation,
	Pattern: `Evaluate whether the answer correctly and completely addresses the question.

QUESTION:
[question]

ANSWER:
[answer]

RUBRIC:
[rubric]

Respond with a JSON object with the keys "passed" (boolean), "score" (number from 0 to 10) and "feedback" (string).`,
	RequiredVars: []string{"question", "answer"},
	Defaults:     map[string]string{"rubric": "The answer is accurate, relevant and clearly written."},
}

// DefaultProxyTemplate asks a stronger model to grade content.
var DefaultProxyTemplate = template.Template{
	ID:   ProxyTemplateID,
	Type: template.TypeProxy,
	Pattern: `You are an [role]. Evaluate the following content based on the criteria below.

CRITERIA:
[criteria]

CONTENT TO EVALUATE:
[content]

Respond with a JSON object with the keys "passed" (boolean), "score" (number from 0 to 10) and "feedback" (string).`,
	RequiredVars: []string{"content", "criteria"},
	Defaults:     map[string]string{"role": DefaultProxyRole},
}

// DefaultStageParams are the generation parameters for validation stages.
func DefaultStageParams() providers.GenerationParams {
	return providers.GenerationParams{
		Temperature: providers.Ptr(0.1),
		MaxTokens:   providers.Ptr(512),
		JSONMode:    true,
	}
}

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	StageParams    *providers.GenerationParams
	Scoring        Scoring
	Observer       Observer
	ProxyTemplate  *template.Template
	RubricTemplate *template.Template
	Extractor      *extract.Extractor
	Renderer       *template.Engine
}

// Engine runs validation sequences. It is safe for concurrent use.
type Engine struct {
	templates   map[string]template.Template
	renderer    *template.Engine
	extractor   *extract.Extractor
	scoring     Scoring
	stageParams providers.GenerationParams
	observer    Observer
	proxy       template.Template
	rubric      template.Template
	now         func() time.Time
}

// NewEngine builds an Engine over the given templates.
func NewEngine(templates []template.Template, opts Options) *Engine {
	e := &Engine{
		templates:   make(map[string]template.Template, len(templates)+2),
		renderer:    opts.Renderer,
		extractor:   opts.Extractor,
		scoring:     opts.Scoring,
		stageParams: DefaultStageParams(),
		observer:    opts.Observer,
		proxy:       DefaultProxyTemplate,
		rubric:      DefaultRubricTemplate,
		now:         time.Now,
	}
	for _, t := range templates {
		e.templates[t.ID] = t
	}
	if e.renderer == nil {
		e.renderer = template.NewEngine()
	}
	if e.extractor == nil {
		e.extractor = extract.New()
	}
	if opts.StageParams != nil {
		e.stageParams = *opts.StageParams
	}
	if opts.ProxyTemplate != nil {
		e.proxy = *opts.ProxyTemplate
	}
	if opts.RubricTemplate != nil {
		e.rubric = *opts.RubricTemplate
	}
	e.templates[e.rubric.ID] = e.rubric
	e.templates[e.proxy.ID] = e.proxy
	return e
}

// Scoring returns the engine's score aggregation settings.
func (e *Engine) Scoring() Scoring { return e.scoring }

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// RunSequence runs every stage of seq in order against exec. Each stage
// prompt receives question, answer, vars and the stage's own variables. A
// stage whose output cannot be parsed stops the sequence with a *StageError
// and records no result for that stage.
func (e *Engine) RunSequence(ctx context.Context, question, answer string, seq Sequence, exec providers.Executor, vars map[string]any) (ValidationResult, error) {
	if len(seq.Stages) == 0 {
		return ValidationResult{}, fmt.Errorf("sequence %q: %w", seq.ID, ErrEmptySequence)
	}
	e.emit(Event{SequenceID: seq.ID, State: StatePending})

	results := make([]StageResult, 0, len(seq.Stages))
	aborted := false
	for i, stage := range seq.Stages {
		e.emit(Event{SequenceID: seq.ID, StageID: stage.ID, Index: i, State: StateRunningStage})

		res, err := e.runStage(ctx, question, answer, stage, exec, vars)
		if err != nil {
			e.emit(Event{SequenceID: seq.ID, StageID: stage.ID, Index: i, State: StateStageFailedFatal, Err: err})
			return ValidationResult{}, &StageError{
				SequenceID: seq.ID,
				StageID:    stage.ID,
				Index:      i,
				Partial:    results,
				Err:        err,
			}
		}
		results = append(results, res)

		if res.Passed {
			e.emit(Event{SequenceID: seq.ID, StageID: stage.ID, Index: i, State: StateStagePassed})
			continue
		}
		e.emit(Event{SequenceID: seq.ID, StageID: stage.ID, Index: i, State: StateStageFailed})
		if stage.AbortOnFailure && i < len(seq.Stages)-1 {
			aborted = true
			break
		}
	}

	out := ValidationResult{
		SequenceID:        seq.ID,
		IsValid:           AllPassed(results),
		Score:             e.scoring.Aggregate(seq.Stages, results),
		StageResults:      results,
		AggregateFeedback: AggregateFeedback(results),
		Aborted:           aborted,
	}
	e.emit(Event{SequenceID: seq.ID, State: StateAggregated})
	return out, nil
}

func (e *Engine) runStage(ctx context.Context, question, answer string, stage Stage, exec providers.Executor, vars map[string]any) (StageResult, error) {
	tpl, ok := e.templates[stage.TemplateID]
	if !ok {
		return StageResult{}, fmt.Errorf("%w %q", ErrUnknownTemplate, stage.TemplateID)
	}

	stageVars := make(map[string]any, len(vars)+len(stage.Variables)+2)
	maps.Copy(stageVars, vars)
	for k, v := range stage.Variables {
		stageVars[k] = v
	}
	stageVars["question"] = question
	stageVars["answer"] = answer

	prompt, err := e.renderer.Process(tpl, stageVars)
	if err != nil {
		return StageResult{}, err
	}

	start := e.now()
	gen, err := exec.Generate(ctx, template.Compact(prompt), e.stageParams)
	if err != nil {
		return StageResult{}, err
	}
	elapsed := e.now().Sub(start)

	verdict, err := e.extractor.Extract(gen.Text)
	if err != nil {
		return StageResult{}, err
	}
	return StageResult{
		StageID:          stage.ID,
		Passed:           verdict.Passed,
		Score:            verdict.Score,
		Feedback:         verdict.Feedback,
		ExecutionTimeMs:  elapsed.Milliseconds(),
		Strategy:         verdict.Strategy,
		PromptTokens:     gen.PromptTokens,
		CompletionTokens: gen.CompletionTokens,
	}, nil
}

// EvaluateProxy asks exec, normally the cloud-tier model, to grade content
// against criteria. The score is normalized to the engine's output scale.
func (e *Engine) EvaluateProxy(ctx context.Context, content, criteria, role string, exec providers.Executor) (ProxyResult, error) {
	vars := map[string]any{"content": content, "criteria": criteria}
	if strings.TrimSpace(role) != "" {
		vars["role"] = role
	}
	prompt, err := e.renderer.Process(e.proxy, vars)
	if err != nil {
		return ProxyResult{}, err
	}

	start := e.now()
	gen, err := exec.Generate(ctx, template.Compact(prompt), e.stageParams)
	if err != nil {
		return ProxyResult{}, fmt.Errorf("proxy evaluation: %w", err)
	}
	elapsed := e.now().Sub(start)

	verdict, err := e.extractor.Extract(gen.Text)
	if err != nil {
		return ProxyResult{}, fmt.Errorf("proxy evaluation: %w", err)
	}
	model := gen.Model
	if model == "" {
		model = exec.Model()
	}
	return ProxyResult{
		Passed:          verdict.Passed,
		Score:           e.scoring.Normalize(verdict.Score, DefaultStageScale),
		RawScore:        verdict.Score,
		Feedback:        verdict.Feedback,
		Strategy:        verdict.Strategy,
		Model:           model,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}, nil
}

// Validate grades answer against rubric with a single-stage sequence.
func (e *Engine) Validate(ctx context.Context, question, answer, rubric string, exec providers.Executor) (ValidationResult, error) {
	seq := Sequence{
		ID:     "rubric",
		Stages: []Stage{{ID: "rubric", TemplateID: e.rubric.ID}},
	}
	vars := map[string]any{}
	if strings.TrimSpace(rubric) != "" {
		vars["rubric"] = rubric
	}
	return e.RunSequence(ctx, question, answer, seq, exec, vars)
}
