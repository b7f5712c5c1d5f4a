// Package pipeline is the entry point for applications that score answers
// and check generated content without running a full suite.
package pipeline

import (
	"context"
	"errors"

	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/providers"
)

type (
	// Executor is a model backend.
	Executor = providers.Executor
	// Constraint is one deterministic content rule.
	Constraint = constraint.Constraint
	// ConstraintResult reports every violated rule.
	ConstraintResult = constraint.Result
	// ValidationResult is an aggregated verdict.
	ValidationResult = evaluation.ValidationResult
	// Engine runs validation sequences.
	Engine = evaluation.Engine
)

// ErrNoExecutor is returned by Validate when the pipeline has no model.
var ErrNoExecutor = errors.New("pipeline: no executor configured")

// Pipeline validates answers with one executor.
type Pipeline struct {
	engine *evaluation.Engine
	exec   providers.Executor
}

// New returns a Pipeline. A nil engine uses the built-in rubric template.
func New(engine *Engine, exec Executor) *Pipeline {
	if engine == nil {
		engine = evaluation.NewEngine(nil, evaluation.Options{})
	}
	return &Pipeline{engine: engine, exec: exec}
}

// Validate scores answer to question against rubric. An unparseable model
// verdict is returned as an error, never as a default result.
func (p *Pipeline) Validate(ctx context.Context, question, answer, rubric string) (ValidationResult, error) {
	if p.exec == nil {
		return ValidationResult{}, ErrNoExecutor
	}
	return p.engine.Validate(ctx, question, answer, rubric, p.exec)
}

// CheckConstraints checks content against constraints without a model.
func CheckConstraints(content string, constraints []Constraint) ConstraintResult {
	return constraint.Check(content, constraints)
}

// CheckConstraints is the method form of the package function.
func (p *Pipeline) CheckConstraints(content string, constraints []Constraint) ConstraintResult {
	return CheckConstraints(content, constraints)
}

// IntPtr is a convenience for building word-count constraints.
func IntPtr(v int) *int { return providers.Ptr(v) }
