package evaluation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySequence is returned for a sequence with no stages.
	ErrEmptySequence = errors.New("validation sequence has no stages")
	// ErrUnknownTemplate is returned when a stage names a template that is not loaded.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Stage is one check in a validation sequence.
type Stage struct {
	ID         string `json:"id" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
	// Weight is the stage's share of the aggregate score; zero means 1.
	Weight float64 `json:"weight,omitempty" validate:"gte=0"`
	// Scale is the maximum score the stage prompt asks for; zero means the
	// engine default.
	Scale float64 `json:"scale,omitempty" validate:"gte=0"`
	// AbortOnFailure stops the sequence after this stage fails.
	AbortOnFailure bool              `json:"abortOnFailure,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// Sequence is an ordered list of stages.
type Sequence struct {
	ID     string  `json:"id" validate:"required"`
	Stages []Stage `json:"stages" validate:"min=1,dive"`
}

// StageResult is the verdict of one stage.
type StageResult struct {
	StageID          string  `json:"stageId"`
	Passed           bool    `json:"passed"`
	Score            float64 `json:"score"`
	Feedback         string  `json:"feedback"`
	ExecutionTimeMs  int64   `json:"executionTimeMs"`
	Strategy         string  `json:"strategy"`
	PromptTokens     int     `json:"promptTokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty"`
}

// ValidationResult aggregates a sequence run. IsValid is the conjunction of
// every stage's Passed.
type ValidationResult struct {
	SequenceID        string        `json:"sequenceId"`
	IsValid           bool          `json:"isValid"`
	Score             float64       `json:"score"`
	StageResults      []StageResult `json:"stageResults"`
	AggregateFeedback string        `json:"aggregateFeedback"`
	Aborted           bool          `json:"aborted,omitempty"`
}

// ProxyResult is a single-shot quality judgement from a stronger model.
type ProxyResult struct {
	Passed          bool    `json:"passed"`
	Score           float64 `json:"score"`
	RawScore        float64 `json:"rawScore"`
	Feedback        string  `json:"feedback"`
	Strategy        string  `json:"strategy"`
	Model           string  `json:"model"`
	ExecutionTimeMs int64   `json:"executionTimeMs"`
}

// StageError wraps a failure that stopped a sequence. Partial holds the
// results of the stages that completed before it.
type StageError struct {
	SequenceID string
	StageID    string
	Index      int
	Partial    []StageResult
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("sequence %q stage %d (%s): %v", e.SequenceID, e.Index+1, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// State is a step of the per-run validation state machine.
type State string

const (
	StatePending          State = "pending"
	StateRunningStage     State = "running_stage"
	StateStagePassed      State = "stage_passed"
	StateStageFailed      State = "stage_failed"
	StateStageFailedFatal State = "stage_failed_fatal"
	StateAggregated       State = "aggregated"
)

// Event is reported to an Observer on every state transition.
type Event struct {
	SequenceID string
	StageID    string
	Index      int
	State      State
	Err        error
}

// Observer receives state transitions. It must not block.
type Observer func(Event)
