// Package results persists run records and suite summaries.
package results

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/util"
)

// The four runs of a comparison, in execution order.
const (
	RunCloudDirect     = 1
	RunCloudStructured = 2
	RunEdgeDirect      = 3
	RunEdgeStructured  = 4
)

// Run methods.
const (
	MethodDirect     = "direct"
	MethodStructured = "structured"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// EnvironmentInfo records how the hardware profile was applied to a run.
type EnvironmentInfo struct {
	Enforced bool   `json:"enforced"`
	Warning  string `json:"warning,omitempty"`
}

// RunRecord is the persisted outcome of one run.
type RunRecord struct {
	SuiteID    string `json:"suiteId"`
	TestCaseID string `json:"testCaseId"`
	ProfileID  string `json:"profileId"`
	RunID      int    `json:"runId"`
	ModelTier  string `json:"modelTier"`
	Method     string `json:"method"`
	CloudModel string `json:"cloudModel"`
	EdgeModel  string `json:"edgeModel"`
	// Model is the model that generated this run's output.
	Model          string `json:"model"`
	TeacherRequest string `json:"teacherRequest"`

	Prompt           string `json:"prompt,omitempty"`
	GenerationOutput string `json:"generationOutput"`
	StudentAnswer    string `json:"studentAnswer,omitempty"`

	ConstraintResult  *constraint.Result           `json:"constraintResult,omitempty"`
	ValidationResult  *evaluation.ValidationResult `json:"validationResult,omitempty"`
	ValidationSkipped string                       `json:"validationSkipped,omitempty"`
	ValidationError   string                       `json:"validationError,omitempty"`

	QualityVsReference *evaluation.ProxyResult `json:"qualityVsReference,omitempty"`
	QualityError       string                  `json:"qualityError,omitempty"`

	Metrics     metrics.Summary `json:"metrics"`
	Environment EnvironmentInfo `json:"environment"`

	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Completed reports whether the run produced output.
func (r RunRecord) Completed() bool { return r.Status == StatusCompleted }

// Key identifies the record within a suite run directory. Slugs are lossy, so
// the key ends with a short name-based UUID of the raw identifiers.
func (r RunRecord) Key() string {
	raw := fmt.Sprintf("%s\x00%d", r.ComboKey(), r.RunID)
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)).String()[:8]
	return fmt.Sprintf("%s__%s__%s__run%d_%s",
		util.Slugify(r.TestCaseID), util.Slugify(r.ProfileID), util.Slugify(r.EdgeModel), r.RunID, sum)
}

// ComboKey groups the four runs of one (test case, profile, edge model)
// combination.
func (r RunRecord) ComboKey() string {
	return r.TestCaseID + "\x00" + r.ProfileID + "\x00" + r.EdgeModel
}
