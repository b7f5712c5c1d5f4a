// internal/appconfig/suite.go
package appconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/environment"
	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/template"
)

// Suite is a test suite document: the templates, validation sequences,
// hardware profiles and test cases swept by one run of the pipeline.
type Suite struct {
	ID                  string                `json:"id" validate:"required"`
	Description         string                `json:"description,omitempty"`
	Models              SuiteModels           `json:"models"`
	Templates           []template.Template   `json:"templates" validate:"min=1,dive"`
	ValidationSequences []evaluation.Sequence `json:"validationSequences" validate:"dive"`
	HardwareProfiles    []environment.Profile `json:"hardwareProfiles" validate:"min=1,dive"`
	TestCases           []TestCase            `json:"testCases" validate:"min=1,dive"`
	RunParameters       RunParameters         `json:"runParameters"`
	// Path is where the suite was loaded from.
	Path string `json:"-"`
}

// SuiteModels names the configured model IDs used for each tier.
type SuiteModels struct {
	Cloud string   `json:"cloud" validate:"required"`
	Edge  []string `json:"edge" validate:"min=1,dive,required"`
}

// TestCase is one topic the pipeline generates and validates content for.
type TestCase struct {
	ID    string `json:"id" validate:"required"`
	Topic string `json:"topic" validate:"required"`
	// TeacherRequest, when set, is used verbatim instead of being generated.
	TeacherRequest       string                  `json:"teacherRequest,omitempty"`
	Constraints          []constraint.Constraint `json:"constraints,omitempty" validate:"dive"`
	ValidationSequenceID string                  `json:"validationSequenceId" validate:"required"`
	Variables            map[string]any          `json:"variables,omitempty"`
	// Rubric is the criteria text for proxy quality evaluation.
	Rubric string `json:"rubric,omitempty"`
}

// RunParameters selects the templates and switches used by the four runs.
type RunParameters struct {
	BaselineTemplateID       string `json:"baselineTemplateId" validate:"required"`
	StructuredTemplateID     string `json:"structuredTemplateId" validate:"required"`
	StudentTemplateID        string `json:"studentTemplateId,omitempty"`
	TeacherRequestTemplateID string `json:"teacherRequestTemplateId,omitempty"`
	RubricTemplateID         string `json:"rubricTemplateId,omitempty"`
	ProxyTemplateID          string `json:"proxyTemplateId,omitempty"`
	ProxyRole                string `json:"proxyRole,omitempty"`
	ProxyEnabled             *bool  `json:"proxyEnabled,omitempty"`
	ShortCircuitConstraints  *bool  `json:"shortCircuitConstraints,omitempty"`
}

// ProxyOn reports whether quality-vs-reference evaluation runs. Default on.
func (p RunParameters) ProxyOn() bool {
	return p.ProxyEnabled == nil || *p.ProxyEnabled
}

// ShortCircuit reports whether failed constraints skip model-backed
// validation. Default on.
func (p RunParameters) ShortCircuit() bool {
	return p.ShortCircuitConstraints == nil || *p.ShortCircuitConstraints
}

// Template returns the suite template with the given ID.
func (s *Suite) Template(id string) (template.Template, bool) {
	for _, t := range s.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return template.Template{}, false
}

// Sequence returns the validation sequence with the given ID.
func (s *Suite) Sequence(id string) (evaluation.Sequence, bool) {
	for _, seq := range s.ValidationSequences {
		if seq.ID == id {
			return seq, true
		}
	}
	return evaluation.Sequence{}, false
}

// SuiteError lists every problem found while loading a suite document.
type SuiteError struct {
	Source   string
	Problems []string
}

func (e *SuiteError) Error() string {
	return fmt.Sprintf("invalid suite %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

var suiteValidate = validator.New()

// LoadSuite reads a JSON or YAML suite document from path.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read suite file %q: %w", path, err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	s, err := ParseSuite(data, format)
	if err != nil {
		var se *SuiteError
		if errors.As(err, &se) {
			se.Source = path
		}
		return nil, err
	}
	s.Path = path
	return s, nil
}

// ParseSuite decodes and validates a suite document. format is "json" or
// "yaml". Validation runs the embedded JSON schema, then struct rules, then
// cross-reference checks.
func ParseSuite(data []byte, format string) (*Suite, error) {
	doc, err := toJSON(data, format)
	if err != nil {
		return nil, &SuiteError{Source: "<input>", Problems: []string{err.Error()}}
	}

	problems, err := validateSchema(doc)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &SuiteError{Source: "<input>", Problems: problems}
	}

	var s Suite
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, &SuiteError{Source: "<input>", Problems: []string{err.Error()}}
	}

	if err := suiteValidate.Struct(&s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate suite: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return nil, &SuiteError{Source: "<input>", Problems: problems}
	}

	if problems := crossCheck(&s); len(problems) > 0 {
		return nil, &SuiteError{Source: "<input>", Problems: problems}
	}
	return &s, nil
}

// toJSON normalizes a YAML document into JSON so both formats share one
// schema and one decoder.
func toJSON(data []byte, format string) ([]byte, error) {
	if format != "yaml" {
		if !json.Valid(data) {
			return nil, errors.New("suite is not valid JSON")
		}
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

func crossCheck(s *Suite) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	templates := make(map[string]bool, len(s.Templates))
	for _, t := range s.Templates {
		if templates[t.ID] {
			add("duplicate template id %q", t.ID)
		}
		templates[t.ID] = true
	}
	hasTemplate := func(id string) bool {
		return templates[id] || id == evaluation.RubricTemplateID || id == evaluation.ProxyTemplateID
	}

	sequences := make(map[string]bool, len(s.ValidationSequences))
	for _, seq := range s.ValidationSequences {
		if sequences[seq.ID] {
			add("duplicate validation sequence id %q", seq.ID)
		}
		sequences[seq.ID] = true
		if len(seq.Stages) == 0 {
			add("validation sequence %q has no stages", seq.ID)
		}
		stages := make(map[string]bool, len(seq.Stages))
		for _, st := range seq.Stages {
			if stages[st.ID] {
				add("validation sequence %q: duplicate stage id %q", seq.ID, st.ID)
			}
			stages[st.ID] = true
			if !hasTemplate(st.TemplateID) {
				add("validation sequence %q stage %q: unknown template %q", seq.ID, st.ID, st.TemplateID)
			}
		}
	}

	profiles := make(map[string]bool, len(s.HardwareProfiles))
	for _, p := range s.HardwareProfiles {
		if profiles[p.ID] {
			add("duplicate hardware profile id %q", p.ID)
		}
		profiles[p.ID] = true
	}

	edges := make(map[string]bool, len(s.Models.Edge))
	for _, id := range s.Models.Edge {
		if edges[id] {
			add("edge model %q listed twice", id)
		}
		edges[id] = true
	}

	cases := make(map[string]bool, len(s.TestCases))
	for _, tc := range s.TestCases {
		if cases[tc.ID] {
			add("duplicate test case id %q", tc.ID)
		}
		cases[tc.ID] = true
		if !sequences[tc.ValidationSequenceID] {
			add("test case %q: unknown validation sequence %q", tc.ID, tc.ValidationSequenceID)
		}
		for i, c := range tc.Constraints {
			if c.Empty() {
				add("test case %q: constraint %d sets no rule", tc.ID, i)
			}
			if c.MinWords != nil && c.MaxWords != nil && *c.MinWords > *c.MaxWords {
				add("test case %q: constraint %d has minWords > maxWords", tc.ID, i)
			}
		}
	}

	rp := s.RunParameters
	for _, ref := range []struct {
		name, id string
	}{
		{"baselineTemplateId", rp.BaselineTemplateID},
		{"structuredTemplateId", rp.StructuredTemplateID},
		{"studentTemplateId", rp.StudentTemplateID},
		{"teacherRequestTemplateId", rp.TeacherRequestTemplateID},
		{"rubricTemplateId", rp.RubricTemplateID},
		{"proxyTemplateId", rp.ProxyTemplateID},
	} {
		if ref.id != "" && !hasTemplate(ref.id) {
			add("runParameters.%s: unknown template %q", ref.name, ref.id)
		}
	}
	return problems
}

// CheckSuite verifies that every model the suite references is configured.
func (c Config) CheckSuite(s *Suite) error {
	var missing []string
	if _, ok := c.ModelByID(s.Models.Cloud); !ok {
		missing = append(missing, s.Models.Cloud)
	}
	for _, id := range s.Models.Edge {
		if _, ok := c.ModelByID(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("suite %q references unconfigured models: %s", s.ID, strings.Join(missing, ", "))
	}
	return nil
}
