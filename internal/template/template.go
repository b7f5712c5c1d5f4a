// Package template renders prompt templates with [varName] placeholders.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mwiater/edgeprompt/internal/constraint"
	"github.com/mwiater/edgeprompt/internal/logging"
)

// Type classifies a template. It only affects the constraint section heading.
type Type string

const (
	TypeQuestionGeneration Type = "question_generation"
	TypeValidation         Type = "validation"
	TypePersona            Type = "persona"
	TypeProxy              Type = "proxy"
)

const (
	// ConstraintsHeading opens the constraint section of a generation prompt.
	ConstraintsHeading = "CONSTRAINTS:"
	// CriteriaHeading opens the constraint section of a validation prompt.
	CriteriaHeading = "VALIDATION CRITERIA:"
	// ListSeparator joins sequence values substituted into a placeholder.
	ListSeparator = ", "
)

// Placeholder names start with a letter or underscore; digits may follow.
var placeholderPattern = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)\]`)

// Template is an immutable prompt pattern.
type Template struct {
	ID           string            `json:"id" validate:"required"`
	Type         Type              `json:"type,omitempty" validate:"omitempty,oneof=question_generation validation persona proxy"`
	Pattern      string            `json:"pattern" validate:"required"`
	RequiredVars []string          `json:"requiredVars,omitempty"`
	Defaults     map[string]string `json:"defaults,omitempty"`
}

func (t Template) required(name string) bool {
	for _, v := range t.RequiredVars {
		if v == name {
			return true
		}
	}
	return false
}

// MissingVariableError reports a required placeholder with no value and no default.
type MissingVariableError struct {
	Template string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: missing required variable %q", e.Template, e.Variable)
}

// Rendered is the full output of a render call.
type Rendered struct {
	Text        string
	Diagnostics []string
	Variables   []string
}

// Engine renders templates. The zero value is ready to use.
type Engine struct {
	// Warnf receives non-fatal diagnostics. Defaults to logging.LogWarning.
	Warnf func(format string, args ...any)
}

// NewEngine returns an Engine that logs diagnostics.
func NewEngine() *Engine {
	return &Engine{Warnf: logging.LogWarning}
}

// Process substitutes every placeholder in t.
func (e *Engine) Process(t Template, vars map[string]any) (string, error) {
	r, err := e.Render(t, vars, nil)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// ProcessWithConstraints renders t and appends the constraint section.
func (e *Engine) ProcessWithConstraints(t Template, vars map[string]any, constraints []constraint.Constraint) (string, error) {
	r, err := e.Render(t, vars, constraints)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// Render substitutes placeholders in a single pass and, when constraints are
// given, appends a trailing constraint section.
func (e *Engine) Render(t Template, vars map[string]any, constraints []constraint.Constraint) (Rendered, error) {
	var (
		out      Rendered
		firstErr error
	)
	out.Variables = ExtractVariables(t)

	text := placeholderPattern.ReplaceAllStringFunc(t.Pattern, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok && v != nil {
			return formatValue(v)
		}
		if d, ok := t.Defaults[name]; ok {
			return d
		}
		if t.required(name) {
			firstErr = &MissingVariableError{Template: t.ID, Variable: name}
			return match
		}
		msg := fmt.Sprintf("template %q: variable %q not provided, substituting empty string", t.ID, name)
		out.Diagnostics = append(out.Diagnostics, msg)
		return ""
	})
	if firstErr != nil {
		return Rendered{}, firstErr
	}

	if section := constraintSection(t.Type, constraints); section != "" {
		text = strings.TrimRight(text, "\n") + "\n\n" + section
	}
	out.Text = text

	if e != nil && e.Warnf != nil {
		for _, d := range out.Diagnostics {
			e.Warnf("%s", d)
		}
	}
	return out, nil
}

// ExtractVariables lists the placeholder names in t in first-appearance order.
func ExtractVariables(t Template) []string {
	matches := placeholderPattern.FindAllStringSubmatch(t.Pattern, -1)
	seen := make(map[string]struct{}, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		vars = append(vars, m[1])
	}
	return vars
}

func constraintSection(tt Type, constraints []constraint.Constraint) string {
	var lines []string
	for _, c := range constraints {
		lines = append(lines, c.Lines()...)
	}
	if len(lines) == 0 {
		return ""
	}
	heading := ConstraintsHeading
	if tt == TypeValidation {
		heading = CriteriaHeading
	}
	var b strings.Builder
	b.WriteString(heading)
	for _, l := range lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
	return b.String()
}

// SplitConstraints separates a rendered prompt from its trailing constraint
// section. ok is false when the prompt has none.
func SplitConstraints(text string) (body, section string, ok bool) {
	for _, heading := range []string{ConstraintsHeading, CriteriaHeading} {
		idx := strings.LastIndex(text, "\n"+heading)
		if idx >= 0 {
			return strings.TrimRight(text[:idx], "\n"), text[idx+1:], true
		}
		if strings.HasPrefix(text, heading) {
			return "", text, true
		}
	}
	return text, "", false
}

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)
	spaceRuns = regexp.MustCompile(`[ \t]{2,}`)
)

// Compact collapses repeated blank lines and runs of spaces.
func Compact(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(spaceRuns.ReplaceAllString(l, " "), " \t")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []string:
		return strings.Join(val, ListSeparator)
	case []int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ListSeparator)
	case []float64:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strings.Join(parts, ListSeparator)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ListSeparator)
	default:
		return fmt.Sprint(val)
	}
}
