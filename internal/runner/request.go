package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/template"
)

// requestCache resolves each test case's teacher request once. Later callers
// for the same test case get the identical string, or the identical error.
type requestCache struct {
	mu      sync.Mutex
	entries map[string]*requestEntry
}

type requestEntry struct {
	once  sync.Once
	value string
	err   error
}

func newRequestCache() *requestCache {
	return &requestCache{entries: make(map[string]*requestEntry)}
}

func (c *requestCache) get(id string, resolve func() (string, error)) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &requestEntry{}
		c.entries[id] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.value, e.err = resolve() })
	return e.value, e.err
}

func (o *Orchestrator) teacherRequest(ctx context.Context, tc appconfig.TestCase) (string, error) {
	return o.requests.get(tc.ID, func() (string, error) {
		return o.resolveTeacherRequest(ctx, tc)
	})
}

// resolveTeacherRequest uses the test case's own request verbatim, generates
// one with the cloud model when the suite names a teacher request template,
// and otherwise describes the test case deterministically.
func (o *Orchestrator) resolveTeacherRequest(ctx context.Context, tc appconfig.TestCase) (string, error) {
	if strings.TrimSpace(tc.TeacherRequest) != "" {
		return tc.TeacherRequest, nil
	}
	vars := caseVariables(tc, "")

	id := o.suite.RunParameters.TeacherRequestTemplateID
	if id == "" {
		return describeTestCase(o.renderer, tc, vars)
	}

	prompt, err := o.renderTemplate(id, vars, nil)
	if err != nil {
		return "", err
	}
	var text string
	err = withRetry(ctx, o.opts.MaxAttempts, "teacher request "+tc.ID, func(int) error {
		gen, err := o.execs.Cloud.Generate(ctx, prompt, providers.GenerationParams{})
		if err != nil {
			return err
		}
		text = strings.TrimSpace(gen.Text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if text == "" {
		return "", errors.New("generate: empty output")
	}
	return text, nil
}

var variableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// describeTestCase renders the topic and variables in key order. Variables
// whose names cannot be template placeholders are left out.
func describeTestCase(r *template.Engine, tc appconfig.TestCase, vars map[string]any) (string, error) {
	keys := make([]string, 0, len(tc.Variables))
	for k := range tc.Variables {
		if variableName.MatchString(k) && k != "topic" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString("Topic: [topic]")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: [%s]", k, k)
	}
	return r.Process(template.Template{ID: "teacher_request_" + tc.ID, Pattern: b.String()}, vars)
}
