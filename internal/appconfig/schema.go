// internal/appconfig/schema.go
package appconfig

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/suite.schema.json
var suiteSchemaJSON []byte

var suiteSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(suiteSchemaJSON))
})

// SuiteSchema returns the JSON schema suite documents are checked against.
func SuiteSchema() []byte { return suiteSchemaJSON }

// validateSchema returns one problem per schema violation in doc.
func validateSchema(doc []byte) ([]string, error) {
	schema, err := suiteSchema()
	if err != nil {
		return nil, fmt.Errorf("compile suite schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return problems, nil
}
