package llm

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a declarative structured-output contract. It is plain data
// (a JSON Schema document) so it can be serialized, compared, and sent to
// providers that support schema-constrained generation.
type Schema struct {
	// Name identifies the schema in errors and provider requests.
	Name string `json:"name"`

	// Document is the JSON Schema body.
	Document json.RawMessage `json:"document"`
}

// NewSchema marshals doc (typically a map[string]any literal) into a Schema.
func NewSchema(name string, doc any) (*Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema %q: %w", name, err)
	}
	return &Schema{Name: name, Document: raw}, nil
}

// Validator checks model output against a declared schema and decodes it
// into a typed value. Safe for concurrent use.
type Validator struct{}

// NewValidator creates a schema validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateInto validates data against the schema and, on success, unmarshals
// it into out. A failure returns *SchemaValidationError listing every issue.
func (v *Validator) ValidateInto(schema *Schema, data []byte, out any) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema.Document)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		// Unparseable output counts as a validation failure, not an infra error.
		return &SchemaValidationError{
			Schema: schema.Name,
			Issues: []string{err.Error()},
		}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return &SchemaValidationError{Schema: schema.Name, Issues: issues}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &SchemaValidationError{
			Schema: schema.Name,
			Issues: []string{fmt.Sprintf("decoding validated output: %v", err)},
		}
	}
	return nil
}
