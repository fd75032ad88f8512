package extract

import "github.com/codeready-toolchain/modelmux/pkg/llm"

// entityProperties describes one entity class in the extraction schema.
func entityProperties(attrs map[string]any) map[string]any {
	props := map[string]any{
		"name": map[string]any{"type": "string"},
	}
	for k, v := range attrs {
		props[k] = v
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   []string{"name"},
		},
	}
}

// Schema is the structured-output contract for chunk extraction.
// Kept as data so it can be serialized and compared.
var Schema = mustSchema()

func mustSchema() *llm.Schema {
	s, err := llm.NewSchema("chunk_extraction", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"people": entityProperties(map[string]any{
				"role": map[string]any{"type": "string"},
			}),
			"companies": entityProperties(map[string]any{
				"industry": map[string]any{"type": "string"},
			}),
			"concepts": entityProperties(map[string]any{
				"description": map[string]any{"type": "string"},
			}),
			"relationships": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"person1":  map[string]any{"type": "string"},
						"person2":  map[string]any{"type": "string"},
						"type":     map[string]any{"type": "string"},
						"evidence": map[string]any{"type": "string"},
					},
					"required": []string{"person1", "person2", "type"},
				},
			},
			"summary": map[string]any{"type": "string"},
		},
		"required": []string{"summary"},
	})
	if err != nil {
		panic(err)
	}
	return s
}
