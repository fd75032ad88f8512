// Package moderation implements the end-to-end serving path for content
// moderation requests: cache, router-selected invocation, telemetry,
// alert routing, and rolling metrics.
package moderation

import "github.com/codeready-toolchain/modelmux/pkg/llm"

// Severity classifies moderation outcomes.
type Severity string

const (
	// SeveritySafe is unobjectionable content.
	SeveritySafe Severity = "safe"
	// SeverityWarning is content worth reviewing.
	SeverityWarning Severity = "warning"
	// SeverityCritical is content requiring immediate action. Critical
	// results are always flagged and never cached.
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	return s == SeveritySafe || s == SeverityWarning || s == SeverityCritical
}

// Request is one moderation call.
type Request struct {
	Message string
	Locale  string
	Stream  bool
}

// Result is the structured moderation verdict.
//
// Invariants: critical implies flagged; safe implies no categories.
type Result struct {
	Language     string   `json:"language"`
	LanguageCode string   `json:"language_code"`
	Severity     Severity `json:"severity"`
	Categories   []string `json:"categories"`
	Confidence   float64  `json:"confidence"`
	RiskScore    float64  `json:"risk_score"`
	Flagged      bool     `json:"flagged"`
	Reasoning    string   `json:"reasoning"`
}

// normalizeInvariants enforces the result invariants after validation, so a
// backend that returns critical-but-unflagged still honors the contract.
func (r *Result) normalizeInvariants() {
	if r.Severity == SeverityCritical {
		r.Flagged = true
	}
	if r.Severity == SeveritySafe {
		r.Categories = []string{}
	}
	if r.Categories == nil {
		r.Categories = []string{}
	}
}

// Schema is the structured-output contract for moderation verdicts.
var Schema = mustSchema()

func mustSchema() *llm.Schema {
	s, err := llm.NewSchema("moderation_result", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language":      map[string]any{"type": "string"},
			"language_code": map[string]any{"type": "string", "minLength": 2, "maxLength": 2},
			"severity": map[string]any{
				"type": "string",
				"enum": []string{"safe", "warning", "critical"},
			},
			"categories": map[string]any{
				"type":     "array",
				"maxItems": 3,
				"items": map[string]any{
					"type": "string",
					"enum": []string{
						"hate", "harassment", "violence", "sexual",
						"self_harm", "spam", "misinformation",
					},
				},
			},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"risk_score": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"flagged":    map[string]any{"type": "boolean"},
			"reasoning":  map[string]any{"type": "string"},
		},
		"required": []string{"language", "language_code", "severity", "flagged", "reasoning"},
	})
	if err != nil {
		panic(err)
	}
	return s
}
