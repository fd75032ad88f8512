package telemetry

import (
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/config"
)

// BackendTelemetry is the mutable, persisted record of observed backend
// behavior. AvgLatencyMS and SuccessRate are running arithmetic means over
// CallCount observations; CallCount is monotonically non-decreasing.
type BackendTelemetry struct {
	Name            string                `json:"name"`
	LastLatencyMS   float64               `json:"last_latency_ms"`
	CostPer1KTokens float64               `json:"cost_per_1k_tokens"`
	SuccessRate     float64               `json:"success_rate"`
	CapabilityTier  config.CapabilityTier `json:"capability_tier"`
	LastUpdated     time.Time             `json:"last_updated_ts"`
	CallCount       int64                 `json:"call_count"`
	AvgLatencyMS    float64               `json:"avg_latency_ms"`
}

// DecisionConfig is the routing configuration captured in a decision record.
// Flattened to plain values so records survive config type evolution.
type DecisionConfig struct {
	Task                 string   `json:"task"`
	Priority             string   `json:"priority"`
	Complexity           string   `json:"complexity"`
	MaxLatencyMS         float64  `json:"max_latency_ms,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// Alternative is a non-selected candidate with its score.
type Alternative struct {
	Backend string  `json:"backend"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// DecisionRecord is one routing decision, appended to the bounded log.
type DecisionRecord struct {
	Timestamp    time.Time      `json:"ts"`
	Config       DecisionConfig `json:"config"`
	Selected     string         `json:"selected_backend"`
	ReasonTokens []string       `json:"reason_tokens"`
	Score        float64        `json:"score"`
	Alternatives []Alternative  `json:"alternatives"`
}

// Snapshot is a consistent copy of the store's state.
type Snapshot struct {
	Backends  map[string]BackendTelemetry `json:"backends"`
	Decisions []DecisionRecord            `json:"decisions"`
}
