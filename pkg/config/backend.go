package config

import (
	"fmt"
	"sort"
)

// BackendDescriptor is the static profile of a single LLM backend.
// Loaded at init from backends.yaml; immutable in-process. Observed
// behavior (latency, success rate) lives in the telemetry store, not here.
type BackendDescriptor struct {
	// Name is the unique backend identifier used in routing decisions.
	Name string `yaml:"name" json:"name"`

	// CapabilityTier is the ordinal capability class.
	CapabilityTier CapabilityTier `yaml:"capability_tier" json:"capability_tier"`

	// BaseCostPer1KTokens is the provider list price per 1000 tokens.
	BaseCostPer1KTokens float64 `yaml:"base_cost_per_1k_tokens" json:"base_cost_per_1k_tokens"`

	// NominalMaxLatencyMS is the advertised worst-case latency. Used to seed
	// telemetry before any calls have been observed.
	NominalMaxLatencyMS float64 `yaml:"nominal_max_latency_ms" json:"nominal_max_latency_ms"`

	// SupportsStructuredOutput indicates schema-constrained response support.
	SupportsStructuredOutput bool `yaml:"supports_structured_output" json:"supports_structured_output"`

	// SupportsStreaming indicates incremental response delivery support.
	SupportsStreaming bool `yaml:"supports_streaming" json:"supports_streaming"`
}

// Supports reports whether the backend provides the named capability.
func (b *BackendDescriptor) Supports(capability string) bool {
	switch capability {
	case CapabilityStructuredOutput:
		return b.SupportsStructuredOutput
	case CapabilityStreaming:
		return b.SupportsStreaming
	default:
		return false
	}
}

// Validate checks the descriptor for missing or invalid fields.
func (b *BackendDescriptor) Validate() error {
	if b.Name == "" {
		return &ValidationError{Component: "backend", Field: "name", Err: ErrMissingRequiredField}
	}
	if !b.CapabilityTier.IsValid() {
		return &ValidationError{
			Component: "backend", ID: b.Name, Field: "capability_tier",
			Err: fmt.Errorf("%w: %q", ErrInvalidValue, b.CapabilityTier),
		}
	}
	if b.BaseCostPer1KTokens <= 0 {
		return &ValidationError{
			Component: "backend", ID: b.Name, Field: "base_cost_per_1k_tokens",
			Err: fmt.Errorf("%w: must be > 0", ErrInvalidValue),
		}
	}
	if b.NominalMaxLatencyMS <= 0 {
		return &ValidationError{
			Component: "backend", ID: b.Name, Field: "nominal_max_latency_ms",
			Err: fmt.Errorf("%w: must be > 0", ErrInvalidValue),
		}
	}
	return nil
}

// BackendRegistry holds the static backend descriptor table.
type BackendRegistry struct {
	backends map[string]*BackendDescriptor
}

// NewBackendRegistry creates a registry from a descriptor list.
// Duplicate names are rejected.
func NewBackendRegistry(descriptors []BackendDescriptor) (*BackendRegistry, error) {
	backends := make(map[string]*BackendDescriptor, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := backends[d.Name]; exists {
			return nil, &ValidationError{
				Component: "backend", ID: d.Name, Field: "name",
				Err: fmt.Errorf("%w: duplicate backend name", ErrInvalidValue),
			}
		}
		backends[d.Name] = &d
	}
	return &BackendRegistry{backends: backends}, nil
}

// Get retrieves a backend descriptor by name.
func (r *BackendRegistry) Get(name string) (*BackendDescriptor, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return b, nil
}

// All returns all descriptors sorted by name.
func (r *BackendRegistry) All() []*BackendDescriptor {
	out := make([]*BackendDescriptor, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered backends.
func (r *BackendRegistry) Len() int {
	return len(r.backends)
}
