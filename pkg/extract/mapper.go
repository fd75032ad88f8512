package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/chunk"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
	"github.com/codeready-toolchain/modelmux/pkg/router"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

const systemPrompt = "You extract entities from document excerpts. " +
	"Report people (with roles), companies (with industries), key concepts, " +
	"and relationships between people, plus a one-paragraph summary."

// Mapper produces per-chunk extraction results through the router so every
// call feeds telemetry.
type Mapper struct {
	router    *router.Router
	store     *telemetry.Store
	client    llm.Client
	validator *llm.Validator
	logger    *slog.Logger
}

// NewMapper creates an extraction mapper.
func NewMapper(r *router.Router, store *telemetry.Store, client llm.Client) *Mapper {
	return &Mapper{
		router:    r,
		store:     store,
		client:    client,
		validator: llm.NewValidator(),
		logger:    slog.Default().With("component", "extract-mapper"),
	}
}

// Map extracts entities from one chunk. Satisfies pipeline.MapFunc.
func (m *Mapper) Map(ctx context.Context, c chunk.Chunk) (ChunkResult, error) {
	selection, err := m.router.Select(router.Config{
		Task:                 config.TaskExtraction,
		Priority:             config.PriorityBalanced,
		Complexity:           config.ComplexityMedium,
		RequiredCapabilities: []string{config.CapabilityStructuredOutput},
	})
	if err != nil {
		return ChunkResult{}, err
	}

	start := time.Now()
	resp, err := m.client.Invoke(ctx, llm.Request{
		Backend: selection.Backend,
		System:  systemPrompt,
		Prompt:  c.Text,
		Schema:  Schema,
	})
	latencyMS := float64(time.Since(start).Milliseconds())
	if err != nil {
		m.store.Update(selection.Backend, latencyMS, false)
		return ChunkResult{}, err
	}

	var result ChunkResult
	if err := m.validator.ValidateInto(Schema, []byte(resp.Content), &result); err != nil {
		// Malformed structured output counts as a failed call for routing.
		m.store.Update(selection.Backend, latencyMS, false)
		return ChunkResult{}, err
	}

	m.store.Update(selection.Backend, latencyMS, true)
	result.Index = c.Index
	return result, nil
}

// Fallback is the degraded map function: an unconstrained call whose plain
// text answer becomes the chunk summary, with no entities. Satisfies
// pipeline.FallbackFunc.
func (m *Mapper) Fallback(ctx context.Context, c chunk.Chunk, cause error) (ChunkResult, error) {
	selection, err := m.router.Select(router.Config{
		Task:       config.TaskSummarization,
		Priority:   config.PriorityCost,
		Complexity: config.ComplexityLow,
	})
	if err != nil {
		return ChunkResult{}, err
	}

	m.logger.Warn("Falling back to plain summary",
		"chunk", c.Index, "cause", cause)

	start := time.Now()
	resp, err := m.client.Invoke(ctx, llm.Request{
		Backend: selection.Backend,
		Prompt:  "Summarize this excerpt in one paragraph:\n\n" + c.Text,
	})
	latencyMS := float64(time.Since(start).Milliseconds())
	m.store.Update(selection.Backend, latencyMS, err == nil)
	if err != nil {
		return ChunkResult{}, err
	}

	return ChunkResult{Index: c.Index, Summary: resp.Content}, nil
}

// Synthetic builds the failure record for a chunk that exhausted both the
// primary and fallback paths. Satisfies pipeline.SyntheticFunc.
func Synthetic(c chunk.Chunk, cause error) ChunkResult {
	return ChunkResult{
		Index:   c.Index,
		Summary: fmt.Sprintf("extraction failed: %v", cause),
		Failed:  true,
	}
}
