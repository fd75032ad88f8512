package reduce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/chunk"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
	"github.com/codeready-toolchain/modelmux/pkg/router"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

// Summary is one chunk's summarization output.
type Summary struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Failed bool   `json:"failed,omitempty"`
}

// Summarizer provides the map and combine functions for the summarization
// pipeline, routing every call and feeding telemetry.
type Summarizer struct {
	router *router.Router
	store  *telemetry.Store
	client llm.Client
	logger *slog.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(r *router.Router, store *telemetry.Store, client llm.Client) *Summarizer {
	return &Summarizer{
		router: r,
		store:  store,
		client: client,
		logger: slog.Default().With("component", "summarizer"),
	}
}

// Map summarizes one chunk. Satisfies pipeline.MapFunc.
func (s *Summarizer) Map(ctx context.Context, c chunk.Chunk) (Summary, error) {
	text, err := s.invoke(ctx, router.Config{
		Task:       config.TaskSummarization,
		Priority:   config.PriorityBalanced,
		Complexity: config.ComplexityMedium,
	}, "Summarize this excerpt, keeping every load-bearing fact:\n\n"+c.Text)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Index: c.Index, Text: text}, nil
}

// Combine merges partial summaries into one. Satisfies CombineFunc when
// wrapped: the batch is joined into a single combine-summaries prompt.
func (s *Summarizer) Combine(ctx context.Context, summaries []string) (string, error) {
	var b strings.Builder
	b.WriteString("Combine these partial summaries into one coherent summary:\n")
	for i, partial := range summaries {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, partial)
	}

	return s.invoke(ctx, router.Config{
		Task:       config.TaskSummarization,
		Priority:   config.PriorityQuality,
		Complexity: config.ComplexityHigh,
	}, b.String())
}

// SyntheticSummary builds the failure record for a chunk whose
// summarization failed terminally. Satisfies pipeline.SyntheticFunc.
func SyntheticSummary(c chunk.Chunk, cause error) Summary {
	return Summary{
		Index:  c.Index,
		Text:   fmt.Sprintf("summarization failed: %v", cause),
		Failed: true,
	}
}

func (s *Summarizer) invoke(ctx context.Context, cfg router.Config, prompt string) (string, error) {
	selection, err := s.router.Select(cfg)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := s.client.Invoke(ctx, llm.Request{
		Backend: selection.Backend,
		Prompt:  prompt,
	})
	latencyMS := float64(time.Since(start).Milliseconds())
	s.store.Update(selection.Backend, latencyMS, err == nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
