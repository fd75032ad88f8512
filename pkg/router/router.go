// Package router scores candidate backends against a per-request routing
// configuration and picks the best one. Every selection emits a decision
// record so the telemetry loop can be replayed and inspected.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

// ErrNoEligibleBackend is returned when required capabilities exclude every
// registered backend. This is a configuration error; there is no silent
// fallback.
var ErrNoEligibleBackend = errors.New("no backend satisfies the required capabilities")

// Config is the per-request routing configuration.
type Config struct {
	Task       config.TaskType
	Priority   config.Priority
	Complexity config.Complexity

	// MaxLatencyMS, when > 0, penalizes backends whose observed average
	// latency exceeds it.
	MaxLatencyMS float64

	// RequiredCapabilities excludes backends missing any listed capability.
	RequiredCapabilities []string
}

// validate rejects unknown enum values. Empty fields are unset and fall
// back to their defaults during scoring.
func (c Config) validate() error {
	if c.Task != "" && !c.Task.IsValid() {
		return &config.ValidationError{Component: "routing", Field: "task",
			Err: config.ErrInvalidValue}
	}
	if c.Priority != "" && !c.Priority.IsValid() {
		return &config.ValidationError{Component: "routing", Field: "priority",
			Err: config.ErrInvalidValue}
	}
	if c.Complexity != "" && !c.Complexity.IsValid() {
		return &config.ValidationError{Component: "routing", Field: "complexity",
			Err: config.ErrInvalidValue}
	}
	return nil
}

// Selection is the routing outcome.
type Selection struct {
	Backend      string
	Score        float64
	Reason       string
	Alternatives []telemetry.Alternative
}

// candidate is a scored backend during selection.
type candidate struct {
	descriptor *config.BackendDescriptor
	stats      telemetry.BackendTelemetry
	score      float64
	reasons    []string
	eligible   bool
}

// Router selects backends and closes the telemetry loop.
type Router struct {
	registry       *config.BackendRegistry
	store          *telemetry.Store
	defaultBackend string
	logger         *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a router. defaultBackend is returned when the backend table
// is empty.
func New(registry *config.BackendRegistry, store *telemetry.Store, defaultBackend string) *Router {
	return &Router{
		registry:       registry,
		store:          store,
		defaultBackend: defaultBackend,
		logger:         slog.Default().With("component", "model-router"),
		now:            time.Now,
	}
}

// Select scores every registered backend and returns the winner plus up to
// three runner-ups. A decision record is appended before returning.
func (r *Router) Select(cfg Config) (*Selection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	descriptors := r.registry.All()
	if len(descriptors) == 0 {
		selection := &Selection{
			Backend: r.defaultBackend,
			Reason:  "no backends registered, using default",
		}
		r.record(cfg, selection)
		return selection, nil
	}

	snapshot := r.store.Snapshot()
	now := r.now()

	candidates := make([]candidate, 0, len(descriptors))
	for _, d := range descriptors {
		stats, ok := snapshot.Backends[d.Name]
		if !ok {
			// Backend added after store init; score from nominal values.
			stats = telemetry.BackendTelemetry{
				Name:            d.Name,
				CostPer1KTokens: d.BaseCostPer1KTokens,
				CapabilityTier:  d.CapabilityTier,
				SuccessRate:     1.0,
				AvgLatencyMS:    d.NominalMaxLatencyMS,
			}
		}
		candidates = append(candidates, r.score(cfg, d, stats, now))
	}

	// Highest score wins; ties broken by call count, then cost, then name
	// so selection is reproducible.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.eligible != b.eligible {
			return a.eligible
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.stats.CallCount != b.stats.CallCount {
			return a.stats.CallCount > b.stats.CallCount
		}
		if a.descriptor.BaseCostPer1KTokens != b.descriptor.BaseCostPer1KTokens {
			return a.descriptor.BaseCostPer1KTokens < b.descriptor.BaseCostPer1KTokens
		}
		return a.descriptor.Name < b.descriptor.Name
	})

	winner := candidates[0]
	if !winner.eligible {
		return nil, fmt.Errorf("%w: %v", ErrNoEligibleBackend, cfg.RequiredCapabilities)
	}

	selection := &Selection{
		Backend:      winner.descriptor.Name,
		Score:        winner.score,
		Reason:       joinReasons(winner.reasons),
		Alternatives: alternatives(candidates[1:]),
	}
	r.record(cfg, selection, winner.reasons...)

	r.logger.Debug("Backend selected",
		"backend", selection.Backend,
		"score", selection.Score,
		"task", cfg.Task,
		"priority", cfg.Priority)
	return selection, nil
}

// score computes one candidate's score per the routing formula.
func (r *Router) score(cfg Config, d *config.BackendDescriptor, stats telemetry.BackendTelemetry, now time.Time) candidate {
	c := candidate{descriptor: d, stats: stats, eligible: true}
	base := 100.0

	// 1. Capability tier match.
	required := cfg.Task.RequiredTier().Index()
	tier := d.CapabilityTier.Index()
	switch {
	case tier < required:
		base -= 30
		c.reasons = append(c.reasons, "tier below task requirement")
	case tier > required+1:
		base -= 10
		c.reasons = append(c.reasons, "overkill for task")
	default:
		c.reasons = append(c.reasons, "tier match")
	}

	// 2. Latency gate.
	if cfg.MaxLatencyMS > 0 && stats.AvgLatencyMS > cfg.MaxLatencyMS {
		base -= 50
		c.reasons = append(c.reasons, "latency above budget")
	}

	// 3. Required capabilities gate.
	for _, capability := range cfg.RequiredCapabilities {
		if !d.Supports(capability) {
			c.eligible = false
			c.score = 0
			c.reasons = append(c.reasons, "missing capability "+capability)
			return c
		}
	}

	// 4. Priority blending.
	cost := stats.CostPer1KTokens
	if cost <= 0 {
		cost = d.BaseCostPer1KTokens
	}
	latency := stats.AvgLatencyMS
	if latency <= 0 {
		latency = d.NominalMaxLatencyMS
	}
	quality := float64(d.CapabilityTier.Index() + 1)

	var score float64
	switch cfg.Priority {
	case config.PriorityCost:
		score = 0.3*base + 0.7*(1/cost*100)
		c.reasons = append(c.reasons, "optimized for cost")
	case config.PrioritySpeed:
		score = 0.3*base + 0.7*(1/latency*10000)
		c.reasons = append(c.reasons, "optimized for speed")
	case config.PriorityQuality:
		score = 0.3*base + 0.7*(quality*25)
		c.reasons = append(c.reasons, "optimized for quality")
	default: // balanced
		score = 0.2*base + 0.3*(1/cost*50) + 0.3*(1/latency*5000) + 0.2*(quality*15)
		c.reasons = append(c.reasons, "balanced blend")
	}

	// 5. Reliability penalty.
	if stats.SuccessRate < 0.95 {
		score -= (1 - stats.SuccessRate) * 50
		c.reasons = append(c.reasons, "reliability penalty")
	}

	// 6. Recency boost.
	if stats.CallCount > 10 && now.Sub(stats.LastUpdated) < 24*time.Hour {
		score += 5
		c.reasons = append(c.reasons, "recently exercised")
	}

	// 7. Floor.
	if score < 0 {
		score = 0
	}
	c.score = score
	return c
}

// record appends the decision to the telemetry log.
func (r *Router) record(cfg Config, selection *Selection, reasons ...string) {
	if len(reasons) == 0 && selection.Reason != "" {
		reasons = []string{selection.Reason}
	}
	r.store.RecordDecision(telemetry.DecisionRecord{
		Timestamp: r.now(),
		Config: telemetry.DecisionConfig{
			Task:                 string(cfg.Task),
			Priority:             string(cfg.Priority),
			Complexity:           string(cfg.Complexity),
			MaxLatencyMS:         cfg.MaxLatencyMS,
			RequiredCapabilities: cfg.RequiredCapabilities,
		},
		Selected:     selection.Backend,
		ReasonTokens: reasons,
		Score:        selection.Score,
		Alternatives: selection.Alternatives,
	})
}

// alternatives converts the top runner-ups into decision alternatives.
func alternatives(rest []candidate) []telemetry.Alternative {
	limit := 3
	if len(rest) < limit {
		limit = len(rest)
	}
	out := make([]telemetry.Alternative, 0, limit)
	for _, c := range rest[:limit] {
		out = append(out, telemetry.Alternative{
			Backend: c.descriptor.Name,
			Score:   c.score,
			Reason:  joinReasons(c.reasons),
		})
	}
	return out
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, ", ")
}
