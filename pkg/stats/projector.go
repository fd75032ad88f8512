// Package stats projects read-only routing statistics out of telemetry
// snapshots. Projections are pure functions of a snapshot, so the endpoint
// never blocks the telemetry writer.
package stats

import (
	"sort"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

// TokensPerCallEstimate is the flat per-call token estimate used for cost
// projections until real token accounting lands.
var TokensPerCallEstimate = 100.0

// Summary is the top-line rollup.
type Summary struct {
	TotalDecisions int   `json:"total_decisions"`
	TotalBackends  int   `json:"total_backends"`
	TotalCalls     int64 `json:"total_calls"`
}

// ModelUsage is one backend's share of routing decisions.
type ModelUsage struct {
	Backend    string  `json:"backend"`
	Decisions  int     `json:"decisions"`
	Percentage float64 `json:"percentage"`
}

// ModelPerformance is one backend's observed behavior.
type ModelPerformance struct {
	Backend      string  `json:"backend"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	CallCount    int64   `json:"call_count"`
}

// ModelCost is one backend's estimated spend.
type ModelCost struct {
	Backend         string  `json:"backend"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens"`
	CallCount       int64   `json:"call_count"`
	EstimatedCost   float64 `json:"estimated_cost"`
}

// TimelineEntry is one recent routing decision, compacted.
type TimelineEntry struct {
	Timestamp time.Time `json:"ts"`
	Task      string    `json:"task"`
	Priority  string    `json:"priority"`
	Selected  string    `json:"selected_backend"`
	Score     float64   `json:"score"`
}

// ComparisonRow is one backend's line in the comparison matrix.
type ComparisonRow struct {
	Backend         string  `json:"backend"`
	CapabilityTier  string  `json:"capability_tier"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	SuccessRate     float64 `json:"success_rate"`
	Decisions       int     `json:"decisions"`
}

// Report is the full projection returned by the stats endpoint.
type Report struct {
	Summary              Summary            `json:"summary"`
	ModelUsage           []ModelUsage       `json:"model_usage"`
	TaskDistribution     map[string]int     `json:"task_distribution"`
	PriorityDistribution map[string]int     `json:"priority_distribution"`
	Performance          []ModelPerformance `json:"performance"`
	CostAnalysis         []ModelCost        `json:"cost_analysis"`
	RecentDecisions      []TimelineEntry    `json:"recent_decisions"`
	Comparison           []ComparisonRow    `json:"model_comparison"`
}

// Project builds the stats report from one telemetry snapshot.
func Project(snap telemetry.Snapshot) Report {
	report := Report{
		TaskDistribution:     make(map[string]int),
		PriorityDistribution: make(map[string]int),
	}

	usage := make(map[string]int)
	for _, d := range snap.Decisions {
		usage[d.Selected]++
		report.TaskDistribution[d.Config.Task]++
		report.PriorityDistribution[d.Config.Priority]++
	}

	report.Summary = Summary{
		TotalDecisions: len(snap.Decisions),
		TotalBackends:  len(snap.Backends),
	}

	names := make([]string, 0, len(snap.Backends))
	for name := range snap.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := snap.Backends[name]
		report.Summary.TotalCalls += t.CallCount

		report.Performance = append(report.Performance, ModelPerformance{
			Backend:      name,
			AvgLatencyMS: t.AvgLatencyMS,
			SuccessRate:  t.SuccessRate,
			CallCount:    t.CallCount,
		})
		report.CostAnalysis = append(report.CostAnalysis, ModelCost{
			Backend:         name,
			CostPer1KTokens: t.CostPer1KTokens,
			CallCount:       t.CallCount,
			EstimatedCost:   t.CostPer1KTokens * float64(t.CallCount) * TokensPerCallEstimate / 1000,
		})
		report.Comparison = append(report.Comparison, ComparisonRow{
			Backend:         name,
			CapabilityTier:  string(t.CapabilityTier),
			CostPer1KTokens: t.CostPer1KTokens,
			AvgLatencyMS:    t.AvgLatencyMS,
			SuccessRate:     t.SuccessRate,
			Decisions:       usage[name],
		})
	}

	report.ModelUsage = usageShares(usage, len(snap.Decisions))
	report.RecentDecisions = timeline(snap.Decisions, 10)
	return report
}

// usageShares orders backends by decision count descending, name ascending.
func usageShares(usage map[string]int, total int) []ModelUsage {
	shares := make([]ModelUsage, 0, len(usage))
	for backend, count := range usage {
		share := ModelUsage{Backend: backend, Decisions: count}
		if total > 0 {
			share.Percentage = float64(count) / float64(total) * 100
		}
		shares = append(shares, share)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Decisions != shares[j].Decisions {
			return shares[i].Decisions > shares[j].Decisions
		}
		return shares[i].Backend < shares[j].Backend
	})
	return shares
}

// timeline returns the most recent n decisions, newest first.
func timeline(decisions []telemetry.DecisionRecord, n int) []TimelineEntry {
	entries := make([]TimelineEntry, 0, n)
	for i := len(decisions) - 1; i >= 0 && len(entries) < n; i-- {
		d := decisions[i]
		entries = append(entries, TimelineEntry{
			Timestamp: d.Timestamp,
			Task:      d.Config.Task,
			Priority:  d.Config.Priority,
			Selected:  d.Selected,
			Score:     d.Score,
		})
	}
	return entries
}
