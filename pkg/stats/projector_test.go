package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

func testSnapshot() telemetry.Snapshot {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	decisions := make([]telemetry.DecisionRecord, 0, 15)
	for i := 0; i < 15; i++ {
		selected := "fast"
		task := "classification"
		if i%3 == 0 {
			selected = "smart"
			task = "reasoning"
		}
		decisions = append(decisions, telemetry.DecisionRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Config:    telemetry.DecisionConfig{Task: task, Priority: "balanced"},
			Selected:  selected,
			Score:     float64(50 + i),
		})
	}

	return telemetry.Snapshot{
		Backends: map[string]telemetry.BackendTelemetry{
			"fast": {
				Name: "fast", CostPer1KTokens: 0.2, SuccessRate: 0.98,
				CapabilityTier: config.TierBasic, CallCount: 200, AvgLatencyMS: 350,
			},
			"smart": {
				Name: "smart", CostPer1KTokens: 4.0, SuccessRate: 0.92,
				CapabilityTier: config.TierReasoning, CallCount: 50, AvgLatencyMS: 2800,
			},
		},
		Decisions: decisions,
	}
}

func TestProjectSummary(t *testing.T) {
	report := Project(testSnapshot())

	assert.Equal(t, 15, report.Summary.TotalDecisions)
	assert.Equal(t, 2, report.Summary.TotalBackends)
	assert.Equal(t, int64(250), report.Summary.TotalCalls)
}

func TestProjectModelUsage(t *testing.T) {
	report := Project(testSnapshot())

	require.Len(t, report.ModelUsage, 2)
	// fast won 10 of 15 decisions, smart 5.
	assert.Equal(t, "fast", report.ModelUsage[0].Backend)
	assert.Equal(t, 10, report.ModelUsage[0].Decisions)
	assert.InDelta(t, 66.67, report.ModelUsage[0].Percentage, 0.01)
	assert.Equal(t, "smart", report.ModelUsage[1].Backend)
	assert.InDelta(t, 33.33, report.ModelUsage[1].Percentage, 0.01)
}

func TestProjectDistributions(t *testing.T) {
	report := Project(testSnapshot())

	assert.Equal(t, 10, report.TaskDistribution["classification"])
	assert.Equal(t, 5, report.TaskDistribution["reasoning"])
	assert.Equal(t, 15, report.PriorityDistribution["balanced"])
}

func TestProjectCostAnalysis(t *testing.T) {
	report := Project(testSnapshot())

	require.Len(t, report.CostAnalysis, 2)
	fast := report.CostAnalysis[0]
	assert.Equal(t, "fast", fast.Backend)
	// cost * calls * estimated tokens per call / 1000
	assert.InDelta(t, 0.2*200*TokensPerCallEstimate/1000, fast.EstimatedCost, 0.0001)
}

func TestProjectRecentDecisionsNewestFirst(t *testing.T) {
	report := Project(testSnapshot())

	require.Len(t, report.RecentDecisions, 10)
	assert.Equal(t, float64(64), report.RecentDecisions[0].Score)
	assert.Equal(t, float64(55), report.RecentDecisions[9].Score)
	for i := 1; i < len(report.RecentDecisions); i++ {
		assert.True(t, report.RecentDecisions[i].Timestamp.Before(
			report.RecentDecisions[i-1].Timestamp))
	}
}

func TestProjectComparisonMatrix(t *testing.T) {
	report := Project(testSnapshot())

	require.Len(t, report.Comparison, 2)
	assert.Equal(t, "fast", report.Comparison[0].Backend)
	assert.Equal(t, "basic", report.Comparison[0].CapabilityTier)
	assert.Equal(t, 10, report.Comparison[0].Decisions)
	assert.Equal(t, "smart", report.Comparison[1].Backend)
	assert.Equal(t, 5, report.Comparison[1].Decisions)
}

func TestProjectEmptySnapshot(t *testing.T) {
	report := Project(telemetry.Snapshot{Backends: map[string]telemetry.BackendTelemetry{}})

	assert.Equal(t, 0, report.Summary.TotalDecisions)
	assert.Empty(t, report.ModelUsage)
	assert.Empty(t, report.RecentDecisions)
	assert.NotNil(t, report.TaskDistribution)
}

func TestProjectShortTimeline(t *testing.T) {
	snap := telemetry.Snapshot{
		Backends: map[string]telemetry.BackendTelemetry{},
		Decisions: []telemetry.DecisionRecord{
			{Selected: "only", Score: 1},
			{Selected: "only", Score: 2},
		},
	}
	report := Project(snap)

	require.Len(t, report.RecentDecisions, 2)
	assert.Equal(t, float64(2), report.RecentDecisions[0].Score)
}

func TestProjectUsageTieBreaksByName(t *testing.T) {
	snap := telemetry.Snapshot{
		Backends: map[string]telemetry.BackendTelemetry{},
		Decisions: []telemetry.DecisionRecord{
			{Selected: "zeta"}, {Selected: "alpha"},
		},
	}
	report := Project(snap)

	require.Len(t, report.ModelUsage, 2)
	assert.Equal(t, "alpha", report.ModelUsage[0].Backend)
	assert.Equal(t, "zeta", report.ModelUsage[1].Backend)

	for _, share := range report.ModelUsage {
		assert.InDelta(t, 50.0, share.Percentage, 0.01,
			fmt.Sprintf("backend %s", share.Backend))
	}
}
