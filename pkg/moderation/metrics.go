package moderation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the rolling aggregate over moderation requests, recomputed
// incrementally per request. Guarded by a short critical section.
type Metrics struct {
	mu sync.Mutex

	total         int64
	flagged       int64
	cacheHits     int64
	cacheMisses   int64
	bySeverity    map[Severity]int64
	byLanguage    map[string]int64
	sumLatencyMS  float64
	sumRiskScore  float64
	scoredResults int64

	promRequests *prometheus.CounterVec
	promCache    *prometheus.CounterVec
	promLatency  prometheus.Histogram
}

// MetricsSnapshot is the read-only projection returned by the API.
type MetricsSnapshot struct {
	Total        int64              `json:"total"`
	Flagged      int64              `json:"flagged"`
	CacheHits    int64              `json:"cache_hits"`
	CacheMisses  int64              `json:"cache_misses"`
	BySeverity   map[Severity]int64 `json:"by_severity"`
	ByLanguage   map[string]int64   `json:"by_language"`
	AvgLatencyMS float64            `json:"avg_latency_ms"`
	AvgRiskScore float64            `json:"avg_risk_score"`
}

// NewMetrics creates the rolling metrics and registers the prometheus
// collectors. registry may be nil to skip registration (tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		bySeverity: make(map[Severity]int64),
		byLanguage: make(map[string]int64),
		promRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "moderation",
			Name:      "requests_total",
			Help:      "Moderation requests by severity.",
		}, []string{"severity"}),
		promCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "moderation",
			Name:      "cache_total",
			Help:      "Moderation cache lookups by outcome.",
		}, []string{"outcome"}),
		promLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "modelmux",
			Subsystem: "moderation",
			Name:      "latency_ms",
			Help:      "Backend latency per moderation call in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 10),
		}),
	}
	if registry != nil {
		registry.MustRegister(m.promRequests, m.promCache, m.promLatency)
	}
	return m
}

// RecordResult folds one completed moderation call into the aggregates.
func (m *Metrics) RecordResult(result *Result, latencyMS float64) {
	m.mu.Lock()
	m.total++
	if result.Flagged {
		m.flagged++
	}
	m.bySeverity[result.Severity]++
	if result.LanguageCode != "" {
		m.byLanguage[result.LanguageCode]++
	}
	m.sumLatencyMS += latencyMS
	m.sumRiskScore += result.RiskScore
	m.scoredResults++
	m.mu.Unlock()

	m.promRequests.WithLabelValues(string(result.Severity)).Inc()
	m.promLatency.Observe(latencyMS)
}

// RecordCacheHit counts a cache hit (which bypasses the backend entirely).
func (m *Metrics) RecordCacheHit(result *Result) {
	m.mu.Lock()
	m.total++
	m.cacheHits++
	if result.Flagged {
		m.flagged++
	}
	m.bySeverity[result.Severity]++
	if result.LanguageCode != "" {
		m.byLanguage[result.LanguageCode]++
	}
	m.mu.Unlock()

	m.promCache.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()

	m.promCache.WithLabelValues("miss").Inc()
}

// Snapshot returns a consistent copy of the aggregates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		Total:       m.total,
		Flagged:     m.flagged,
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		BySeverity:  make(map[Severity]int64, len(m.bySeverity)),
		ByLanguage:  make(map[string]int64, len(m.byLanguage)),
	}
	for k, v := range m.bySeverity {
		s.BySeverity[k] = v
	}
	for k, v := range m.byLanguage {
		s.ByLanguage[k] = v
	}
	if m.scoredResults > 0 {
		s.AvgLatencyMS = m.sumLatencyMS / float64(m.scoredResults)
		s.AvgRiskScore = m.sumRiskScore / float64(m.scoredResults)
	}
	return s
}
